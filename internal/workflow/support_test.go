package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/platform"
	"github.com/warblehq/warble/internal/protect"
	"github.com/warblehq/warble/internal/state"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// fakeAPI implements platform.API with overridable fn fields. Every call is
// recorded so tests can assert which remote calls were (not) made.
type fakeAPI struct {
	followFn        func(userID string) error
	unfollowFn      func(userID string) error
	likeFn          func(tweetID string) error
	unlikeFn        func(tweetID string) error
	postFn          func(text, replyToID, quoteOfID string) (string, error)
	deleteFn        func(tweetID string) error
	profileFn       func(userID string) (platform.Profile, error)
	recentPostsFn   func(userID string, limit int) ([]platform.Post, error)
	followingPageFn func(userID string, pageSize int, token string) (platform.FollowingPage, error)
	metricsFn       func(tweetID string) (platform.Metrics, error)
	lookupFn        func(username string) (string, error)
	selfIDFn        func() (string, error)
	nonFollowersFn  func(maxPages int) ([]platform.User, error)

	calls []string
}

func (f *fakeAPI) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAPI) called(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeAPI) Follow(_ context.Context, userID string) error {
	f.record("follow:%s", userID)
	if f.followFn != nil {
		return f.followFn(userID)
	}
	return nil
}

func (f *fakeAPI) Unfollow(_ context.Context, userID string) error {
	f.record("unfollow:%s", userID)
	if f.unfollowFn != nil {
		return f.unfollowFn(userID)
	}
	return nil
}

func (f *fakeAPI) Like(_ context.Context, tweetID string) error {
	f.record("like:%s", tweetID)
	if f.likeFn != nil {
		return f.likeFn(tweetID)
	}
	return nil
}

func (f *fakeAPI) Unlike(_ context.Context, tweetID string) error {
	f.record("unlike:%s", tweetID)
	if f.unlikeFn != nil {
		return f.unlikeFn(tweetID)
	}
	return nil
}

func (f *fakeAPI) Post(_ context.Context, text, replyToID, quoteOfID string) (string, error) {
	f.record("post:reply=%s,quote=%s", replyToID, quoteOfID)
	if f.postFn != nil {
		return f.postFn(text, replyToID, quoteOfID)
	}
	return "posted-1", nil
}

func (f *fakeAPI) Delete(_ context.Context, tweetID string) error {
	f.record("delete:%s", tweetID)
	if f.deleteFn != nil {
		return f.deleteFn(tweetID)
	}
	return nil
}

func (f *fakeAPI) GetProfile(_ context.Context, userID string) (platform.Profile, error) {
	f.record("profile:%s", userID)
	if f.profileFn != nil {
		return f.profileFn(userID)
	}
	return platform.Profile{ID: userID}, nil
}

func (f *fakeAPI) GetRecentPosts(_ context.Context, userID string, limit int) ([]platform.Post, error) {
	f.record("posts:%s", userID)
	if f.recentPostsFn != nil {
		return f.recentPostsFn(userID, limit)
	}
	return nil, nil
}

func (f *fakeAPI) GetFollowingPage(_ context.Context, userID string, pageSize int, token string) (platform.FollowingPage, error) {
	f.record("following:%s:%s", userID, token)
	if f.followingPageFn != nil {
		return f.followingPageFn(userID, pageSize, token)
	}
	return platform.FollowingPage{}, nil
}

func (f *fakeAPI) GetMetrics(_ context.Context, tweetID string) (platform.Metrics, error) {
	f.record("metrics:%s", tweetID)
	if f.metricsFn != nil {
		return f.metricsFn(tweetID)
	}
	return platform.Metrics{}, nil
}

func (f *fakeAPI) LookupUserID(_ context.Context, username string) (string, error) {
	f.record("lookup:%s", username)
	if f.lookupFn != nil {
		return f.lookupFn(username)
	}
	return "", fmt.Errorf("no such user")
}

func (f *fakeAPI) AuthenticatedUserID(_ context.Context) (string, error) {
	f.record("self")
	if f.selfIDFn != nil {
		return f.selfIDFn()
	}
	return "self", nil
}

func (f *fakeAPI) GetNonFollowers(_ context.Context, maxPages int) ([]platform.User, error) {
	f.record("nonfollowers:%d", maxPages)
	if f.nonFollowersFn != nil {
		return f.nonFollowersFn(maxPages)
	}
	return nil, nil
}

func openLimits() guard.Limits {
	return guard.Limits{
		Replies:   guard.Unlimited,
		Originals: guard.Unlimited,
		Likes:     guard.Unlimited,
		Retweets:  guard.Unlimited,
		Follows:   guard.Unlimited,
		Unfollows: guard.Unlimited,
		Deletes:   guard.Unlimited,
	}
}

type engineOption func(*EngineConfig)

func withLimits(l guard.Limits) engineOption {
	return func(cfg *EngineConfig) { cfg.Limits = l }
}

func withProtected(raw string) engineOption {
	return func(cfg *EngineConfig) { cfg.Protected = protect.Parse(raw) }
}

func newTestEngine(api platform.API, clock *fixedClock, opts ...engineOption) *Engine {
	cfg := EngineConfig{
		Limits: openLimits(),
		SelfID: "self",
		Clock:  clock,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEngine(api, cfg)
}

func newFollowCycle(t interface{ Fatalf(string, ...any) }, e *Engine, doc *state.Document) *state.Workflow {
	wf, err := e.CreateWorkflow(doc, state.TypeFollowCycle, "u1", "alice", nil)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	return wf
}
