package api

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/platform"
	"github.com/warblehq/warble/internal/state"
	"github.com/warblehq/warble/internal/workflow"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

// stubAPI answers every platform call with an empty success.
type stubAPI struct{}

func (stubAPI) Follow(context.Context, string) error   { return nil }
func (stubAPI) Unfollow(context.Context, string) error { return nil }
func (stubAPI) Like(context.Context, string) error     { return nil }
func (stubAPI) Unlike(context.Context, string) error   { return nil }
func (stubAPI) Post(context.Context, string, string, string) (string, error) {
	return "posted-1", nil
}
func (stubAPI) Delete(context.Context, string) error { return nil }
func (stubAPI) GetProfile(_ context.Context, userID string) (platform.Profile, error) {
	return platform.Profile{ID: userID}, nil
}
func (stubAPI) GetRecentPosts(context.Context, string, int) ([]platform.Post, error) {
	return nil, nil
}
func (stubAPI) GetFollowingPage(context.Context, string, int, string) (platform.FollowingPage, error) {
	return platform.FollowingPage{}, nil
}
func (stubAPI) GetMetrics(context.Context, string) (platform.Metrics, error) {
	return platform.Metrics{}, nil
}
func (stubAPI) LookupUserID(context.Context, string) (string, error) { return "", nil }
func (stubAPI) AuthenticatedUserID(context.Context) (string, error)  { return "self", nil }
func (stubAPI) GetNonFollowers(context.Context, int) ([]platform.User, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *state.Store) {
	t.Helper()
	clock := stubClock{now: testNow}
	store := state.NewStoreWithClock(filepath.Join(t.TempDir(), "state.json"), clock)
	engine := workflow.NewEngine(stubAPI{}, workflow.EngineConfig{
		Limits: guard.Limits{
			Replies:   guard.Unlimited,
			Originals: guard.Unlimited,
			Likes:     guard.Unlimited,
			Retweets:  guard.Unlimited,
			Follows:   guard.Unlimited,
			Unfollows: guard.Unlimited,
			Deletes:   guard.Unlimited,
		},
		SelfID: "self",
		Clock:  clock,
	})
	return NewService(store, engine), store
}

func TestCreateWorkflowPersists(t *testing.T) {
	svc, store := newTestService(t)

	wf, err := svc.CreateWorkflow(state.TypeFollowCycle, "u1", "alice", nil)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if wf.ID != "fc:alice" {
		t.Fatalf("ID = %q", wf.ID)
	}

	// A fresh load sees the workflow on disk.
	doc := store.Load()
	if doc.FindActive("fc:alice") == nil {
		t.Fatal("workflow was not persisted")
	}
}

func TestCreateWorkflowFailureDoesNotPersist(t *testing.T) {
	svc, store := newTestService(t)

	if _, err := svc.CreateWorkflow("nonsense", "u1", "alice", nil); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if n := len(store.Load().Workflows); n != 0 {
		t.Fatalf("workflows = %d, want 0", n)
	}
}

func TestProcessDueAndSubmitResponseRoundTrip(t *testing.T) {
	svc, store := newTestService(t)

	if _, err := svc.CreateWorkflow(state.TypeReplyTrack, "u1", "alice", map[string]string{"reply_tweet_id": "r1"}); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	// First pass schedules the audit 48h out.
	_, task, status, err := svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if task != nil {
		t.Fatalf("task = %+v", task)
	}
	if status != "1 active, no tasks" {
		t.Fatalf("status = %q", status)
	}

	// Second pass finds the tracker gated.
	_, _, status, err = svc.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if !strings.Contains(status, "1 waiting") {
		t.Fatalf("status = %q", status)
	}

	// The audit schedule survives the round trip to disk.
	doc := store.Load()
	if len(doc.Workflows) != 1 || doc.Workflows[0].CheckAfter == "" {
		t.Fatalf("persisted workflows = %+v", doc.Workflows)
	}
}

func TestSubmitResponseRequiresPausedWorkflow(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.SubmitResponse("fc:nobody", "hello"); err == nil {
		t.Fatal("expected error for unknown workflow")
	}
}

func TestStatusFiltersAndDoesNotMutate(t *testing.T) {
	svc, store := newTestService(t)

	if _, err := svc.CreateWorkflow(state.TypeFollowCycle, "u1", "alice", nil); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if _, err := svc.CreateWorkflow(state.TypeReplyTrack, "u2", "bob", nil); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	if got := svc.Status("", false); len(got) != 2 {
		t.Fatalf("active = %d, want 2", len(got))
	}
	if got := svc.Status(state.TypeFollowCycle, false); len(got) != 1 {
		t.Fatalf("filtered = %d, want 1", len(got))
	}
	if n := len(store.Load().Workflows); n != 2 {
		t.Fatalf("workflows on disk = %d, want 2", n)
	}
}

func TestRecordMentionPersists(t *testing.T) {
	svc, store := newTestService(t)

	if err := svc.RecordMention("u9"); err != nil {
		t.Fatalf("RecordMention: %v", err)
	}
	if !store.Load().Mentioned("u9") {
		t.Fatal("mention was not persisted")
	}
}

func TestBudgetSummary(t *testing.T) {
	svc, _ := newTestService(t)

	got := svc.BudgetSummary()
	if !strings.Contains(got, "0/unlimited replies used") {
		t.Fatalf("summary = %q", got)
	}
}

func TestCleanupBatchValidation(t *testing.T) {
	svc, _ := newTestService(t)

	if _, _, err := svc.CleanupBatch(context.Background(), 0, 5); err == nil {
		t.Fatal("expected error for non-positive max_unfollow")
	}

	unfollowed, skipped, err := svc.CleanupBatch(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("CleanupBatch: %v", err)
	}
	if len(unfollowed) != 0 || len(skipped) != 0 {
		t.Fatalf("unfollowed = %v, skipped = %v", unfollowed, skipped)
	}
}
