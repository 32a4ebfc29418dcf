// Package platform defines the narrow capability interface the workflow
// engine uses to act on the social platform, plus an HTTP client
// implementing it against an X-API-v2-style surface.
package platform

import "context"

// Profile is a user profile snapshot.
type Profile struct {
	ID            string
	Username      string
	PinnedTweetID string
	FollowerCount int
}

// Post is a single timeline entry.
type Post struct {
	ID      string
	Text    string
	IsReply bool
}

// FollowingPage is one page of a user's following list.
type FollowingPage struct {
	IDs       []string
	NextToken string
}

// Metrics is the public engagement metrics of a tweet.
type Metrics struct {
	Likes       int
	Replies     int
	Impressions int
}

// User is a minimal user record, as returned by the non-follower sweep.
type User struct {
	ID            string
	Username      string
	FollowerCount int
}

// API is the capability interface consumed by the workflow engine. All
// methods are blocking; timeouts and cancellation are the implementation's
// concern via ctx.
type API interface {
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	Like(ctx context.Context, tweetID string) error
	Unlike(ctx context.Context, tweetID string) error
	// Post publishes a tweet. replyToID and quoteOfID are optional; at most
	// one should be set. Returns the new tweet id.
	Post(ctx context.Context, text, replyToID, quoteOfID string) (string, error)
	Delete(ctx context.Context, tweetID string) error
	GetProfile(ctx context.Context, userID string) (Profile, error)
	GetRecentPosts(ctx context.Context, userID string, limit int) ([]Post, error)
	GetFollowingPage(ctx context.Context, userID string, pageSize int, token string) (FollowingPage, error)
	GetMetrics(ctx context.Context, tweetID string) (Metrics, error)
	// LookupUserID resolves a handle to a numeric user id.
	LookupUserID(ctx context.Context, username string) (string, error)
	// AuthenticatedUserID returns the operator's own user id.
	AuthenticatedUserID(ctx context.Context) (string, error)
	// GetNonFollowers returns accounts the operator follows that do not
	// follow back, paging at most maxPages per direction.
	GetNonFollowers(ctx context.Context, maxPages int) ([]User, error)
}
