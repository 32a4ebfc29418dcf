// Package guard is the safety substrate for write actions: per-day budget
// counters with configurable caps and a permanent dedup registry that blocks
// re-engaging the same target twice.
package guard

import "github.com/warblehq/warble/internal/state"

// Action identifies a kind of platform action for budgeting and dedup.
type Action string

const (
	ActionReply    Action = "reply"
	ActionQuote    Action = "quote"
	ActionOriginal Action = "original"
	ActionLike     Action = "like"
	ActionRetweet  Action = "retweet"
	ActionFollow   Action = "follow"
	ActionUnfollow Action = "unfollow"
	ActionDelete   Action = "delete"

	// ActionRead covers read-only calls; it is never budgeted or deduped.
	ActionRead Action = "read"
)

// counter returns a pointer to the budget counter an action consumes, or nil
// for non-budgeted actions. Quote posts consume the reply counter: from the
// budget's point of view both are one outbound reply.
func counter(a Action, b *state.Budget) *int {
	switch a {
	case ActionReply, ActionQuote:
		return &b.Replies
	case ActionOriginal:
		return &b.Originals
	case ActionLike:
		return &b.Likes
	case ActionRetweet:
		return &b.Retweets
	case ActionFollow:
		return &b.Follows
	case ActionUnfollow:
		return &b.Unfollows
	case ActionDelete:
		return &b.Deletes
	default:
		return nil
	}
}

// dedupList returns a pointer to the engagement list an action dedups
// against, or nil for actions without one (unfollow, delete, original).
func dedupList(a Action, e *state.Engaged) *[]state.Engagement {
	switch a {
	case ActionReply:
		return &e.RepliedTo
	case ActionQuote:
		return &e.Quoted
	case ActionLike:
		return &e.Liked
	case ActionRetweet:
		return &e.Retweeted
	case ActionFollow:
		return &e.Followed
	default:
		return nil
	}
}
