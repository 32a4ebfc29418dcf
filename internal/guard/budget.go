package guard

import (
	"fmt"
	"strings"
	"time"

	"github.com/warblehq/warble/internal/state"
)

// Unlimited and Disabled are the sentinel budget values.
const (
	Unlimited = -1
	Disabled  = 0
)

// Limits holds the configured daily maximum for each budgeted action kind.
// -1 means unlimited, 0 means the action is disabled, any other value is a
// daily cap.
type Limits struct {
	Replies   int
	Originals int
	Likes     int
	Retweets  int
	Follows   int
	Unfollows int
	Deletes   int
}

func (l Limits) max(a Action) int {
	switch a {
	case ActionReply, ActionQuote:
		return l.Replies
	case ActionOriginal:
		return l.Originals
	case ActionLike:
		return l.Likes
	case ActionRetweet:
		return l.Retweets
	case ActionFollow:
		return l.Follows
	case ActionUnfollow:
		return l.Unfollows
	case ActionDelete:
		return l.Deletes
	default:
		return Unlimited
	}
}

// CheckBudget reports whether an action may be performed today. Non-budgeted
// actions always pass. The returned error carries a full remaining-budget
// summary so the caller can self-correct.
func CheckBudget(a Action, doc *state.Document, limits Limits, clock state.Clock) error {
	used := counter(a, &doc.Budget)
	if used == nil {
		return nil
	}
	max := limits.max(a)
	switch {
	case max == Unlimited:
		return nil
	case max == Disabled:
		return fmt.Errorf("%s actions are disabled by configuration. Budget: %s", a, FormatSummary(doc, limits, clock))
	case *used >= max:
		return fmt.Errorf("daily %s limit reached (%d/%d). Budget: %s", a, *used, max, FormatSummary(doc, limits, clock))
	default:
		return nil
	}
}

// RecordAction increments the matching counter, stamps the last-write time,
// and appends to the dedup registry for mapped action kinds with a non-empty
// target. Read-only actions are no-ops.
func RecordAction(a Action, targetID string, doc *state.Document, clock state.Clock) {
	used := counter(a, &doc.Budget)
	if used == nil {
		return
	}
	*used++
	now := clock.Now()
	doc.LastWriteAt = &now

	if list := dedupList(a, &doc.Engaged); list != nil && targetID != "" {
		*list = append(*list, state.Engagement{TargetID: targetID, At: now})
	}
}

// FormatSummary renders all seven counters plus an optional last-action
// clause, e.g. "3/8 replies used, 0/unlimited likes used | last action: 5m ago".
func FormatSummary(doc *state.Document, limits Limits, clock state.Clock) string {
	b := doc.Budget
	parts := []string{
		formatCounter(b.Replies, limits.Replies, "replies"),
		formatCounter(b.Originals, limits.Originals, "originals"),
		formatCounter(b.Likes, limits.Likes, "likes"),
		formatCounter(b.Retweets, limits.Retweets, "retweets"),
		formatCounter(b.Follows, limits.Follows, "follows"),
		formatCounter(b.Unfollows, limits.Unfollows, "unfollows"),
		formatCounter(b.Deletes, limits.Deletes, "deletes"),
	}
	out := strings.Join(parts, ", ")
	if doc.LastWriteAt != nil {
		out += " | last action: " + relativeTime(clock.Now().Sub(*doc.LastWriteAt))
	}
	return out
}

func formatCounter(used, max int, label string) string {
	switch {
	case max == Unlimited:
		return fmt.Sprintf("%d/unlimited %s used", used, label)
	case max == Disabled:
		return fmt.Sprintf("%d/%d %s used (DISABLED)", used, max, label)
	case used >= max:
		return fmt.Sprintf("%d/%d %s used (LIMIT REACHED)", used, max, label)
	default:
		return fmt.Sprintf("%d/%d %s used", used, max, label)
	}
}

// relativeTime renders a duration in the first unit that yields a value >= 1.
// Negative durations (clock skew) render as "just now".
func relativeTime(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
