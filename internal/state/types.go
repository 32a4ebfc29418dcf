package state

import (
	"encoding/json"
	"time"
)

// DateLayout is the day-granularity format used for budget rollover and
// check-after comparisons.
const DateLayout = "2006-01-02"

// WorkflowType identifies which state machine drives a workflow.
type WorkflowType string

const (
	TypeFollowCycle WorkflowType = "follow_cycle"
	TypeReplyTrack  WorkflowType = "reply_track"
)

// Step is the named state a workflow is currently in. The step constants for
// each machine live in the workflow package.
type Step string

// Outcome is the terminal classification of a finished workflow. Empty means
// the workflow is still active.
type Outcome string

// Engagement records one past engagement with a target.
type Engagement struct {
	TargetID string    `json:"target_id"`
	At       time.Time `json:"at"`
}

// Budget holds today's write-action counters. Date is a DateLayout string;
// when it no longer matches the current day all counters reset on load.
type Budget struct {
	Date      string `json:"date"`
	Replies   int    `json:"replies"`
	Originals int    `json:"originals"`
	Likes     int    `json:"likes"`
	Retweets  int    `json:"retweets"`
	Follows   int    `json:"follows"`
	Unfollows int    `json:"unfollows"`
	Deletes   int    `json:"deletes"`
}

// Engaged holds the permanent (90-day) dedup lists, one per engagement kind.
// The followed list keys on user ids; the others key on tweet ids.
type Engaged struct {
	RepliedTo []Engagement `json:"replied_to"`
	Liked     []Engagement `json:"liked"`
	Retweeted []Engagement `json:"retweeted"`
	Quoted    []Engagement `json:"quoted"`
	Followed  []Engagement `json:"followed"`
}

// Context accumulates ids and text a workflow discovers along the way. All
// fields are strings so the persisted layout stays a string-to-string map.
type Context struct {
	PinnedTweetID    string `json:"pinned_tweet_id,omitempty"`
	FollowerCount    string `json:"follower_count,omitempty"`
	TargetTweetID    string `json:"target_tweet_id,omitempty"`
	TargetTweetText  string `json:"target_tweet_text,omitempty"`
	ReplyText        string `json:"reply_text,omitempty"`
	ReplyTweetID     string `json:"reply_tweet_id,omitempty"`
	AuditLikes       string `json:"audit_likes,omitempty"`
	AuditReplies     string `json:"audit_replies,omitempty"`
	AuditImpressions string `json:"audit_impressions,omitempty"`
}

// UnmarshalJSON reads a context object permissively: known keys with string
// values are kept, everything else is dropped.
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	assign := func(key string, dst *string) {
		rm, ok := raw[key]
		if !ok {
			return
		}
		var s string
		if err := json.Unmarshal(rm, &s); err == nil {
			*dst = s
		}
	}
	assign("pinned_tweet_id", &c.PinnedTweetID)
	assign("follower_count", &c.FollowerCount)
	assign("target_tweet_id", &c.TargetTweetID)
	assign("target_tweet_text", &c.TargetTweetText)
	assign("reply_text", &c.ReplyText)
	assign("reply_tweet_id", &c.ReplyTweetID)
	assign("audit_likes", &c.AuditLikes)
	assign("audit_replies", &c.AuditReplies)
	assign("audit_impressions", &c.AuditImpressions)
	return nil
}

// ApplyInitial copies known keys from a caller-supplied map into the context.
// Unknown keys are dropped.
func (c *Context) ApplyInitial(m map[string]string) {
	for k, v := range m {
		switch k {
		case "pinned_tweet_id":
			c.PinnedTweetID = v
		case "follower_count":
			c.FollowerCount = v
		case "target_tweet_id":
			c.TargetTweetID = v
		case "target_tweet_text":
			c.TargetTweetText = v
		case "reply_text":
			c.ReplyText = v
		case "reply_tweet_id":
			c.ReplyTweetID = v
		}
	}
}

// Workflow is one persisted, resumable instance of a state machine.
type Workflow struct {
	ID             string       `json:"id"`
	Type           WorkflowType `json:"type"`
	CurrentStep    Step         `json:"current_step"`
	TargetUserID   string       `json:"target_user_id"`
	TargetUsername string       `json:"target_username"`
	CreatedAt      time.Time    `json:"created_at"`
	// CheckAfter is an RFC 3339 timestamp; the workflow is not advanced
	// before it. Empty means due immediately.
	CheckAfter  string   `json:"check_after,omitempty"`
	Context     Context  `json:"context"`
	ActionsDone []string `json:"actions_done,omitempty"`
	Outcome     Outcome  `json:"outcome,omitempty"`
}

// Active reports whether the workflow has not reached a terminal outcome.
func (w *Workflow) Active() bool { return w.Outcome == "" }

// Due reports whether the workflow may be advanced at the given time.
func (w *Workflow) Due(now time.Time) bool {
	if !w.Active() {
		return false
	}
	if w.CheckAfter == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, w.CheckAfter)
	if err != nil {
		// Unparseable gate: treat as due rather than wedging the workflow.
		return true
	}
	return !now.Before(t)
}

// SetCheckAfter schedules the next advancement of the workflow.
func (w *Workflow) SetCheckAfter(t time.Time) {
	w.CheckAfter = t.UTC().Format(time.RFC3339)
}

// LogAction appends a short tag to the append-only action log.
func (w *Workflow) LogAction(tag string) {
	w.ActionsDone = append(w.ActionsDone, tag)
}

// DidAction reports whether a tag is present in the action log.
func (w *Workflow) DidAction(tag string) bool {
	for _, a := range w.ActionsDone {
		if a == tag {
			return true
		}
	}
	return false
}

// Document is the single unit of durable state.
type Document struct {
	Budget      Budget      `json:"budget"`
	LastWriteAt *time.Time  `json:"last_write_at,omitempty"`
	Engaged     Engaged     `json:"engaged"`
	MentionedBy []string    `json:"mentioned_by,omitempty"`
	Workflows   []*Workflow `json:"workflows"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
