package guard

import (
	"strings"
	"testing"
	"time"

	"github.com/warblehq/warble/internal/state"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testDoc() *state.Document {
	return state.NewDocument(testNow)
}

func TestCheckBudget(t *testing.T) {
	clock := fixedClock{now: testNow}

	tests := []struct {
		name      string
		action    Action
		used      int
		max       int
		wantBlock bool
	}{
		{"below cap passes", ActionFollow, 9, 10, false},
		{"at cap blocks", ActionFollow, 10, 10, true},
		{"above cap blocks", ActionFollow, 11, 10, true},
		{"unlimited never blocks", ActionFollow, 100000, Unlimited, false},
		{"disabled always blocks", ActionFollow, 0, Disabled, true},
		{"quote consumes reply budget", ActionQuote, 8, 8, true},
		{"read is never budgeted", ActionRead, 0, Disabled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc()
			doc.Budget.Follows = tt.used
			doc.Budget.Replies = tt.used
			limits := Limits{Follows: tt.max, Replies: tt.max}

			err := CheckBudget(tt.action, doc, limits, clock)
			if tt.wantBlock && err == nil {
				t.Error("expected block, got nil")
			}
			if !tt.wantBlock && err != nil {
				t.Errorf("expected pass, got %v", err)
			}
		})
	}
}

func TestCheckBudgetErrorDistinguishesDisabledFromLimitReached(t *testing.T) {
	clock := fixedClock{now: testNow}
	doc := testDoc()

	err := CheckBudget(ActionFollow, doc, Limits{Follows: Disabled}, clock)
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("disabled error should say so, got %v", err)
	}

	doc.Budget.Follows = 3
	err = CheckBudget(ActionFollow, doc, Limits{Follows: 3}, clock)
	if err == nil || !strings.Contains(err.Error(), "limit reached") {
		t.Errorf("limit error should say so, got %v", err)
	}
	// Every budget error carries the full summary so the caller can
	// self-correct.
	if !strings.Contains(err.Error(), "follows used") {
		t.Errorf("error should embed the budget summary, got %v", err)
	}
}

func TestRecordActionIncrementsAndDedups(t *testing.T) {
	clock := fixedClock{now: testNow}
	doc := testDoc()

	RecordAction(ActionFollow, "u1", doc, clock)
	if doc.Budget.Follows != 1 {
		t.Errorf("follows = %d, want 1", doc.Budget.Follows)
	}
	if doc.LastWriteAt == nil || !doc.LastWriteAt.Equal(testNow) {
		t.Errorf("last_write_at = %v, want %v", doc.LastWriteAt, testNow)
	}
	if len(doc.Engaged.Followed) != 1 || doc.Engaged.Followed[0].TargetID != "u1" {
		t.Errorf("followed list = %+v", doc.Engaged.Followed)
	}

	// Quote posts dedup under quoted, not replied_to.
	RecordAction(ActionQuote, "t1", doc, clock)
	if len(doc.Engaged.Quoted) != 1 || len(doc.Engaged.RepliedTo) != 0 {
		t.Errorf("quoted = %+v, replied_to = %+v", doc.Engaged.Quoted, doc.Engaged.RepliedTo)
	}
	if doc.Budget.Replies != 1 {
		t.Errorf("quote should consume reply counter, replies = %d", doc.Budget.Replies)
	}

	// Unfollow has no dedup list; only the counter moves.
	RecordAction(ActionUnfollow, "u2", doc, clock)
	if doc.Budget.Unfollows != 1 {
		t.Errorf("unfollows = %d, want 1", doc.Budget.Unfollows)
	}

	// Empty target bumps the counter without polluting the registry.
	RecordAction(ActionLike, "", doc, clock)
	if doc.Budget.Likes != 1 || len(doc.Engaged.Liked) != 0 {
		t.Errorf("likes = %d, liked list = %+v", doc.Budget.Likes, doc.Engaged.Liked)
	}

	// Reads change nothing.
	before := doc.Budget
	RecordAction(ActionRead, "t9", doc, clock)
	if doc.Budget != before {
		t.Errorf("read should be a no-op, budget = %+v", doc.Budget)
	}
}

func TestFormatSummary(t *testing.T) {
	clock := fixedClock{now: testNow}
	doc := testDoc()
	doc.Budget.Replies = 3
	limits := Limits{Replies: 8, Originals: 5, Likes: 20, Retweets: 5, Follows: 10, Unfollows: 10, Deletes: 10}

	out := FormatSummary(doc, limits, clock)
	if !strings.Contains(out, "3/8 replies used") {
		t.Errorf("summary = %q, want substring \"3/8 replies used\"", out)
	}
	if strings.Contains(out, "last action") {
		t.Errorf("no last-action clause expected when last_write_at is nil, got %q", out)
	}

	limits.Replies = Unlimited
	out = FormatSummary(doc, limits, clock)
	if !strings.Contains(out, "3/unlimited replies used") {
		t.Errorf("summary = %q, want substring \"3/unlimited replies used\"", out)
	}

	doc.Budget.Follows = 10
	out = FormatSummary(doc, limits, clock)
	if !strings.Contains(out, "10/10 follows used (LIMIT REACHED)") {
		t.Errorf("summary = %q, want LIMIT REACHED marker", out)
	}

	limits.Deletes = Disabled
	out = FormatSummary(doc, limits, clock)
	if !strings.Contains(out, "deletes used (DISABLED)") {
		t.Errorf("summary = %q, want DISABLED marker", out)
	}

	at := testNow.Add(-5 * time.Minute)
	doc.LastWriteAt = &at
	out = FormatSummary(doc, limits, clock)
	if !strings.Contains(out, "| last action: 5m ago") {
		t.Errorf("summary = %q, want last-action clause", out)
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-3 * time.Second, "just now"},
		{500 * time.Millisecond, "just now"},
		{45 * time.Second, "45s ago"},
		{90 * time.Second, "1m ago"},
		{3 * time.Hour, "3h ago"},
		{49 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := relativeTime(tt.d); got != tt.want {
			t.Errorf("relativeTime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
