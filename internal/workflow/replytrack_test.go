package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/platform"
	"github.com/warblehq/warble/internal/state"
)

func newReplyTrack(t *testing.T, e *Engine, doc *state.Document, replyTweetID string) *state.Workflow {
	t.Helper()
	ctx := map[string]string{}
	if replyTweetID != "" {
		ctx["reply_tweet_id"] = replyTweetID
	}
	wf, err := e.CreateWorkflow(doc, state.TypeReplyTrack, "u1", "alice", ctx)
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	return wf
}

// TestReplyTrackLifecycle walks a tracker from creation through the 48h wait
// to the audit, deleting a reply nobody engaged with.
func TestReplyTrackLifecycle(t *testing.T) {
	clock := &fixedClock{now: testNow}
	api := &fakeAPI{}
	e := newTestEngine(api, clock)
	doc := state.NewDocument(testNow)
	wf := newReplyTrack(t, e, doc, "r1")

	// First pass schedules the audit and stops.
	e.advance(context.Background(), doc, wf)
	if wf.CurrentStep != StepWaitingAudit {
		t.Fatalf("CurrentStep = %q, want %q", wf.CurrentStep, StepWaitingAudit)
	}
	wantGate := testNow.Add(auditWait).Format(time.RFC3339)
	if wf.CheckAfter != wantGate {
		t.Fatalf("CheckAfter = %q, want %q", wf.CheckAfter, wantGate)
	}

	// 47 hours in, the gate holds.
	if wf.Due(testNow.Add(47 * time.Hour)) {
		t.Fatal("tracker must not be due before the 48h mark")
	}

	// 49 hours in, the audit runs and deletes the unengaged reply.
	clock.now = testNow.Add(49 * time.Hour)
	if !wf.Due(clock.now) {
		t.Fatal("tracker must be due after the 48h mark")
	}
	e.advance(context.Background(), doc, wf)
	if wf.Outcome != OutcomeDeletedLowEngagement {
		t.Fatalf("Outcome = %q, want %q", wf.Outcome, OutcomeDeletedLowEngagement)
	}
	if api.called("delete:r1") != 1 {
		t.Fatalf("calls = %v", api.calls)
	}
	if doc.Budget.Deletes != 1 {
		t.Fatalf("Budget.Deletes = %d, want 1", doc.Budget.Deletes)
	}
	if wf.Context.AuditLikes != "0" || wf.Context.AuditReplies != "0" {
		t.Fatalf("audit context = %+v", wf.Context)
	}
}

func TestAuditKeepsEngagedTweet(t *testing.T) {
	clock := &fixedClock{now: testNow}
	api := &fakeAPI{metricsFn: func(string) (platform.Metrics, error) {
		return platform.Metrics{Likes: 3, Replies: 1, Impressions: 250}, nil
	}}
	e := newTestEngine(api, clock)
	doc := state.NewDocument(testNow)
	wf := newReplyTrack(t, e, doc, "r1")
	wf.CurrentStep = StepAudit

	e.advance(context.Background(), doc, wf)
	if wf.Outcome != OutcomeAuditedKept {
		t.Fatalf("Outcome = %q, want %q", wf.Outcome, OutcomeAuditedKept)
	}
	if api.called("delete:") != 0 {
		t.Fatal("engaged tweet must not be deleted")
	}
	if wf.Context.AuditLikes != "3" || wf.Context.AuditReplies != "1" || wf.Context.AuditImpressions != "250" {
		t.Fatalf("audit context = %+v", wf.Context)
	}
}

func TestAuditWithoutTweetEndsImmediately(t *testing.T) {
	clock := &fixedClock{now: testNow}
	api := &fakeAPI{}
	e := newTestEngine(api, clock)
	doc := state.NewDocument(testNow)
	wf := newReplyTrack(t, e, doc, "")
	wf.CurrentStep = StepAudit

	e.advance(context.Background(), doc, wf)
	if wf.Outcome != OutcomeNoTweetToAudit {
		t.Fatalf("Outcome = %q, want %q", wf.Outcome, OutcomeNoTweetToAudit)
	}
	if api.called("metrics:") != 0 {
		t.Fatalf("calls = %v", api.calls)
	}
}

func TestAuditMetricsFailureKeepsTweet(t *testing.T) {
	clock := &fixedClock{now: testNow}
	api := &fakeAPI{metricsFn: func(string) (platform.Metrics, error) {
		return platform.Metrics{}, fmt.Errorf("service unavailable")
	}}
	e := newTestEngine(api, clock)
	doc := state.NewDocument(testNow)
	wf := newReplyTrack(t, e, doc, "r1")
	wf.CurrentStep = StepAudit

	e.advance(context.Background(), doc, wf)
	if wf.Outcome != OutcomeAuditFailed {
		t.Fatalf("Outcome = %q, want %q", wf.Outcome, OutcomeAuditFailed)
	}
	if api.called("delete:") != 0 {
		t.Fatal("audit failure must not delete anything")
	}
}

func TestAuditDeleteBudgetBlockedKeepsTweet(t *testing.T) {
	clock := &fixedClock{now: testNow}
	api := &fakeAPI{}
	limits := openLimits()
	limits.Deletes = guard.Disabled
	e := newTestEngine(api, clock, withLimits(limits))
	doc := state.NewDocument(testNow)
	wf := newReplyTrack(t, e, doc, "r1")
	wf.CurrentStep = StepAudit

	e.advance(context.Background(), doc, wf)
	if wf.Outcome != OutcomeAuditedKept {
		t.Fatalf("Outcome = %q, want %q", wf.Outcome, OutcomeAuditedKept)
	}
	if api.called("delete:") != 0 {
		t.Fatalf("calls = %v", api.calls)
	}
}

func TestAuditDeleteFailureKeepsTweet(t *testing.T) {
	clock := &fixedClock{now: testNow}
	api := &fakeAPI{deleteFn: func(string) error { return fmt.Errorf("already deleted") }}
	e := newTestEngine(api, clock)
	doc := state.NewDocument(testNow)
	wf := newReplyTrack(t, e, doc, "r1")
	wf.CurrentStep = StepAudit

	e.advance(context.Background(), doc, wf)
	if wf.Outcome != OutcomeAuditedKept {
		t.Fatalf("Outcome = %q, want %q", wf.Outcome, OutcomeAuditedKept)
	}
	if !wf.DidAction("delete_failed") {
		t.Fatalf("actions done = %v", wf.ActionsDone)
	}
	if doc.Budget.Deletes != 0 {
		t.Fatalf("failed delete must not consume budget, got %d", doc.Budget.Deletes)
	}
}
