package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/state"
)

// stepPosted schedules the engagement audit 48 hours after the tracked reply
// was posted.
func (e *Engine) stepPosted(_ context.Context, _ *state.Document, wf *state.Workflow) stepResult {
	due := wf.CreatedAt.Add(auditWait)
	wf.SetCheckAfter(due)
	wf.CurrentStep = StepWaitingAudit
	return stepResult{summary: fmt.Sprintf("audit of tweet %s scheduled for %s",
		wf.Context.ReplyTweetID, due.UTC().Format("2006-01-02 15:04"))}
}

// stepWaitingAudit is a gate; once due it hands off to the audit.
func (e *Engine) stepWaitingAudit(_ context.Context, _ *state.Document, wf *state.Workflow) stepResult {
	wf.CurrentStep = StepAudit
	return stepResult{proceed: true}
}

// stepAudit fetches engagement metrics for the tracked reply and deletes it
// when nobody engaged, budget permitting. Any failure path keeps the tweet:
// the fail-safe direction is inaction.
func (e *Engine) stepAudit(ctx context.Context, doc *state.Document, wf *state.Workflow) stepResult {
	replyID := wf.Context.ReplyTweetID
	if replyID == "" {
		wf.Outcome = OutcomeNoTweetToAudit
		return stepResult{summary: "no tracked tweet to audit"}
	}

	m, err := e.api.GetMetrics(ctx, replyID)
	if err != nil {
		wf.Outcome = OutcomeAuditFailed
		return stepResult{summary: fmt.Sprintf("metrics fetch for tweet %s failed: %v; keeping tweet", replyID, err)}
	}

	wf.Context.AuditLikes = strconv.Itoa(m.Likes)
	wf.Context.AuditReplies = strconv.Itoa(m.Replies)
	wf.Context.AuditImpressions = strconv.Itoa(m.Impressions)

	if m.Likes > 0 || m.Replies > 0 {
		wf.Outcome = OutcomeAuditedKept
		return stepResult{summary: fmt.Sprintf("tweet %s has engagement (%d likes, %d replies); keeping",
			replyID, m.Likes, m.Replies)}
	}

	if err := guard.CheckBudget(guard.ActionDelete, doc, e.limits, e.clock); err != nil {
		wf.Outcome = OutcomeAuditedKept
		return stepResult{summary: fmt.Sprintf("tweet %s has zero engagement but delete is blocked: %v; keeping", replyID, err)}
	}
	if e.attempt(wf, "deleted_low_engagement", "delete_failed", func() error {
		return e.api.Delete(ctx, replyID)
	}) {
		e.record(guard.ActionDelete, "", wf.ID, doc)
		wf.Outcome = OutcomeDeletedLowEngagement
		return stepResult{summary: fmt.Sprintf("deleted low-engagement tweet %s", replyID)}
	}
	wf.Outcome = OutcomeAuditedKept
	return stepResult{summary: fmt.Sprintf("could not delete tweet %s; keeping", replyID)}
}
