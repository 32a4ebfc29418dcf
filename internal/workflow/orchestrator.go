package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/warblehq/warble/internal/state"
)

// stepResult is what one step handler reports back to the advance loop.
type stepResult struct {
	summary string
	task    *Task
	// proceed asks the loop to run the (already updated) current step in
	// the same pass.
	proceed bool
}

type stepFunc func(ctx context.Context, doc *state.Document, wf *state.Workflow) stepResult

// ProcessDue makes one pass over all workflows, advancing every active one
// whose check-after gate has elapsed. It returns the per-step summaries, at
// most one pending task for external input (further ones are deferred to a
// later call), and an overall batch status line.
func (e *Engine) ProcessDue(ctx context.Context, doc *state.Document) (summaries []string, task *Task, status string) {
	now := e.clock.Now()
	waiting := 0
	processed := 0
	var earliest time.Time

	for _, wf := range doc.Workflows {
		if !wf.Active() {
			continue
		}
		if !wf.Due(now) {
			waiting++
			if t, err := time.Parse(time.RFC3339, wf.CheckAfter); err == nil {
				if earliest.IsZero() || t.Before(earliest) {
					earliest = t
				}
			}
			continue
		}
		processed++
		stepSummaries, stepTask := e.advance(ctx, doc, wf)
		summaries = append(summaries, stepSummaries...)
		if stepTask != nil && task == nil {
			task = stepTask
		}
	}

	active := doc.ActiveCount()
	switch {
	case task != nil:
		status = fmt.Sprintf("task ready: workflow %s needs %s", task.WorkflowID, task.Kind)
	case active == 0:
		status = "no active workflows"
	case processed == 0 && waiting > 0:
		status = fmt.Sprintf("%d waiting (earliest check-back: %s)", waiting, earliest.Format(state.DateLayout))
	default:
		status = fmt.Sprintf("%d active, no tasks", active)
	}
	return summaries, task, status
}

// advance runs a workflow through its current step and any steps it
// auto-chains into, bounded by maxChainedSteps. One workflow's failure never
// escapes this method; failures surface as summaries and outcomes.
func (e *Engine) advance(ctx context.Context, doc *state.Document, wf *state.Workflow) ([]string, *Task) {
	var summaries []string
	for i := 0; i < maxChainedSteps; i++ {
		h := e.handlerFor(wf)
		if h == nil {
			summaries = append(summaries, fmt.Sprintf("[%s] unknown step %q; leaving workflow untouched", wf.ID, wf.CurrentStep))
			return summaries, nil
		}
		res := h(ctx, doc, wf)
		if res.summary != "" {
			summaries = append(summaries, fmt.Sprintf("[%s] %s", wf.ID, res.summary))
		}
		if res.task != nil {
			return summaries, res.task
		}
		if !res.proceed || !wf.Active() {
			return summaries, nil
		}
	}
	summaries = append(summaries, fmt.Sprintf("[%s] step chain limit reached; resuming next pass", wf.ID))
	return summaries, nil
}

func (e *Engine) handlerFor(wf *state.Workflow) stepFunc {
	switch wf.Type {
	case state.TypeFollowCycle:
		switch wf.CurrentStep {
		case StepExecuteFollow:
			return e.stepExecuteFollow
		case StepGetReplyContext:
			return e.stepGetReplyContext
		case StepNeedReplyText:
			return e.stepNeedReplyText
		case StepPostReply:
			return e.stepPostReply
		case StepWaiting:
			return e.stepWaiting
		case StepCheckFollowback:
			return e.stepCheckFollowback
		case StepCleanup:
			return e.stepCleanup
		}
	case state.TypeReplyTrack:
		switch wf.CurrentStep {
		case StepPosted:
			return e.stepPosted
		case StepWaitingAudit:
			return e.stepWaitingAudit
		case StepAudit:
			return e.stepAudit
		}
	}
	return nil
}
