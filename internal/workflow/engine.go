// Package workflow implements the persisted, resumable state machines that
// drive bounded engagement against the platform: follow cycles and reply
// trackers, plus the orchestrator that advances them.
package workflow

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/platform"
	"github.com/warblehq/warble/internal/protect"
	"github.com/warblehq/warble/internal/state"
)

// Follow-cycle steps.
const (
	StepExecuteFollow   state.Step = "execute_follow"
	StepGetReplyContext state.Step = "get_reply_context"
	StepNeedReplyText   state.Step = "need_reply_text"
	StepPostReply       state.Step = "post_reply"
	StepWaiting         state.Step = "waiting"
	StepCheckFollowback state.Step = "check_followback"
	StepCleanup         state.Step = "cleanup"
)

// Reply-track steps.
const (
	StepPosted       state.Step = "posted"
	StepWaitingAudit state.Step = "waiting_audit"
	StepAudit        state.Step = "audit"
)

// Terminal outcomes.
const (
	OutcomeSkippedDuplicate     state.Outcome = "skipped_duplicate"
	OutcomeFollowFailed         state.Outcome = "follow_failed"
	OutcomeFollowedBack         state.Outcome = "followed_back"
	OutcomeProtectedKept        state.Outcome = "protected_kept"
	OutcomeCleanedUp            state.Outcome = "cleaned_up"
	OutcomePartiallyCleanedUp   state.Outcome = "partially_cleaned_up"
	OutcomeNoTweetToAudit       state.Outcome = "no_tweet_to_audit"
	OutcomeDeletedLowEngagement state.Outcome = "deleted_low_engagement"
	OutcomeAuditedKept          state.Outcome = "audited_kept"
	OutcomeAuditFailed          state.Outcome = "audit_failed"
)

const (
	// followbackWait is how long a follow cycle rests before checking
	// whether the target followed back.
	followbackWait = 7 * 24 * time.Hour
	// auditWait is how long a reply tracker rests before auditing
	// engagement on the tracked reply.
	auditWait = 48 * time.Hour
	// maxFollowbackPages bounds the followback scan so it terminates even
	// against an arbitrarily long following list.
	maxFollowbackPages = 5
	followPageSize     = 1000
	// maxChainedSteps bounds how many steps one workflow may auto-chain in
	// a single pass.
	maxChainedSteps = 8
	// DefaultMaxActive caps concurrently active workflows.
	DefaultMaxActive = 200
	// DefaultCleanupPages bounds the non-follower sweep.
	DefaultCleanupPages = 5
)

// Task is a request for external (agent-supplied) input that pauses a
// workflow at a specific step.
type Task struct {
	WorkflowID   string     `json:"workflow_id"`
	Step         state.Step `json:"step"`
	Kind         string     `json:"kind"`
	Instructions string     `json:"instructions"`
}

// ActionRecorder receives one record per performed write action. Implemented
// by the archive; failures are logged and never block the engine.
type ActionRecorder interface {
	Record(kind, targetID, workflowID string, at time.Time) error
}

// EngineConfig carries the engine's collaborators and policy knobs.
type EngineConfig struct {
	Limits    guard.Limits
	Protected *protect.List
	// SelfID is the operator's own user id, resolved at process start. If
	// empty the engine looks it up lazily for followback checks.
	SelfID    string
	MaxActive int
	Clock     state.Clock
	Recorder  ActionRecorder
	Logger    *slog.Logger
}

// Engine advances workflows against the platform, one at a time, strictly
// sequentially.
type Engine struct {
	api       platform.API
	limits    guard.Limits
	protected *protect.List
	selfID    string
	maxActive int
	clock     state.Clock
	recorder  ActionRecorder
	log       *slog.Logger
}

// NewEngine creates an Engine. Zero-value config fields get sensible
// defaults.
func NewEngine(api platform.API, cfg EngineConfig) *Engine {
	if cfg.Protected == nil {
		cfg.Protected = protect.Parse("")
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = DefaultMaxActive
	}
	if cfg.Clock == nil {
		cfg.Clock = state.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		api:       api,
		limits:    cfg.Limits,
		protected: cfg.Protected,
		selfID:    cfg.SelfID,
		maxActive: cfg.MaxActive,
		clock:     cfg.Clock,
		recorder:  cfg.Recorder,
		log:       cfg.Logger,
	}
}

// Limits returns the configured budget limits.
func (e *Engine) Limits() guard.Limits { return e.limits }

// Clock returns the engine's clock.
func (e *Engine) Clock() state.Clock { return e.clock }

// record books a performed action into the ledger, the dedup registry, and
// (best-effort) the action archive.
func (e *Engine) record(a guard.Action, targetID, workflowID string, doc *state.Document) {
	guard.RecordAction(a, targetID, doc, e.clock)
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(string(a), targetID, workflowID, e.clock.Now()); err != nil {
		e.log.Warn("could not archive action", "action", a, "error", err)
	}
}

// attempt runs a best-effort sub-step. Success logs okTag into the workflow's
// action log; failure logs failTag and swallows the error. The workflow
// always continues either way.
func (e *Engine) attempt(wf *state.Workflow, okTag, failTag string, fn func() error) bool {
	if err := fn(); err != nil {
		wf.LogAction(failTag)
		e.log.Warn("best-effort action failed", "workflow", wf.ID, "action", okTag, "error", err)
		return false
	}
	wf.LogAction(okTag)
	return true
}

// CreateWorkflow validates and appends a new workflow to the document.
// Creation is rejected when an active workflow of the same type already
// targets the user, or when the active-workflow cap is reached.
func (e *Engine) CreateWorkflow(doc *state.Document, typ state.WorkflowType, targetUserID, targetUsername string, initialContext map[string]string) (*state.Workflow, error) {
	if typ != state.TypeFollowCycle && typ != state.TypeReplyTrack {
		return nil, fmt.Errorf("unknown workflow type %q (expected %s or %s)",
			typ, state.TypeFollowCycle, state.TypeReplyTrack)
	}
	targetUsername = strings.TrimPrefix(strings.TrimSpace(targetUsername), "@")
	if targetUserID == "" || targetUsername == "" {
		return nil, fmt.Errorf("target_user_id and target_username are required")
	}

	now := e.clock.Now()
	wf := &state.Workflow{
		ID:             state.WorkflowID(typ, targetUsername, now),
		Type:           typ,
		TargetUserID:   targetUserID,
		TargetUsername: targetUsername,
		CreatedAt:      now,
	}
	wf.Context.ApplyInitial(initialContext)

	switch typ {
	case state.TypeFollowCycle:
		wf.CurrentStep = StepExecuteFollow
	case state.TypeReplyTrack:
		wf.CurrentStep = StepPosted
	}

	if err := doc.AddWorkflow(wf, e.maxActive); err != nil {
		return nil, err
	}
	return wf, nil
}

// SubmitResponse delivers agent-supplied input to the active workflow paused
// for it. The next ProcessDue call performs the resulting action; this call
// only stores the response and advances the step pointer.
func (e *Engine) SubmitResponse(doc *state.Document, workflowID, response string) (*state.Workflow, error) {
	wf := doc.FindActive(workflowID)
	if wf == nil {
		return nil, fmt.Errorf("no active workflow %q (completed workflows cannot accept responses)", workflowID)
	}
	if wf.CurrentStep != StepNeedReplyText {
		return nil, fmt.Errorf("workflow %q is at step %q and is not waiting for input", workflowID, wf.CurrentStep)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("response must not be empty")
	}
	wf.Context.ReplyText = response
	wf.CurrentStep = StepPostReply
	return wf, nil
}

// GetStatus returns workflows, optionally filtered by type, excluding
// completed ones unless asked for.
func (e *Engine) GetStatus(doc *state.Document, typeFilter state.WorkflowType, includeCompleted bool) []*state.Workflow {
	var out []*state.Workflow
	for _, wf := range doc.Workflows {
		if typeFilter != "" && wf.Type != typeFilter {
			continue
		}
		if !includeCompleted && !wf.Active() {
			continue
		}
		out = append(out, wf)
	}
	return out
}
