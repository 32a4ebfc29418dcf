// Package api exposes the workflow engine to callers: MCP tools for the
// agent, a small chi HTTP router for local management, and a background
// poller. Every operation is one read-modify-write transaction against the
// state document, serialized by a mutex.
package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/state"
	"github.com/warblehq/warble/internal/workflow"
)

// Service mediates all access to the persisted state document.
type Service struct {
	mu     sync.Mutex
	store  *state.Store
	engine *workflow.Engine
}

// NewService creates a Service over the given store and engine.
func NewService(store *state.Store, engine *workflow.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// ProcessDue advances every due workflow once and persists the result.
func (s *Service) ProcessDue(ctx context.Context) (summaries []string, task *workflow.Task, status string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	summaries, task, status = s.engine.ProcessDue(ctx, doc)
	if err := s.store.Save(doc); err != nil {
		return summaries, task, status, fmt.Errorf("saving state: %w", err)
	}
	return summaries, task, status, nil
}

// CreateWorkflow adds a workflow and persists the document.
func (s *Service) CreateWorkflow(typ state.WorkflowType, targetUserID, targetUsername string, initialContext map[string]string) (*state.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	wf, err := s.engine.CreateWorkflow(doc, typ, targetUserID, targetUsername, initialContext)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(doc); err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}
	return wf, nil
}

// SubmitResponse stores agent-supplied input on a paused workflow.
func (s *Service) SubmitResponse(workflowID, response string) (*state.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	wf, err := s.engine.SubmitResponse(doc, workflowID, response)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(doc); err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}
	return wf, nil
}

// Status lists workflows without mutating state.
func (s *Service) Status(typeFilter state.WorkflowType, includeCompleted bool) []*state.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	return s.engine.GetStatus(doc, typeFilter, includeCompleted)
}

// CleanupBatch sweeps non-followers and persists the result.
func (s *Service) CleanupBatch(ctx context.Context, maxUnfollow, maxPages int) (unfollowed, skipped []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	unfollowed, skipped, err = s.engine.CleanupBatch(ctx, doc, maxUnfollow, maxPages)
	if err != nil {
		return nil, nil, err
	}
	if saveErr := s.store.Save(doc); saveErr != nil {
		return unfollowed, skipped, fmt.Errorf("saving state: %w", saveErr)
	}
	return unfollowed, skipped, nil
}

// RecordMention notes that a user referenced the operator; this lets later
// replies to them be direct instead of quoted.
func (s *Service) RecordMention(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	doc.AddMention(userID)
	if err := s.store.Save(doc); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// BudgetSummary renders the current daily-budget usage.
func (s *Service) BudgetSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.store.Load()
	return guard.FormatSummary(doc, s.engine.Limits(), s.engine.Clock())
}
