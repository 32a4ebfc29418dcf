package state

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowID derives the stable id for a workflow. Follow cycles get one id
// per target so duplicates collide; reply trackers carry a creation-time
// suffix so several can coexist for the same user.
func WorkflowID(typ WorkflowType, username string, createdAt time.Time) string {
	switch typ {
	case TypeFollowCycle:
		return "fc:" + strings.ToLower(username)
	case TypeReplyTrack:
		return fmt.Sprintf("rt:%s:%d", strings.ToLower(username), createdAt.UnixMilli())
	default:
		return string(typ) + ":" + strings.ToLower(username)
	}
}

// ActiveCount returns the number of non-terminal workflows.
func (d *Document) ActiveCount() int {
	n := 0
	for _, wf := range d.Workflows {
		if wf.Active() {
			n++
		}
	}
	return n
}

// FindActive returns the active workflow with the given id, or nil. Terminal
// workflows sharing the id from a prior cycle are never matched.
func (d *Document) FindActive(id string) *Workflow {
	for _, wf := range d.Workflows {
		if wf.Active() && wf.ID == id {
			return wf
		}
	}
	return nil
}

// HasActiveTarget reports whether an active workflow of the given type
// already targets the user.
func (d *Document) HasActiveTarget(typ WorkflowType, targetUserID string) bool {
	for _, wf := range d.Workflows {
		if wf.Active() && wf.Type == typ && wf.TargetUserID == targetUserID {
			return true
		}
	}
	return false
}

// ActiveTargets returns the set of user ids targeted by any active workflow,
// regardless of type.
func (d *Document) ActiveTargets() map[string]bool {
	targets := make(map[string]bool)
	for _, wf := range d.Workflows {
		if wf.Active() {
			targets[wf.TargetUserID] = true
		}
	}
	return targets
}

// AddWorkflow appends a workflow, enforcing the duplicate-active-target rule
// and the active-workflow cap.
func (d *Document) AddWorkflow(wf *Workflow, maxActive int) error {
	if d.HasActiveTarget(wf.Type, wf.TargetUserID) {
		return fmt.Errorf("an active %s workflow already targets @%s", wf.Type, wf.TargetUsername)
	}
	if maxActive > 0 && d.ActiveCount() >= maxActive {
		return fmt.Errorf("workflow limit reached (%d active); finish or clean up existing workflows first", maxActive)
	}
	d.Workflows = append(d.Workflows, wf)
	return nil
}
