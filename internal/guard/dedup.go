package guard

import (
	"fmt"

	"github.com/warblehq/warble/internal/state"
)

// CheckDedup reports whether the target was already engaged for the given
// action kind. Action kinds without a dedup list always pass. The error
// message carries the original engagement timestamp.
func CheckDedup(a Action, targetID string, doc *state.Document) error {
	list := dedupList(a, &doc.Engaged)
	if list == nil || targetID == "" {
		return nil
	}
	for _, e := range *list {
		if e.TargetID == targetID {
			return fmt.Errorf("already performed %s on %s at %s; skipping to avoid re-engagement",
				a, targetID, e.At.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
