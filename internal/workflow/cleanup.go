package workflow

import (
	"context"
	"fmt"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/state"
)

// CleanupBatch is a one-shot sweep over accounts the operator follows that do
// not follow back. Protected accounts and targets of any active workflow are
// skipped; the sweep hard-stops the moment the unfollow budget runs out. An
// individual failed unfollow is skipped, not fatal.
func (e *Engine) CleanupBatch(ctx context.Context, doc *state.Document, maxUnfollow, maxPages int) (unfollowed, skipped []string, err error) {
	if maxUnfollow <= 0 {
		return nil, nil, fmt.Errorf("max_unfollow must be positive")
	}
	if maxPages <= 0 || maxPages > DefaultCleanupPages {
		maxPages = DefaultCleanupPages
	}

	users, err := e.api.GetNonFollowers(ctx, maxPages)
	if err != nil {
		return nil, nil, fmt.Errorf("listing non-followers: %w", err)
	}

	activeTargets := doc.ActiveTargets()
	for _, u := range users {
		if len(unfollowed) >= maxUnfollow {
			break
		}
		if e.protected.MatchesAny(u.Username, u.ID) {
			skipped = append(skipped, fmt.Sprintf("@%s (protected)", u.Username))
			continue
		}
		if activeTargets[u.ID] {
			skipped = append(skipped, fmt.Sprintf("@%s (managed by an active workflow)", u.Username))
			continue
		}
		if budgetErr := guard.CheckBudget(guard.ActionUnfollow, doc, e.limits, e.clock); budgetErr != nil {
			e.log.Info("cleanup batch stopped, unfollow budget exhausted", "unfollowed", len(unfollowed))
			break
		}
		if unfollowErr := e.api.Unfollow(ctx, u.ID); unfollowErr != nil {
			skipped = append(skipped, fmt.Sprintf("@%s (unfollow failed: %v)", u.Username, unfollowErr))
			continue
		}
		e.record(guard.ActionUnfollow, "", "", doc)
		unfollowed = append(unfollowed, "@"+u.Username)
	}
	return unfollowed, skipped, nil
}
