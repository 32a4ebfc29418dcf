// Package protect implements the protected-account policy: a configured list
// of handles that must never be unfollowed or otherwise cleaned up.
package protect

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Resolver looks up the numeric user id behind a handle. Implemented by the
// platform client.
type Resolver interface {
	LookupUserID(ctx context.Context, username string) (string, error)
}

type entry struct {
	handle string // lowercase, no @
	userID string // empty until resolved
}

// List is a set of protected accounts, matchable by handle and, once
// resolved, by numeric id.
type List struct {
	mu      sync.RWMutex
	entries []entry
}

// Parse builds a List from a comma-separated handle list. Handles are
// case-insensitive and a leading @ is optional.
func Parse(raw string) *List {
	l := &List{}
	for _, part := range strings.Split(raw, ",") {
		h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "@"))
		if h == "" {
			continue
		}
		l.entries = append(l.entries, entry{handle: h})
	}
	return l
}

// Len returns the number of configured entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Resolve looks up numeric ids for all entries with bounded concurrency.
// Intended to run once at process start, before the engine issues any of its
// own (strictly sequential) remote calls. Entries whose lookup fails stay
// unresolved and keep matching by handle only.
func (l *List) Resolve(ctx context.Context, r Resolver) {
	l.mu.RLock()
	handles := make([]string, len(l.entries))
	for i, e := range l.entries {
		handles[i] = e.handle
	}
	l.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	ids := make([]string, len(handles))
	for i, h := range handles {
		g.Go(func() error {
			id, err := r.LookupUserID(ctx, h)
			if err != nil {
				slog.Warn("could not resolve protected account, matching by handle only",
					"handle", h, "error", err)
				return nil
			}
			ids[i] = id
			return nil
		})
	}
	g.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if ids[i] != "" {
			l.entries[i].userID = ids[i]
		}
	}
}

// Matches reports whether ref identifies a protected account. ref may be a
// handle (case-insensitive, @ optional) or a numeric user id.
func (l *List) Matches(ref string) bool {
	ref = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ref), "@"))
	if ref == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.handle == ref || (e.userID != "" && e.userID == ref) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether any of the given refs identifies a protected
// account.
func (l *List) MatchesAny(refs ...string) bool {
	for _, ref := range refs {
		if l.Matches(ref) {
			return true
		}
	}
	return false
}
