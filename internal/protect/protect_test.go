package protect

import (
	"context"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	l := Parse(" @Alice, bob ,,@CAROL,")
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	for _, ref := range []string{"alice", "Alice", "@ALICE", "bob", "carol"} {
		if !l.Matches(ref) {
			t.Errorf("Matches(%q) = false, want true", ref)
		}
	}
	if l.Matches("dave") {
		t.Error("unlisted handle should not match")
	}
	if l.Matches("") {
		t.Error("empty ref should not match")
	}
}

func TestParseEmpty(t *testing.T) {
	if l := Parse(""); l.Len() != 0 {
		t.Errorf("empty list should have no entries, got %d", l.Len())
	}
}

type fakeResolver struct {
	ids map[string]string
}

func (r fakeResolver) LookupUserID(_ context.Context, username string) (string, error) {
	id, ok := r.ids[username]
	if !ok {
		return "", errors.New("user not found")
	}
	return id, nil
}

func TestResolveEnablesIDMatching(t *testing.T) {
	l := Parse("alice,bob")
	l.Resolve(context.Background(), fakeResolver{ids: map[string]string{"alice": "111"}})

	if !l.Matches("111") {
		t.Error("resolved id should match")
	}
	// bob's lookup failed; he still matches by handle.
	if !l.Matches("bob") {
		t.Error("unresolved entry should still match by handle")
	}
	if l.Matches("222") {
		t.Error("unknown id should not match")
	}
}

func TestMatchesAny(t *testing.T) {
	l := Parse("alice")
	l.Resolve(context.Background(), fakeResolver{ids: map[string]string{"alice": "111"}})

	if !l.MatchesAny("zoe", "111") {
		t.Error("MatchesAny should match on the resolved id")
	}
	if l.MatchesAny("zoe", "222") {
		t.Error("MatchesAny should not match unrelated refs")
	}
}
