package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// engagementRetention bounds how long dedup entries survive.
	engagementRetention = 90 * 24 * time.Hour
	// workflowRetention bounds how long terminal workflows survive. Active
	// workflows are never pruned.
	workflowRetention = 30 * 24 * time.Hour
	// maxMentions caps the mentioned_by list; oldest entries are evicted.
	maxMentions = 10000
)

// Store loads and saves the state document at a fixed path.
type Store struct {
	path  string
	clock Clock
	log   *slog.Logger
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path, clock: RealClock{}, log: slog.Default()}
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(path string, clock Clock) *Store {
	return &Store{path: path, clock: clock, log: slog.Default()}
}

// Path returns the file path the store reads and writes.
func (s *Store) Path() string { return s.path }

// NewDocument returns a fresh default document dated to now.
func NewDocument(now time.Time) *Document {
	return &Document{
		Budget:    Budget{Date: now.Format(DateLayout)},
		Workflows: []*Workflow{},
	}
}

// Load reads the state document. A missing file yields a fresh default
// document. A corrupt file logs a warning and also yields a fresh document;
// corruption is never fatal. Individually malformed fields fall back to
// their defaults. Budget counters reset when the stored date is not today,
// and engagement and workflow lists are pruned by age on every load.
func (s *Store) Load() *Document {
	now := s.clock.Now()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("could not read state file, starting fresh", "path", s.path, "error", err)
		}
		return NewDocument(now)
	}

	doc := decodeDocument(data, s.log)
	if doc == nil {
		s.log.Warn("state file is corrupt, starting fresh", "path", s.path)
		return NewDocument(now)
	}

	doc.RolloverBudget(now)
	doc.Prune(now)
	return doc
}

// Save writes the document to a sibling temp file and renames it over the
// target. The rename is the only operation observable as "done", so a crash
// mid-write leaves the previous file intact.
func (s *Store) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// decodeDocument reads the document permissively: each top-level field is
// decoded independently, falling back to its default on a type mismatch.
// Returns nil only when the outer object itself cannot be parsed.
func decodeDocument(data []byte, log *slog.Logger) *Document {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	doc := &Document{Workflows: []*Workflow{}}

	if rm, ok := raw["budget"]; ok {
		if err := json.Unmarshal(rm, &doc.Budget); err != nil {
			log.Warn("discarding malformed budget field", "error", err)
			doc.Budget = Budget{}
		}
	}
	if rm, ok := raw["last_write_at"]; ok {
		var t time.Time
		if err := json.Unmarshal(rm, &t); err == nil {
			doc.LastWriteAt = &t
		}
	}
	if rm, ok := raw["engaged"]; ok {
		if err := json.Unmarshal(rm, &doc.Engaged); err != nil {
			log.Warn("discarding malformed engaged field", "error", err)
			doc.Engaged = Engaged{}
		}
	}
	if rm, ok := raw["mentioned_by"]; ok {
		if err := json.Unmarshal(rm, &doc.MentionedBy); err != nil {
			log.Warn("discarding malformed mentioned_by field", "error", err)
			doc.MentionedBy = nil
		}
	}
	if rm, ok := raw["workflows"]; ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(rm, &entries); err != nil {
			log.Warn("discarding malformed workflows field", "error", err)
		} else {
			for _, e := range entries {
				var wf Workflow
				if err := json.Unmarshal(e, &wf); err != nil || wf.ID == "" {
					log.Warn("dropping malformed workflow entry")
					continue
				}
				doc.Workflows = append(doc.Workflows, &wf)
			}
		}
	}

	sanitizeBudget(&doc.Budget)
	sanitizeEngaged(&doc.Engaged)
	return doc
}

func sanitizeBudget(b *Budget) {
	clamp := func(n *int) {
		if *n < 0 {
			*n = 0
		}
	}
	clamp(&b.Replies)
	clamp(&b.Originals)
	clamp(&b.Likes)
	clamp(&b.Retweets)
	clamp(&b.Follows)
	clamp(&b.Unfollows)
	clamp(&b.Deletes)
}

func sanitizeEngaged(e *Engaged) {
	dropEmpty := func(list []Engagement) []Engagement {
		out := list[:0]
		for _, en := range list {
			if en.TargetID != "" {
				out = append(out, en)
			}
		}
		return out
	}
	e.RepliedTo = dropEmpty(e.RepliedTo)
	e.Liked = dropEmpty(e.Liked)
	e.Retweeted = dropEmpty(e.Retweeted)
	e.Quoted = dropEmpty(e.Quoted)
	e.Followed = dropEmpty(e.Followed)
}

// RolloverBudget resets all counters iff the stored date is not today.
func (d *Document) RolloverBudget(now time.Time) {
	today := now.Format(DateLayout)
	if d.Budget.Date == today {
		return
	}
	d.Budget = Budget{Date: today}
}

// Prune removes engagement entries older than 90 days and terminal workflows
// older than 30 days. Active workflows are kept regardless of age.
func (d *Document) Prune(now time.Time) {
	engagementCutoff := now.Add(-engagementRetention)
	pruneList := func(list []Engagement) []Engagement {
		out := list[:0]
		for _, e := range list {
			if e.At.After(engagementCutoff) {
				out = append(out, e)
			}
		}
		return out
	}
	d.Engaged.RepliedTo = pruneList(d.Engaged.RepliedTo)
	d.Engaged.Liked = pruneList(d.Engaged.Liked)
	d.Engaged.Retweeted = pruneList(d.Engaged.Retweeted)
	d.Engaged.Quoted = pruneList(d.Engaged.Quoted)
	d.Engaged.Followed = pruneList(d.Engaged.Followed)

	workflowCutoff := now.Add(-workflowRetention)
	kept := d.Workflows[:0]
	for _, wf := range d.Workflows {
		if !wf.Active() && wf.CreatedAt.Before(workflowCutoff) {
			continue
		}
		kept = append(kept, wf)
	}
	d.Workflows = kept
}

// AddMention records a user id that referenced the operator. The list is
// deduplicated and capped; the oldest entry is evicted when full.
func (d *Document) AddMention(userID string) {
	if userID == "" {
		return
	}
	for _, id := range d.MentionedBy {
		if id == userID {
			return
		}
	}
	d.MentionedBy = append(d.MentionedBy, userID)
	if len(d.MentionedBy) > maxMentions {
		d.MentionedBy = d.MentionedBy[len(d.MentionedBy)-maxMentions:]
	}
}

// Mentioned reports whether a user id is known to have mentioned the
// operator.
func (d *Document) Mentioned(userID string) bool {
	for _, id := range d.MentionedBy {
		if id == userID {
			return true
		}
	}
	return false
}
