package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/metalagman/evalrunner/internal/result"
)

// Store keeps the evidence captured during one run.
type Store struct {
	mu      sync.Mutex
	dir     string
	records []Record
	byID    map[string]int
}

// NewStore returns a store. When dir is non-empty every capture is also
// written there as <id>.png.
func NewStore(dir string) *Store {
	return &Store{dir: dir, byID: make(map[string]int)}
}

// Add assigns the next identifier to rec and stores it.
func (s *Store) Add(rec Record, img []byte) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = fmt.Sprintf("evidence-%d", len(s.records)+1)

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return Record{}, fmt.Errorf("create evidence dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(s.dir, rec.ID+".png"), img, 0o644); err != nil {
			return Record{}, fmt.Errorf("write evidence file: %w", err)
		}
	}

	s.byID[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return rec, nil
}

// Get returns the record with the given identifier.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i], true
}

// Records returns all records in capture order.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Resolve replaces failure.screenshot values that name a stored record with
// the record's base64 payload. Unknown values are left untouched.
func (s *Store) Resolve(out result.AgentOutput) result.AgentOutput {
	if len(out.Analysis) == 0 {
		return out
	}
	analysis := make([]result.UserJourneyAnalysis, len(out.Analysis))
	copy(analysis, out.Analysis)
	for i, a := range analysis {
		if a.Failure == nil {
			continue
		}
		rec, ok := s.Get(a.Failure.Screenshot)
		if !ok {
			continue
		}
		f := *a.Failure
		f.Screenshot = rec.Base64Screenshot
		analysis[i].Failure = &f
	}
	out.Analysis = analysis
	return out
}
