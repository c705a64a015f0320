package agent

import (
	"fmt"
	"strings"
)

// Memory entry kinds.
const (
	KindAction  = "action"
	KindError   = "error"
	KindThought = "thought"
	KindDone    = "done"
)

// Entry is one line of working memory.
type Entry struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Memory is the runtime's bounded working memory. Oldest entries are dropped
// first once the limit is reached.
type Memory struct {
	limit   int
	dropped int
	entries []Entry
}

// NewMemory returns a memory that keeps at most limit entries. A limit <= 0
// keeps everything.
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Add appends an entry.
func (m *Memory) Add(step int, kind, text string) {
	m.entries = append(m.entries, Entry{Step: step, Kind: kind, Text: text})
	if m.limit > 0 && len(m.entries) > m.limit {
		over := len(m.entries) - m.limit
		m.dropped += over
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
}

// Entries returns a copy of the retained entries.
func (m *Memory) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Render formats entries as the memory section of a reasoning request.
func Render(entries []Entry, dropped int) string {
	if len(entries) == 0 {
		return "No actions taken yet."
	}
	var b strings.Builder
	if dropped > 0 {
		fmt.Fprintf(&b, "(%d earlier entries omitted)\n", dropped)
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "[step %d] %s: %s\n", e.Step, e.Kind, e.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Dropped returns how many entries have been evicted.
func (m *Memory) Dropped() int {
	return m.dropped
}
