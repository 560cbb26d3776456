package session

import (
	"strings"

	"github.com/quicktab/quicktab/internal/registry"
)

// SwitchSession is the switcher's logical state: the window snapshot taken
// at open, the search query, the selected index into the filtered list and
// the open flag. Only the coordinator goroutine mutates it.
type SwitchSession struct {
	Windows  []registry.WindowRecord
	Query    string
	Selected int
	Open     bool
}

// filtered returns indices into Windows whose title or application name
// contains the query, case-insensitively. An empty query keeps everything.
func (s *SwitchSession) filtered() []int {
	idx := make([]int, 0, len(s.Windows))
	q := strings.ToLower(s.Query)
	for i, rec := range s.Windows {
		if q == "" ||
			strings.Contains(strings.ToLower(rec.Title), q) ||
			strings.Contains(strings.ToLower(rec.App), q) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Snapshot is an immutable copy of session state handed to observers.
type Snapshot struct {
	Open     bool                    `json:"open"`
	Query    string                  `json:"query"`
	Selected int                     `json:"selected"`
	Windows  []registry.WindowRecord `json:"windows"`
}

// snapshot copies the session, filtered down to the windows the query
// matches, so observers render exactly what selection indices refer to.
func (s *SwitchSession) snapshot() Snapshot {
	idx := s.filtered()
	windows := make([]registry.WindowRecord, len(idx))
	for i, j := range idx {
		windows[i] = s.Windows[j]
	}
	return Snapshot{
		Open:     s.Open,
		Query:    s.Query,
		Selected: s.Selected,
		Windows:  windows,
	}
}
