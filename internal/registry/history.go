package registry

import (
	"sync"

	"github.com/quicktab/quicktab/internal/logger"
)

// HistoryStore persists the activation history across restarts.
type HistoryStore interface {
	SaveHistory(ids []uint32) error
	LoadHistory() ([]uint32, error)
}

// History is the activation recency list: window ids ordered
// most-recent-first, unique, capped. Reads return snapshots, so callers
// never hold a reference into the mutable list.
type History struct {
	mu    sync.Mutex
	ids   []uint32
	limit int
	store HistoryStore
}

// NewHistory creates a history with the given cap, seeded from store when
// one is provided. A load failure starts with an empty history.
func NewHistory(limit int, store HistoryStore) *History {
	h := &History{limit: limit, store: store}
	if store != nil {
		ids, err := store.LoadHistory()
		if err != nil {
			logger.WithComponent("history").Warn().
				Err(err).
				Msg("Failed to load activation history, starting empty")
		} else {
			if len(ids) > limit {
				ids = ids[:limit]
			}
			h.ids = ids
		}
	}
	return h
}

// Record moves id to the front of the history: any existing occurrence is
// removed, the id is inserted first, and the list is truncated to the cap.
// The resulting snapshot is persisted on a separate goroutine so the store
// call never runs under the lock.
func (h *History) Record(id uint32) {
	h.mu.Lock()
	for i, existing := range h.ids {
		if existing == id {
			h.ids = append(h.ids[:i], h.ids[i+1:]...)
			break
		}
	}
	h.ids = append([]uint32{id}, h.ids...)
	if len(h.ids) > h.limit {
		h.ids = h.ids[:h.limit]
	}
	snapshot := make([]uint32, len(h.ids))
	copy(snapshot, h.ids)
	h.mu.Unlock()

	if h.store == nil {
		return
	}
	go func() {
		if err := h.store.SaveHistory(snapshot); err != nil {
			logger.WithComponent("history").Warn().
				Err(err).
				Msg("Failed to persist activation history")
		}
	}()
}

// Snapshot returns a copy of the history, most-recent-first.
func (h *History) Snapshot() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	snapshot := make([]uint32, len(h.ids))
	copy(snapshot, h.ids)
	return snapshot
}

// Rank returns each id's position in the history. Smaller is more recent;
// ids absent from the history are absent from the map.
func (h *History) Rank() map[uint32]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	rank := make(map[uint32]int, len(h.ids))
	for i, id := range h.ids {
		rank[id] = i
	}
	return rank
}

// Len returns the current history size.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ids)
}
