package swap

import (
	"errors"
	"sync"
	"time"
)

// ErrSwapNotFound is returned when no swap with the given ID is tracked by
// the manager, as either ongoing or past.
var ErrSwapNotFound = errors.New("swap: no swap with given id")

// Manager tracks the in-memory status of every swap the current process
// has driven, split into ongoing and completed. Grounded on the
// bingcicle-atomic-swap Manager's ongoing/past map split, simplified here
// since recovery truth lives in db.Store, not in this manager: Manager owns
// no database handle, and its contents are not rebuilt from db.Store on
// restart.
type Manager struct {
	mu      sync.RWMutex
	ongoing map[string]*Info
	past    map[string]*Info
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		ongoing: make(map[string]*Info),
		past:    make(map[string]*Info),
	}
}

// AddSwap starts tracking info, filing it under ongoing or past depending
// on its current status.
func (m *Manager) AddSwap(info *Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info.Status.IsOngoing() {
		m.ongoing[info.ID] = info
	} else {
		m.past[info.ID] = info
	}
}

// GetOngoingSwap returns the ongoing swap with the given id, if any.
func (m *Manager) GetOngoingSwap(id string) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.ongoing[id]
	if !ok {
		return nil, ErrSwapNotFound
	}
	return info, nil
}

// GetOngoingSwaps returns every currently-ongoing swap.
func (m *Manager) GetOngoingSwaps() []*Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Info, 0, len(m.ongoing))
	for _, info := range m.ongoing {
		out = append(out, info)
	}
	return out
}

// GetPastSwap returns a completed swap's Info by id.
func (m *Manager) GetPastSwap(id string) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.past[id]
	if !ok {
		return nil, ErrSwapNotFound
	}
	return info, nil
}

// GetPastSwaps returns every swap that has reached a terminal status.
func (m *Manager) GetPastSwaps() []*Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Info, 0, len(m.past))
	for _, info := range m.past {
		out = append(out, info)
	}
	return out
}

// HasOngoingSwap reports whether id is currently tracked as ongoing.
func (m *Manager) HasOngoingSwap(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ongoing[id]
	return ok
}

// CompleteOngoingSwap moves an ongoing swap to past, setting its final
// status and end time.
func (m *Manager) CompleteOngoingSwap(id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.ongoing[id]
	if !ok {
		return ErrSwapNotFound
	}

	now := time.Now()
	info.Status = status
	info.EndTime = &now

	delete(m.ongoing, id)
	m.past[id] = info
	return nil
}
