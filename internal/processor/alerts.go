package processor

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// maxTrackedAlerts bounds the in-memory alert index.
const maxTrackedAlerts = 1000

// AlertTracker maps Slack alert messages to the sessions they announce.
// Gateways that implement it share the mapping across processes, so a
// reaction can be handled by any replica.
type AlertTracker interface {
	TrackAlert(ctx context.Context, messageTS string, sessionID uuid.UUID) error
	// AlertSession returns uuid.Nil when messageTS is not a tracked alert.
	AlertSession(ctx context.Context, messageTS string) (uuid.UUID, error)
	ForgetAlert(ctx context.Context, messageTS string) error
}

// memoryAlerts is the process-local fallback. The oldest alert is evicted
// once limit is reached.
type memoryAlerts struct {
	mu    sync.Mutex
	limit int
	byTS  map[string]uuid.UUID
	order []string
}

func newMemoryAlerts(limit int) *memoryAlerts {
	return &memoryAlerts{limit: limit, byTS: make(map[string]uuid.UUID)}
}

func (m *memoryAlerts) TrackAlert(_ context.Context, messageTS string, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byTS[messageTS]; !ok {
		m.order = append(m.order, messageTS)
	}
	m.byTS[messageTS] = sessionID
	for len(m.byTS) > m.limit && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.byTS, oldest)
	}
	return nil
}

func (m *memoryAlerts) AlertSession(_ context.Context, messageTS string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byTS[messageTS], nil
}

func (m *memoryAlerts) ForgetAlert(_ context.Context, messageTS string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byTS[messageTS]; !ok {
		return nil
	}
	delete(m.byTS, messageTS)
	for i, ts := range m.order {
		if ts == messageTS {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memoryAlerts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byTS)
}
