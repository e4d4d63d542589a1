package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/index"
	"github.com/supai/backend/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the explicit per-conversation context: the similarity index,
// the cost ledger and the set of loaded sources. The core holds no state
// outside of sessions; independent sessions never interact. Operations on
// one session are serialized by its mutex so the ledger and diagnostic
// log see completion order.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	index   *index.Index
	ledger  *budget.Ledger
	sources map[string]struct{}
}

func newSession(budgetCap float64) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		index:     index.New(),
		ledger:    budget.NewLedger(budgetCap),
		sources:   make(map[string]struct{}),
	}
}

func (s *Session) Index() *index.Index {
	return s.index
}

func (s *Session) Ledger() *budget.Ledger {
	return s.ledger
}

func (s *Session) SourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Manager owns the live sessions, keyed by id.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	budgetCap float64
}

func NewManager(budgetCap float64) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		budgetCap: budgetCap,
	}
}

func (m *Manager) Create() *Session {
	s := newSession(m.budgetCap)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete tears a session down. Its index and ledger go with it; the
// diagnostic log keeps the session's entries for offline analysis.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	metrics.SessionsActive.Dec()
	return nil
}
