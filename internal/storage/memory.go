package storage

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/synjan/qascan/pkg/models"
)

// MemoryStore is the volatile in-process session registry. Sessions
// live until the process exits; nothing evicts them.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ScanSession
	logger   *logrus.Logger
}

func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryStore{
		sessions: make(map[string]models.ScanSession),
		logger:   logger,
	}
}

func (s *MemoryStore) Create(session models.ScanSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return ErrDuplicateID
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) Get(id string) (models.ScanSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return models.ScanSession{}, ErrNotFound
	}
	return session, nil
}

// Update merges only the supplied fields into the stored session. The
// read-merge-write happens under one lock acquisition, so merges on
// the same id never interleave.
//
// Two guards live here rather than in the callers: progress never
// moves backward (late callbacks are clamped to the current value),
// and status never leaves a terminal state or walks backward through
// the lifecycle. Offending writes are dropped, not errored, because a
// scanner callback may race the orchestrator's terminal update.
func (s *MemoryStore) Update(id string, update models.SessionUpdate) (models.ScanSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return models.ScanSession{}, ErrNotFound
	}

	if session.Status.Terminal() {
		s.logger.Debugf("Ignoring update for terminal scan %s", id)
		return session, nil
	}

	if update.Status != nil {
		next := *update.Status
		if session.Status.CanTransitionTo(next) {
			session.Status = next
		} else if session.Status != next {
			s.logger.Debugf("Dropping backward status write %s -> %s for scan %s", session.Status, next, id)
		}
	}
	if update.Progress != nil {
		p := *update.Progress
		if p > 100 {
			p = 100
		}
		if p > session.Progress {
			session.Progress = p
		}
	}
	if update.CurrentStep != nil {
		session.CurrentStep = *update.CurrentStep
	}
	if update.Results != nil {
		session.Results = update.Results
	}
	if update.Error != nil {
		session.Error = *update.Error
	}
	if update.CompletedAt != nil {
		session.CompletedAt = update.CompletedAt
	}

	s.sessions[id] = session
	return session, nil
}

func (s *MemoryStore) ListByOwner(owner string) []models.ScanSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]models.ScanSession, 0)
	for _, session := range s.sessions {
		if session.Owner == owner {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
