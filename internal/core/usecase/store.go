package usecase

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

// Store holds the operator session state. All mutation goes through its transition
// methods; listeners receive a snapshot after every transition.
type Store struct {
	mu         sync.Mutex
	generation uint64
	current    *domain.Document
	recent     []domain.Document
	busy       int
	errMsg     string
	notice     string
	updatedAt  time.Time

	listeners []func(domain.Snapshot)
	now       func() time.Time
	logger    *slog.Logger

	// seq numbers snapshots under mu; delivered is guarded by notifyMu.
	seq       uint64
	notifyMu  sync.Mutex
	delivered uint64
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		recent: []domain.Document{},
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Subscribe registers a read-only listener. Listeners run outside the store lock, one
// snapshot at a time and in transition order. A snapshot that a newer one has already
// overtaken is not delivered, so the last snapshot a listener sees is always the latest
// state. Listeners may read the store but must not mutate it.
func (s *Store) Subscribe(fn func(domain.Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// BeginSession makes doc the current document and starts a new generation.
// Results tagged with an older generation are discarded from here on.
func (s *Store) BeginSession(doc *domain.Document) uint64 {
	s.mu.Lock()
	s.generation++
	s.current = doc.Clone()
	s.errMsg = ""
	s.notice = ""
	gen := s.generation
	s.emitLocked()
	return gen
}

// Adopt replaces the current document wholesale with a record fetched from the
// remote source of truth. It reports false when the result is stale or would move
// the status backwards.
func (s *Store) Adopt(gen uint64, doc *domain.Document) bool {
	if doc == nil {
		return false
	}
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Info("stale_result_discarded", "document_id", doc.ID, "generation", gen)
		return false
	}
	if s.current != nil && s.current.ID == doc.ID && doc.Status.Rank() < s.current.Status.Rank() {
		held := s.current.Status
		s.mu.Unlock()
		s.logger.Warn("status_regression_ignored",
			"document_id", doc.ID,
			"held_status", held,
			"fetched_status", doc.Status,
		)
		return false
	}
	s.current = doc.Clone()
	s.emitLocked()
	return true
}

// Fail surfaces a terminal error for the given generation.
func (s *Store) Fail(gen uint64, err error) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return false
	}
	s.errMsg = domain.UserMessage(err)
	s.notice = ""
	s.emitLocked()
	return true
}

// SetError surfaces an error that is not tied to a poll generation.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	s.errMsg = domain.UserMessage(err)
	s.notice = ""
	s.emitLocked()
}

func (s *Store) ClearMessages() {
	s.mu.Lock()
	s.errMsg = ""
	s.notice = ""
	s.emitLocked()
}

func (s *Store) Notify(message string) {
	s.mu.Lock()
	s.notice = message
	s.errMsg = ""
	s.emitLocked()
}

func (s *Store) ReplaceRecent(docs []domain.Document) {
	s.mu.Lock()
	s.recent = make([]domain.Document, 0, len(docs))
	for i := range docs {
		s.recent = append(s.recent, *docs[i].Clone())
	}
	s.emitLocked()
}

// AcquireBusy marks an operation in flight. The returned release func is safe to
// call more than once; only the first call has an effect.
func (s *Store) AcquireBusy() func() {
	s.mu.Lock()
	s.busy++
	s.emitLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.busy--
			if s.busy < 0 {
				s.busy = 0
			}
			s.emitLocked()
		})
	}
}

// emitLocked must be called with s.mu held; it releases the lock before notifying.
func (s *Store) emitLocked() {
	s.updatedAt = s.now()
	s.seq++
	seq := s.seq
	snap := s.snapshotLocked()
	listeners := append([]func(domain.Snapshot){}, s.listeners...)
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.delivered {
		return
	}
	s.delivered = seq
	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() domain.Snapshot {
	recent := make([]domain.Document, 0, len(s.recent))
	for i := range s.recent {
		recent = append(recent, *s.recent[i].Clone())
	}
	return domain.Snapshot{
		Generation: s.generation,
		Current:    s.current.Clone(),
		Recent:     recent,
		Busy:       s.busy > 0,
		Error:      s.errMsg,
		Notice:     s.notice,
		UpdatedAt:  s.updatedAt,
	}
}
