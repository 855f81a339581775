package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// StateRepository persists the full board document for a user.
type StateRepository interface {
	LoadState(ctx context.Context, userID string) (*domain.BoardState, bool, error)
	SaveState(ctx context.Context, userID string, state *domain.BoardState) error
}

// Store owns the board state of every user and is the single dispatch
// entry point: actions are applied strictly in the order they arrive,
// serialized per user. After every successful transition the state is
// written through to the repository; that write is best-effort and never
// surfaced to the dispatching caller.
type Store struct {
	repo   StateRepository
	logger *log.Logger

	mu       sync.Mutex
	boards   map[string]*userBoard
	onMutate func(userID string, state *domain.BoardState)
}

type userBoard struct {
	mu    sync.Mutex
	state *domain.BoardState
}

// BatchError reports a dispatch that stopped partway through its batch.
// Applied counts the transitions that succeeded before the failing action.
type BatchError struct {
	Applied int
	Err     error
}

func (e *BatchError) Error() string { return e.Err.Error() }

func (e *BatchError) Unwrap() error { return e.Err }

// NewStore creates a Store backed by the given repository.
func NewStore(repo StateRepository, logger *log.Logger) *Store {
	if repo == nil {
		panic("board.NewStore: repository is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{repo: repo, logger: logger, boards: map[string]*userBoard{}}
}

// State returns a deep snapshot of the user's board, seeding it from the
// repository (or defaults) on first access.
func (s *Store) State(ctx context.Context, userID string) (*domain.BoardState, error) {
	ub, err := s.board(ctx, userID)
	if err != nil {
		return nil, err
	}
	ub.mu.Lock()
	defer ub.mu.Unlock()
	return ub.state.Clone(), nil
}

// OnMutate registers a callback invoked with a snapshot of the new state
// after every dispatch that applied at least one action. The notification
// service uses it to keep the idle sweep in step with the board.
func (s *Store) OnMutate(fn func(userID string, state *domain.BoardState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutate = fn
}

// Dispatch applies the actions in order and returns a snapshot of the
// resulting state together with the attachments the batch removed, whose
// blobs the caller must release. A malformed action aborts the batch at
// that point; transitions already applied stay applied and are persisted.
func (s *Store) Dispatch(ctx context.Context, userID string, actions []domain.Action) (*domain.BoardState, []domain.Attachment, error) {
	ub, err := s.board(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	ub.mu.Lock()

	var removed []domain.Attachment
	applied := 0
	var applyErr error
	for _, action := range actions {
		effects, err := Apply(ub.state, action)
		if err != nil {
			applyErr = err
			break
		}
		removed = append(removed, effects.RemovedAttachments...)
		applied++
	}

	if applied > 0 {
		s.persist(ctx, userID, ub.state)
	}
	var snapshot *domain.BoardState
	if applied > 0 || applyErr == nil {
		snapshot = ub.state.Clone()
	}
	ub.mu.Unlock()

	if applied > 0 {
		s.mutated(userID, snapshot)
	}
	if applyErr != nil {
		return nil, removed, &BatchError{Applied: applied, Err: applyErr}
	}
	return snapshot, removed, nil
}

// mutated fires the mutation hook outside the board lock so the hook may
// read store state freely.
func (s *Store) mutated(userID string, state *domain.BoardState) {
	s.mu.Lock()
	fn := s.onMutate
	s.mu.Unlock()
	if fn != nil {
		fn(userID, state)
	}
}

func (s *Store) board(ctx context.Context, userID string) (*userBoard, error) {
	s.mu.Lock()
	if ub, ok := s.boards[userID]; ok {
		s.mu.Unlock()
		return ub, nil
	}
	s.mu.Unlock()

	state, found, err := s.repo.LoadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found || state == nil {
		state = domain.NewBoardState()
	}
	state.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have seeded the board while we were loading.
	if ub, ok := s.boards[userID]; ok {
		return ub, nil
	}
	ub := &userBoard{state: state}
	s.boards[userID] = ub
	return ub, nil
}

func (s *Store) persist(ctx context.Context, userID string, state *domain.BoardState) {
	if err := s.repo.SaveState(ctx, userID, state); err != nil {
		s.logger.WithFields(log.Fields{"user": userID, "error": err.Error()}).Warn("board state write failed")
	}
}
