package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// ReadSetRepository persists the acknowledged notification id set. The set
// is scoped to the user, independent of the board document, so
// acknowledgments survive feed recomputation.
type ReadSetRepository interface {
	LoadReadSet(ctx context.Context, userID string) ([]string, error)
	SaveReadSet(ctx context.Context, userID string, ids []string) error
}

// DefaultIdleAckDelay is how long the feed must sit unread, with the panel
// closed, before the auto-acknowledge sweep fires.
const DefaultIdleAckDelay = 5 * time.Second

// Notifications serves the derived reminder feed and tracks which
// reminders the user has acknowledged. It also runs the idle sweep: when
// unread reminders exist and the feed panel is closed, a timer marks them
// all read after IdleAckDelay of inactivity. Any acknowledgment, change to
// the unread set or reopening of the panel cancels the pending sweep.
type Notifications struct {
	store        *Store
	repo         ReadSetRepository
	logger       *log.Logger
	idleAckDelay time.Duration

	mu    sync.Mutex
	users map[string]*readState
}

type readState struct {
	mu       sync.Mutex
	read     map[string]struct{}
	feedOpen bool
	sweep    *time.Timer
}

// NewNotifications wires the feed service. A non-positive delay falls back
// to DefaultIdleAckDelay.
func NewNotifications(store *Store, repo ReadSetRepository, logger *log.Logger, idleAckDelay time.Duration) *Notifications {
	if store == nil {
		panic("board.NewNotifications: store is nil")
	}
	if repo == nil {
		panic("board.NewNotifications: read set repository is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if idleAckDelay <= 0 {
		idleAckDelay = DefaultIdleAckDelay
	}
	n := &Notifications{
		store:        store,
		repo:         repo,
		logger:       logger,
		idleAckDelay: idleAckDelay,
		users:        map[string]*readState{},
	}
	store.OnMutate(n.boardChanged)
	return n
}

// boardChanged recomputes the unread set after a board mutation and
// resets any pending idle sweep against it: the sweep must never
// acknowledge a feed the user has not had a full idle period to see.
func (n *Notifications) boardChanged(userID string, state *domain.BoardState) {
	n.mu.Lock()
	rs, ok := n.users[userID]
	n.mu.Unlock()
	// A user who never touched the feed has no sweep to reset.
	if !ok {
		return
	}

	feed := BuildNotifications(state, time.Now())
	rs.mu.Lock()
	defer rs.mu.Unlock()
	unread := make([]string, 0, len(feed))
	for _, nt := range feed {
		if _, seen := rs.read[nt.ID]; !seen {
			unread = append(unread, nt.ID)
		}
	}
	n.rescheduleLocked(userID, rs, unread)
}

// Feed recomputes the reminder feed for today, flags read entries and
// returns the unread count. Reading the feed counts as activity: any
// pending idle sweep is rescheduled against the current unread set.
func (n *Notifications) Feed(ctx context.Context, userID string, today time.Time) ([]domain.Notification, int, error) {
	state, err := n.store.State(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	rs, err := n.readState(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	feed := BuildNotifications(state, today)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	unread := make([]string, 0, len(feed))
	for i := range feed {
		if _, ok := rs.read[feed[i].ID]; ok {
			feed[i].Read = true
		} else {
			unread = append(unread, feed[i].ID)
		}
	}
	n.rescheduleLocked(userID, rs, unread)
	return feed, len(unread), nil
}

// MarkRead acknowledges a single reminder.
func (n *Notifications) MarkRead(ctx context.Context, userID, id string) error {
	rs, err := n.readState(ctx, userID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.read[id]; ok {
		return nil
	}
	rs.read[id] = struct{}{}
	rs.cancelSweepLocked()
	n.persistLocked(ctx, userID, rs)
	return nil
}

// MarkAllRead acknowledges every reminder currently in the feed.
func (n *Notifications) MarkAllRead(ctx context.Context, userID string, today time.Time) (int, error) {
	state, err := n.store.State(ctx, userID)
	if err != nil {
		return 0, err
	}
	rs, err := n.readState(ctx, userID)
	if err != nil {
		return 0, err
	}

	feed := BuildNotifications(state, today)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	marked := 0
	for _, nt := range feed {
		if _, ok := rs.read[nt.ID]; !ok {
			rs.read[nt.ID] = struct{}{}
			marked++
		}
	}
	rs.cancelSweepLocked()
	if marked > 0 {
		n.persistLocked(ctx, userID, rs)
	}
	return marked, nil
}

// SetFeedOpen records whether the notification panel is visually open.
// Opening suppresses the idle sweep; closing re-arms it when unread
// reminders remain.
func (n *Notifications) SetFeedOpen(ctx context.Context, userID string, open bool, today time.Time) error {
	rs, err := n.readState(ctx, userID)
	if err != nil {
		return err
	}
	if open {
		rs.mu.Lock()
		rs.feedOpen = true
		rs.cancelSweepLocked()
		rs.mu.Unlock()
		return nil
	}

	state, err := n.store.State(ctx, userID)
	if err != nil {
		return err
	}
	feed := BuildNotifications(state, today)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.feedOpen = false
	unread := make([]string, 0, len(feed))
	for _, nt := range feed {
		if _, ok := rs.read[nt.ID]; !ok {
			unread = append(unread, nt.ID)
		}
	}
	n.rescheduleLocked(userID, rs, unread)
	return nil
}

// rescheduleLocked cancels any pending sweep and arms a new one when the
// panel is closed and unread reminders exist. Fires once per continuous
// idle period: every call here restarts the clock.
func (n *Notifications) rescheduleLocked(userID string, rs *readState, unread []string) {
	rs.cancelSweepLocked()
	if rs.feedOpen || len(unread) == 0 {
		return
	}
	ids := append([]string(nil), unread...)
	rs.sweep = time.AfterFunc(n.idleAckDelay, func() {
		n.autoAck(userID, rs, ids)
	})
}

func (n *Notifications) autoAck(userID string, rs *readState, ids []string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.sweep = nil
	if rs.feedOpen {
		return
	}
	marked := 0
	for _, id := range ids {
		if _, ok := rs.read[id]; !ok {
			rs.read[id] = struct{}{}
			marked++
		}
	}
	if marked == 0 {
		return
	}
	n.logger.WithFields(log.Fields{"user": userID, "count": marked}).Debug("idle sweep acknowledged notifications")
	n.persistLocked(context.Background(), userID, rs)
}

func (rs *readState) cancelSweepLocked() {
	if rs.sweep != nil {
		rs.sweep.Stop()
		rs.sweep = nil
	}
}

func (n *Notifications) readState(ctx context.Context, userID string) (*readState, error) {
	n.mu.Lock()
	if rs, ok := n.users[userID]; ok {
		n.mu.Unlock()
		return rs, nil
	}
	n.mu.Unlock()

	ids, err := n.repo.LoadReadSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	read := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		read[id] = struct{}{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if rs, ok := n.users[userID]; ok {
		return rs, nil
	}
	rs := &readState{read: read}
	n.users[userID] = rs
	return rs, nil
}

// persistLocked writes the read set through to the repository.
// Best-effort, like every other persistence write.
func (n *Notifications) persistLocked(ctx context.Context, userID string, rs *readState) {
	ids := make([]string, 0, len(rs.read))
	for id := range rs.read {
		ids = append(ids, id)
	}
	if err := n.repo.SaveReadSet(ctx, userID, ids); err != nil {
		n.logger.WithFields(log.Fields{"user": userID, "error": err.Error()}).Warn("read set write failed")
	}
}
