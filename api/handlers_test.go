package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/board"
	"taskboard-api/domain"
	"taskboard-api/storage"
)

type mockBoardStore struct {
	mu       sync.Mutex
	state    *domain.BoardState
	removed  []domain.Attachment
	err      error
	received []domain.Action
}

func newMockBoardStore() *mockBoardStore {
	return &mockBoardStore{state: domain.NewBoardState()}
}

func (m *mockBoardStore) State(ctx context.Context, userID string) (*domain.BoardState, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.state.Clone(), nil
}

func (m *mockBoardStore) Dispatch(ctx context.Context, userID string, actions []domain.Action) (*domain.BoardState, []domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, actions...)
	if m.err != nil {
		return nil, m.removed, m.err
	}
	return m.state.Clone(), m.removed, nil
}

type mockFeed struct {
	notifications []domain.Notification
	unread        int
	marked        []string
	markedAll     bool
	open          *bool
	err           error
}

func (m *mockFeed) Feed(ctx context.Context, userID string, today time.Time) ([]domain.Notification, int, error) {
	return m.notifications, m.unread, m.err
}

func (m *mockFeed) MarkRead(ctx context.Context, userID, id string) error {
	m.marked = append(m.marked, id)
	return m.err
}

func (m *mockFeed) MarkAllRead(ctx context.Context, userID string, today time.Time) (int, error) {
	m.markedAll = true
	return len(m.notifications), m.err
}

func (m *mockFeed) SetFeedOpen(ctx context.Context, userID string, open bool, today time.Time) error {
	m.open = &open
	return m.err
}

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type rejectingAuth struct{}

func (rejectingAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errBadAuthorization
}

type recordingDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	removed []string
}

func newRecordingDeduper() *recordingDeduper {
	return &recordingDeduper{seen: map[string]bool{}}
}

func (d *recordingDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *recordingDeduper) Remove(ctx context.Context, userID, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	d.removed = append(d.removed, key)
	return nil
}

type mockBlobs struct {
	released []string
	putURL   string
}

func (m *mockBlobs) Put(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	return m.putURL, int64(len(data)), nil
}

func (m *mockBlobs) Release(ctx context.Context, url string) error {
	m.released = append(m.released, url)
	return nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

func TestGetBoard(t *testing.T) {
	e := echo.New()
	store := newMockBoardStore()
	store.state.Columns[domain.ColumnTodo].Tasks = []domain.Task{{ID: "1", Title: "t", Priority: domain.PriorityHigh}}

	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getBoard(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.ColumnOrder) != 3 || resp.ColumnOrder[0] != domain.ColumnTodo {
		t.Fatalf("unexpected column order: %#v", resp.ColumnOrder)
	}
	if len(resp.Columns[domain.ColumnTodo].Tasks) != 1 {
		t.Fatalf("unexpected board: %#v", resp.Columns)
	}
	if resp.Filter != domain.FilterAll {
		t.Fatalf("unexpected filter %q", resp.Filter)
	}
}

func TestGetBoardFilteredAppliesActiveFilter(t *testing.T) {
	e := echo.New()
	store := newMockBoardStore()
	store.state.Filter = "high"
	store.state.Columns[domain.ColumnTodo].Tasks = []domain.Task{
		{ID: "1", Title: "keep", Priority: domain.PriorityHigh},
		{ID: "2", Title: "drop", Priority: domain.PriorityLow},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/board?filtered=1", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getBoard(store, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	tasks := resp.Columns[domain.ColumnTodo].Tasks
	if len(tasks) != 1 || tasks[0].ID != "1" {
		t.Fatalf("expected only high priority task, got %#v", tasks)
	}
}

func TestGetBoardUnauthorized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getBoard(newMockBoardStore(), rejectingAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestPostActionsAppliesBatch(t *testing.T) {
	e := echo.New()
	store := newMockBoardStore()
	deduper := newRecordingDeduper()

	body := `[{"type":"add-task","data":{"columnId":"todo","task":{"title":"t"}}},
	          {"idempotencyKey":"known","type":"set-filter","data":{"filter":"high"}}]`
	req := httptest.NewRequest(http.MethodPost, "/api/board/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postActions(store, mockAuth{}, deduper, nil, quietLogger())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp actionBatchResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Applied != 2 || len(resp.IdempotencyKeys) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.IdempotencyKeys[1] != "known" {
		t.Fatalf("expected client key preserved, got %q", resp.IdempotencyKeys[1])
	}
	if resp.IdempotencyKeys[0] == "" {
		t.Fatal("expected a generated key for the first action")
	}

	if len(store.received) != 2 {
		t.Fatalf("expected 2 dispatched actions, got %d", len(store.received))
	}
	if store.received[1].Timestamp <= store.received[0].Timestamp {
		t.Fatalf("expected increasing timestamps, got %d then %d",
			store.received[0].Timestamp, store.received[1].Timestamp)
	}
}

func TestPostActionsDeduplicatesRetries(t *testing.T) {
	e := echo.New()
	store := newMockBoardStore()
	deduper := newRecordingDeduper()

	body := `[{"idempotencyKey":"once","type":"set-filter","data":{"filter":"high"}}]`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/board/actions", strings.NewReader(body))
		req.Header.Set(echo.HeaderAuthorization, "Bearer token")
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := postActions(store, mockAuth{}, deduper, nil, quietLogger())(c); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status %d", i, rec.Code)
		}
		if i == 1 {
			var resp actionBatchResponse
			if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp.Applied != 0 || resp.Deduplicated != 1 {
				t.Fatalf("expected retry to be deduplicated, got %+v", resp)
			}
		}
	}
	if len(store.received) != 1 {
		t.Fatalf("expected action applied once, got %d", len(store.received))
	}
}

func TestPostActionsMalformedBatchRollsBackKeys(t *testing.T) {
	e := echo.New()
	store := newMockBoardStore()
	store.err = &board.BatchError{Applied: 1, Err: board.ErrUnknownAction}
	deduper := newRecordingDeduper()

	body := `[{"idempotencyKey":"a","type":"set-filter","data":{"filter":"high"}},
	          {"idempotencyKey":"b","type":"rename-column","data":{}}]`
	req := httptest.NewRequest(http.MethodPost, "/api/board/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postActions(store, mockAuth{}, deduper, nil, quietLogger())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	// Only the unapplied action's key is released for retry.
	if len(deduper.removed) != 1 || deduper.removed[0] != "b" {
		t.Fatalf("unexpected rollback keys: %#v", deduper.removed)
	}
}

func TestPostActionsReleasesRemovedAttachmentBlobs(t *testing.T) {
	e := echo.New()
	store := newMockBoardStore()
	store.removed = []domain.Attachment{{ID: "att", URL: "/data/attachments/x.png"}}
	blobs := &mockBlobs{}

	body := `[{"type":"delete-task","data":{"columnId":"todo","taskId":"1"}}]`
	req := httptest.NewRequest(http.MethodPost, "/api/board/actions", strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postActions(store, mockAuth{}, newRecordingDeduper(), blobs, quietLogger())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(blobs.released) != 1 || blobs.released[0] != "/data/attachments/x.png" {
		t.Fatalf("expected blob release, got %#v", blobs.released)
	}
}

func TestPostActionsRejectsBadBody(t *testing.T) {
	e := echo.New()
	for name, body := range map[string]string{
		"not json":    "{nope",
		"empty batch": "[]",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/board/actions", strings.NewReader(body))
		req.Header.Set(echo.HeaderAuthorization, "Bearer token")
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := postActions(newMockBoardStore(), mockAuth{}, newRecordingDeduper(), nil, quietLogger())(c); err != nil {
			t.Fatalf("%s: handler returned error: %v", name, err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400 got %d", name, rec.Code)
		}
	}
}

func gzipBody(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestPostActionsGzipEncodedBody(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	store := newMockBoardStore()
	e.POST("/api/board/actions", postActions(store, mockAuth{}, newRecordingDeduper(), nil, quietLogger()))

	body := gzipBody(t, `[{"type":"set-filter","data":{"filter":"high"}}]`)
	req := httptest.NewRequest(http.MethodPost, "/api/board/actions", body)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.received) != 1 || store.received[0].Type != domain.ActionSetFilter {
		t.Fatalf("expected decompressed action dispatched, got %#v", store.received)
	}
}

func TestPostActionsCorruptGzipBodyRejected(t *testing.T) {
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	store := newMockBoardStore()
	e.POST("/api/board/actions", postActions(store, mockAuth{}, newRecordingDeduper(), nil, quietLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/board/actions", strings.NewReader("not a gzip stream"))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if len(store.received) != 0 {
		t.Fatalf("no action should reach the store, got %#v", store.received)
	}
}

func TestGetNotifications(t *testing.T) {
	e := echo.New()
	feed := &mockFeed{
		notifications: []domain.Notification{
			{ID: "1", Title: "overdue", Status: domain.StatusOverdue, Diff: -1},
			{ID: "2", Title: "today", Status: domain.StatusToday, Read: true},
		},
		unread: 1,
	}
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getNotifications(feed, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var resp notificationsResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Notifications) != 2 || resp.Unread != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetNotificationsEmptyFeedIsAnArray(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := getNotifications(&mockFeed{}, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"notifications":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestPostMarkRead(t *testing.T) {
	e := echo.New()
	feed := &mockFeed{}
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/task-1/read", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("task-1")

	if err := postMarkRead(feed, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if len(feed.marked) != 1 || feed.marked[0] != "task-1" {
		t.Fatalf("unexpected marked ids: %#v", feed.marked)
	}
}

func TestPostMarkAllRead(t *testing.T) {
	e := echo.New()
	feed := &mockFeed{notifications: []domain.Notification{{ID: "1"}, {ID: "2"}}}
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postMarkAllRead(feed, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var resp markAllResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !feed.markedAll || resp.Marked != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPostFeedState(t *testing.T) {
	e := echo.New()
	feed := &mockFeed{}
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/feed", strings.NewReader(`{"open":true}`))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := postFeedState(feed, mockAuth{})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if feed.open == nil || !*feed.open {
		t.Fatal("expected feed marked open")
	}
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := healthz()(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestRegisterRoutesEndToEnd(t *testing.T) {
	e := echo.New()
	users := newMemoryUsers()
	auth := NewLocalAuth([]byte("test-secret"))
	repo := storageBackedRepo(t)
	store := board.NewStore(repo, quietLogger())
	feed := board.NewNotifications(store, repo, quietLogger(), 0)

	Register(e, Deps{
		Store:  store,
		Feed:   feed,
		Users:  users,
		Auth:   auth,
		Logger: quietLogger(),
	})

	signup := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","password":"hunter22"}`))
	signup.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, signup)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var created authResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("signup response: %v", err)
	}

	addTask := httptest.NewRequest(http.MethodPost, "/api/board/actions",
		strings.NewReader(`[{"type":"add-task","data":{"columnId":"todo","task":{"title":"ship it"}}}]`))
	addTask.Header.Set(echo.HeaderAuthorization, "Bearer "+created.Token)
	addTask.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, addTask)
	if rec.Code != http.StatusOK {
		t.Fatalf("actions: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	getB := httptest.NewRequest(http.MethodGet, "/api/board", nil)
	getB.Header.Set(echo.HeaderAuthorization, "Bearer "+created.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, getB)
	if rec.Code != http.StatusOK {
		t.Fatalf("board: expected 200 got %d", rec.Code)
	}
	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("board response: %v", err)
	}
	if len(resp.Columns[domain.ColumnTodo].Tasks) != 1 {
		t.Fatalf("expected task on board, got %#v", resp.Columns)
	}
}

func storageBackedRepo(t *testing.T) *storage.FileStore {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return fs
}
