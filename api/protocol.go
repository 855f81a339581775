package api

import (
	"time"

	"taskboard-api/domain"
)

const (
	actionBatchMaxSize = 256 * 1024 // 256 KiB
	authBodyMaxSize    = 16 * 1024
	attachmentMaxSize  = 10 << 20 // 10 MiB
)

// POST /api/auth/signup and /api/auth/login request bodies.
type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Successful auth responses carry the sanitized user and a session token.
type authResponse struct {
	User  userPayload `json:"user"`
	Token string      `json:"token"`
}

type userPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GET /api/board response body. Columns are keyed by id; columnOrder gives
// the rendering order.
type boardResponse struct {
	Columns     map[string]*domain.Column `json:"columns"`
	ColumnOrder []string                  `json:"columnOrder"`
	Filter      string                    `json:"filter"`
	DateFilter  *domain.DateFilter        `json:"dateFilter,omitempty"`
}

// POST /api/board/actions response body.
type actionBatchResponse struct {
	Board           boardResponse `json:"board"`
	IdempotencyKeys []string      `json:"idempotencyKeys,omitempty"`
	Applied         int           `json:"applied"`
	Deduplicated    int           `json:"deduplicated,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// GET /api/notifications response body.
type notificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

type markAllResponse struct {
	Marked int `json:"marked"`
}

// POST /api/notifications/feed request body.
type feedStateRequest struct {
	Open bool `json:"open"`
}

// POST /api/board/attachments response body.
type attachmentUploadResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Mime string `json:"mime,omitempty"`
}
