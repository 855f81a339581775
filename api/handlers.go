package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/board"
	"taskboard-api/domain"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Store   BoardStore
	Feed    NotificationFeed
	Users   UserStore
	Auth    *Auth
	Deduper Deduper
	Blobs   BlobStore
	DataDir string
	Logger  *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	if deps.Deduper == nil {
		deps.Deduper = NoopDeduper{}
	}
	if deps.Logger == nil {
		deps.Logger = log.StandardLogger()
	}

	e.Use(GzipRequestMiddleware())

	if deps.Auth.LocalMode && deps.Users != nil {
		e.POST("/api/auth/signup", postSignup(deps.Users, deps.Auth))
		e.POST("/api/auth/login", postLogin(deps.Users, deps.Auth))
	}

	e.GET("/api/board", getBoard(deps.Store, deps.Auth))
	e.POST("/api/board/actions", postActions(deps.Store, deps.Auth, deps.Deduper, deps.Blobs, deps.Logger))
	e.GET("/api/notifications", getNotifications(deps.Feed, deps.Auth))
	e.POST("/api/notifications/:id/read", postMarkRead(deps.Feed, deps.Auth))
	e.POST("/api/notifications/read-all", postMarkAllRead(deps.Feed, deps.Auth))
	e.POST("/api/notifications/feed", postFeedState(deps.Feed, deps.Auth))
	if deps.Blobs != nil {
		e.POST("/api/board/attachments", postAttachment(deps.Blobs, deps.Auth))
	}
	e.GET("/healthz", healthz())

	if deps.DataDir != "" {
		e.Static("/data", deps.DataDir)
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store BoardStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		state, err := store.State(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
		}

		if filtered := c.QueryParam("filtered"); filtered == "1" || filtered == "true" {
			now := time.Now()
			for _, col := range state.Columns {
				col.Tasks = board.VisibleTasks(col.Tasks, state.Filter, state.DateFilter, now)
			}
		}
		return c.JSON(http.StatusOK, boardPayload(state))
	}
}

func postActions(store BoardStore, auth Authenticator, deduper Deduper, blobs BlobStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newActionRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		actions := make([]domain.Action, 0, 4)
		if decodeErr := decodeBody(c.Request().Body, actionBatchMaxSize, &actions); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return err
		}
		metrics.SetActionsReceived(len(actions))
		if len(actions) == 0 {
			metrics.SetErrorStage("empty_batch")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "empty action batch"})
			return err
		}

		keys := make([]string, len(actions))
		for i := range actions {
			if actions[i].IdempotencyKey == "" {
				actions[i].IdempotencyKey = uuid.NewString()
			}
			actions[i].Timestamp = nextTimestamp()
			keys[i] = actions[i].IdempotencyKey
		}

		// Drop actions whose keys were already processed. Dedupe errors are
		// tolerated: an unreachable deduper must not block the board.
		fresh := actions[:0]
		var freshKeys []string
		deduplicated := 0
		for i, action := range actions {
			added, dedupeErr := deduper.Add(ctx, userID, keys[i])
			if dedupeErr != nil {
				logger.WithFields(log.Fields{"user": userID, "error": dedupeErr.Error()}).Warn("dedupe check failed")
				added = true
			}
			if !added {
				deduplicated++
				continue
			}
			fresh = append(fresh, action)
			freshKeys = append(freshKeys, keys[i])
		}
		metrics.SetDeduplicated(deduplicated)

		if len(fresh) == 0 {
			state, stateErr := store.State(ctx, userID)
			if stateErr != nil {
				metrics.SetErrorStage("storage")
				c.Logger().Error(stateErr)
				err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
				return err
			}
			err = c.JSON(http.StatusOK, actionBatchResponse{
				Board:           boardPayload(state),
				IdempotencyKeys: keys,
				Deduplicated:    deduplicated,
			})
			return err
		}

		dispatchStart := time.Now()
		state, removed, dispatchErr := store.Dispatch(ctx, userID, fresh)
		metrics.ObserveDispatch(time.Since(dispatchStart))

		releaseBlobs(ctx, blobs, removed, logger)

		if dispatchErr != nil {
			var batchErr *board.BatchError
			if errors.As(dispatchErr, &batchErr) {
				// Unapplied actions may be retried, so their keys must not
				// stay recorded.
				applied := batchErr.Applied
				for _, key := range freshKeys[applied:] {
					if removeErr := deduper.Remove(ctx, userID, key); removeErr != nil {
						logger.WithFields(log.Fields{"user": userID, "error": removeErr.Error()}).Warn("dedupe rollback failed")
					}
				}
				metrics.SetActionsApplied(applied)
				metrics.SetErrorStage("apply")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: dispatchErr.Error()})
				return err
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(dispatchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to apply actions"})
			return err
		}

		metrics.SetActionsApplied(len(fresh))
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, actionBatchResponse{
			Board:           boardPayload(state),
			IdempotencyKeys: keys,
			Applied:         len(fresh),
			Deduplicated:    deduplicated,
		})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getNotifications(feed NotificationFeed, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		notifications, unread, err := feed.Feed(ctx, userID, time.Now())
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load notifications"})
		}
		if notifications == nil {
			notifications = []domain.Notification{}
		}
		return c.JSON(http.StatusOK, notificationsResponse{Notifications: notifications, Unread: unread})
	}
}

func postMarkRead(feed NotificationFeed, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")
		if id == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing notification id"})
		}
		if err := feed.MarkRead(ctx, userID, id); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to mark notification"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postMarkAllRead(feed NotificationFeed, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		marked, err := feed.MarkAllRead(ctx, userID, time.Now())
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to mark notifications"})
		}
		return c.JSON(http.StatusOK, markAllResponse{Marked: marked})
	}
}

func postFeedState(feed NotificationFeed, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req feedStateRequest
		if err := decodeBody(c.Request().Body, authBodyMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if err := feed.SetFeedOpen(ctx, userID, req.Open, time.Now()); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to update feed state"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func postAttachment(blobs BlobStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing file"})
		}
		if fileHeader.Size > attachmentMaxSize {
			return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"})
		}
		src, err := fileHeader.Open()
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "upload failed"})
		}
		defer src.Close()

		url, size, err := blobs.Put(ctx, fileHeader.Filename, src)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "upload failed"})
		}
		return c.JSON(http.StatusCreated, attachmentUploadResponse{
			Name: fileHeader.Filename,
			URL:  url,
			Size: size,
			Mime: fileHeader.Header.Get("Content-Type"),
		})
	}
}

func boardPayload(state *domain.BoardState) boardResponse {
	return boardResponse{
		Columns:     state.Columns,
		ColumnOrder: append([]string(nil), domain.ColumnOrder...),
		Filter:      state.Filter,
		DateFilter:  state.DateFilter,
	}
}

// releaseBlobs frees the binaries of attachments a batch removed. Failures
// are logged and otherwise ignored; an orphaned blob is preferable to a
// failed mutation.
func releaseBlobs(ctx context.Context, blobs BlobStore, removed []domain.Attachment, logger *log.Logger) {
	if blobs == nil || len(removed) == 0 {
		return
	}
	for _, att := range removed {
		if err := blobs.Release(ctx, att.URL); err != nil {
			logger.WithFields(log.Fields{"url": att.URL, "error": err.Error()}).Warn("attachment release failed")
		}
	}
}
