package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"taskboard-api/storage"
)

const (
	bcryptCost        = 10
	minPasswordLength = 6
)

// Login failures share one message so the response never reveals whether the
// email exists.
const invalidCredentials = "Invalid credentials"

func postSignup(users UserStore, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req signupRequest
		if err := decodeBody(c.Request().Body, authBodyMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Name == "" || req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "name, email and password are required"})
		}
		if !strings.Contains(req.Email, "@") {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid email"})
		}
		if len(req.Password) < minPasswordLength {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "password must be at least 6 characters"})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "signup failed"})
		}

		now := time.Now().UTC()
		user := storage.User{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Email:     req.Email,
			Password:  string(hash),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := users.CreateUser(ctx, user); err != nil {
			if errors.Is(err, storage.ErrDuplicateEmail) {
				return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered"})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "signup failed"})
		}

		token, err := auth.IssueToken(user.ID, user.Email, now)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "signup failed"})
		}
		return c.JSON(http.StatusCreated, authResponse{User: sanitizedPayload(user), Token: token})
	}
}

func postLogin(users UserStore, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req loginRequest
		if err := decodeBody(c.Request().Body, authBodyMaxSize, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || req.Password == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		}

		user, found, err := users.UserByEmail(ctx, req.Email)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed"})
		}
		if !found {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: invalidCredentials})
		}
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: invalidCredentials})
		}

		token, err := auth.IssueToken(user.ID, user.Email, time.Now().UTC())
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "login failed"})
		}
		return c.JSON(http.StatusOK, authResponse{User: sanitizedPayload(user), Token: token})
	}
}

func sanitizedPayload(u storage.User) userPayload {
	s := u.Sanitized()
	return userPayload{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func decodeBody(body io.Reader, limit int64, dst any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, limit))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
