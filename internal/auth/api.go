package auth

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"webdoc/internal/chat"

	"github.com/oklog/ulid/v2"
)

const maxBodyBytes = 16 << 10

// Handler wires the login/register/userinfo REST endpoints.
type Handler struct {
	log    *slog.Logger
	users  UserStore
	tokens *TokenManager

	// dummyHash keeps login latency flat when the username does not exist.
	dummyHash string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, users UserStore, tokens *TokenManager) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{log: log, users: users, tokens: tokens}
	if hash, err := HashPassword("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}
	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/userinfo", h.handleUserinfo)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userinfoPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginPayload struct {
	AccessToken string          `json:"access_token"`
	Userinfo    userinfoPayload `json:"userinfo"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if len(username) < 3 || len(username) > 32 {
		writeFailure(w, http.StatusBadRequest, "username must be 3-32 chars")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, ErrPasswordTooShort) {
			writeFailure(w, http.StatusBadRequest, "password too short")
			return
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "registration failed")
		return
	}

	u := User{
		ID:           ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String(),
		Username:     username,
		PasswordHash: hash,
		Role:         "user",
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeFailure(w, http.StatusConflict, "username already taken")
			return
		}
		h.log.Error("auth.register.fail", "username", username, "err", err)
		writeFailure(w, http.StatusInternalServerError, "registration failed")
		return
	}

	h.log.Info("auth.register.ok", "user_id", u.ID, "username", username)
	writeJSON(w, http.StatusCreated, apiResponse{Status: true, Message: "registered"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.users.ByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a verification anyway so missing users are not
			// distinguishable by response time.
			_, _ = VerifyPassword(req.Password, h.dummyHash)
			writeFailure(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "login failed")
		return
	}

	ok, err := VerifyPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		writeFailure(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	id := chat.Identity{ID: u.ID, Username: u.Username, Role: u.Role}
	token, err := h.tokens.Issue(id, time.Now().UTC())
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.log.Info("auth.login.ok", "user_id", u.ID, "username", u.Username)
	writeJSON(w, http.StatusOK, apiResponse{
		Status:  true,
		Message: "logged in",
		Data: loginPayload{
			AccessToken: token,
			Userinfo:    userinfoPayload{ID: u.ID, Username: u.Username, Role: u.Role},
		},
	})
}

func (h *Handler) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := h.tokens.Verify(BearerToken(r))
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status:  true,
		Message: "userinfo fetched",
		Data:    userinfoPayload{ID: id.ID, Username: id.Username, Role: id.Role},
	})
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
