package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/user"
)

// UserStore is the account surface the auth endpoints need. IsAdmin also
// satisfies auth.UserLookup for the admin route group.
type UserStore interface {
	Create(ctx context.Context, in user.CreateUserInput) (*user.User, error)
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	IsAdmin(ctx context.Context, id string) (bool, error)
}

type authHandler struct {
	users   UserStore
	auth    *auth.Service
	metrics *metrics.Metrics
}

func newAuthHandler(users UserStore, authSvc *auth.Service, m *metrics.Metrics) *authHandler {
	return &authHandler{users: users, auth: authSvc, metrics: m}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register handles POST /api/v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidationError, "password must be at least 8 characters")
		return
	}

	u, err := h.users.Create(r.Context(), user.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeError(w, r, http.StatusConflict, codeValidationError, "failed to create account")
		return
	}

	token, err := h.auth.IssueToken(u.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to issue token")
		return
	}

	writeSuccess(w, r, http.StatusCreated, map[string]any{
		"user":  u,
		"token": token,
	}, nil)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidationError, "failed to parse request body")
		return
	}

	u, err := h.users.Authenticate(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncAuthFailure("password")
		}
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to authenticate")
		return
	}

	token, err := h.auth.IssueToken(u.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to issue token")
		return
	}
	if h.metrics != nil {
		h.metrics.IncAuthSuccess("password")
	}

	writeSuccess(w, r, http.StatusOK, map[string]any{
		"user":  u,
		"token": token,
	}, nil)
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "failed to load account")
		return
	}
	writeSuccess(w, r, http.StatusOK, u, nil)
}
