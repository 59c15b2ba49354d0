package devbackend

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/msomdec/agun-web/internal/domain"
)

const birthDateLayout = "2006-01-02"

// RegisterRoutes mounts the API under /api/v1 plus a health check.
func RegisterRoutes(mux *http.ServeMux, auth *AuthService) {
	h := NewHandler(auth)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("POST /api/v1/auth/register", h.HandleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", h.HandleLogin)
	mux.HandleFunc("GET /api/v1/users/me", h.HandleMe)
}

// Handler serves the authentication API.
type Handler struct {
	auth *AuthService
}

// NewHandler creates a new Handler.
func NewHandler(auth *AuthService) *Handler {
	return &Handler{auth: auth}
}

// UserDTO is the JSON representation of the current user.
type UserDTO struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

func toUserDTO(a *domain.Account) UserDTO {
	return UserDTO{
		ID:        a.ID,
		Email:     a.Email,
		FullName:  a.Profile.FullName(),
		Role:      a.Role,
		IsActive:  a.Active,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

// HandleHealthz reports that the backend is up.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	BirthDate   string `json:"birth_date"`
	Gender      string `json:"gender"`
	Status      string `json:"status"`
	Nationality string `json:"nationality"`
	OriginCity  string `json:"origin_city"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// HandleRegister processes a JSON registration request.
// POST /api/v1/auth/register
// Response: 201 {"id":..,"email":..,"full_name":..}
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	birth, err := time.Parse(birthDateLayout, req.BirthDate)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc": []string{"body", "birth_date"},
				"msg": "invalid date format, expected YYYY-MM-DD",
			}},
		})
		return
	}

	account, err := h.auth.Register(r.Context(), domain.Profile{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		BirthDate:   birth,
		Gender:      domain.Gender(req.Gender),
		Status:      domain.Status(req.Status),
		Nationality: req.Nationality,
		OriginCity:  req.OriginCity,
		Country:     req.Country,
		City:        req.City,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateAccount):
			writeError(w, http.StatusConflict, "Email already registered")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			slog.Error("register account", "error", err)
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        account.ID,
		"email":     account.Email,
		"full_name": account.Profile.FullName(),
	})
}

// HandleLogin exchanges credentials for a bearer token.
// POST /api/v1/auth/login
// Accepts {"email","password"} as JSON, or username/password form fields.
// Response: {"access_token":..,"token_type":"bearer","user_id":..}
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email, password, err := loginCredentials(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, account, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Incorrect email or password")
			return
		}
		slog.Error("login account", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred. Please try again.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      account.ID,
	})
}

func loginCredentials(w http.ResponseWriter, r *http.Request) (email, password string, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := r.ParseForm(); err != nil {
			return "", "", err
		}
		email = r.PostFormValue("username")
		if email == "" {
			email = r.PostFormValue("email")
		}
		return email, r.PostFormValue("password"), nil
	}

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		return "", "", err
	}
	if req.Email == "" {
		req.Email = req.Username
	}
	return req.Email, req.Password, nil
}

// HandleMe returns the account the bearer token was issued for.
// GET /api/v1/users/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	account, err := h.authenticate(r)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNotFound) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		slog.Error("get current account", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(account))
}

func (h *Handler) authenticate(r *http.Request) (*domain.Account, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, domain.ErrUnauthorized
	}

	id, err := h.auth.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	account, err := h.auth.GetAccount(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, domain.ErrUnauthorized
	}
	return account, nil
}
