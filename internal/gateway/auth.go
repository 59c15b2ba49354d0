// Package gateway maps the authentication operations onto the backend's HTTP API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/msomdec/agun-web/internal/apiclient"
	"github.com/msomdec/agun-web/internal/domain"
)

// Doer sends a JSON request to the backend. *apiclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, method, path string, in, out any) error
}

// Auth is the authentication gateway.
type Auth struct {
	api Doer
}

func NewAuth(api Doer) *Auth {
	return &Auth{api: api}
}

// flexID accepts an identifier sent either as a JSON string or a number.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      flexID `json:"user_id"`
}

// Login exchanges credentials for a bearer token.
func (a *Auth) Login(ctx context.Context, email, password string) (*domain.Credentials, error) {
	var resp loginResponse
	err := a.api.Do(apiclient.WithCredentialExchange(ctx), http.MethodPost, "auth/login",
		loginRequest{Email: strings.TrimSpace(email), Password: password}, &resp)
	if err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) {
			switch se.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return nil, domain.ErrInvalidCredentials
			}
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("login: backend returned no access token")
	}
	return &domain.Credentials{Token: resp.AccessToken, UserID: string(resp.UserID)}, nil
}

type registerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	FullName    string `json:"full_name"`
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

type registerResponse struct {
	ID       flexID `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Register creates an account from a validated profile.
func (a *Auth) Register(ctx context.Context, p domain.Profile) (*domain.Registration, error) {
	req := registerRequest{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		FullName:    p.FullName(),
		BirthDate:   p.BirthDate.Format("2006-01-02"),
		Gender:      string(p.Gender),
		Status:      string(p.Status),
		Nationality: p.Nationality,
		OriginCity:  p.OriginCity,
		Country:     p.Country,
		City:        p.City,
		Email:       p.Email,
		Password:    p.Password,
	}
	var resp registerResponse
	if err := a.api.Do(apiclient.WithCredentialExchange(ctx), http.MethodPost, "auth/register", req, &resp); err != nil {
		return nil, registerError(err)
	}
	reg := &domain.Registration{ID: string(resp.ID), Email: resp.Email, FullName: resp.FullName}
	if reg.Email == "" {
		reg.Email = p.Email
	}
	return reg, nil
}

func registerError(err error) error {
	var se *apiclient.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("register: %w", err)
	}
	switch se.StatusCode {
	case http.StatusConflict:
		return domain.ErrDuplicateAccount
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if se.StatusCode == http.StatusBadRequest && mentionsExisting(se.Detail) {
			return domain.ErrDuplicateAccount
		}
		return &domain.ValidationError{Message: se.Detail, Fields: se.Fields}
	}
	return fmt.Errorf("register: %w", err)
}

func mentionsExisting(detail string) bool {
	d := strings.ToLower(detail)
	return strings.Contains(d, "already") || strings.Contains(d, "existe")
}

type userResponse struct {
	ID       flexID `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

// CurrentUser fetches the user the bearer token belongs to.
func (a *Auth) CurrentUser(ctx context.Context) (*domain.User, error) {
	var resp userResponse
	if err := a.api.Do(ctx, http.MethodGet, "users/me", nil, &resp); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("current user: %w", err)
	}
	u := &domain.User{
		ID:       string(resp.ID),
		Email:    resp.Email,
		FullName: resp.FullName,
		Role:     resp.Role,
		Active:   true,
	}
	if resp.IsActive != nil {
		u.Active = *resp.IsActive
	}
	return u, nil
}
