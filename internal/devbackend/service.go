// Package devbackend is a local stand-in for the authentication backend. It
// implements the register, login and current-user endpoints the front-end
// consumes, backed by SQLite accounts, bcrypt hashes and HS256 tokens.
package devbackend

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/msomdec/agun-web/internal/domain"
)

const (
	tokenTTL          = 24 * time.Hour
	minPasswordLength = 6
	defaultRole       = "user"
)

// AuthService handles account registration, login, and JWT token operations.
type AuthService struct {
	accounts   domain.AccountRepository
	jwtSecret  []byte
	bcryptCost int
	now        func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(accounts domain.AccountRepository, jwtSecret string, bcryptCost int) *AuthService {
	return &AuthService{
		accounts:   accounts,
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Register creates a new account from a submitted profile.
func (s *AuthService) Register(ctx context.Context, p domain.Profile) (*domain.Account, error) {
	p.Email = strings.TrimSpace(p.Email)
	if p.FirstName == "" || p.LastName == "" || p.Email == "" || p.Password == "" {
		return nil, fmt.Errorf("%w: names, email, and password are required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return nil, fmt.Errorf("%w: email is not valid", domain.ErrInvalidInput)
	}
	if len(p.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	if !p.Gender.Valid() || !p.Status.Valid() {
		return nil, fmt.Errorf("%w: gender and status are required", domain.ErrInvalidInput)
	}
	if p.BirthDate.IsZero() {
		return nil, fmt.Errorf("%w: birth date is required", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p.Password = ""

	account := &domain.Account{
		Email:        p.Email,
		PasswordHash: string(hash),
		Profile:      p,
		Role:         defaultRole,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// Login verifies credentials and returns a signed JWT with the account it was issued for.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil, domain.ErrUnauthorized
		}
		return "", nil, fmt.Errorf("get account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, domain.ErrUnauthorized
	}
	if !account.Active {
		return "", nil, domain.ErrUnauthorized
	}

	token, err := s.generateJWT(account)
	if err != nil {
		return "", nil, fmt.Errorf("generate jwt: %w", err)
	}
	return token, account, nil
}

// ValidateToken parses and validates a JWT token string.
// Returns the account ID from the sub claim.
func (s *AuthService) ValidateToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, domain.ErrUnauthorized
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, domain.ErrUnauthorized
	}
	return id, nil
}

// GetAccount retrieves an account by its ID.
func (s *AuthService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *AuthService) generateJWT(a *domain.Account) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":       strconv.FormatInt(a.ID, 10),
		"email":     a.Email,
		"full_name": a.Profile.FullName(),
		"iat":       now.Unix(),
		"exp":       now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
