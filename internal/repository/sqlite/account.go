package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/msomdec/agun-web/internal/domain"
)

// AccountRepository implements domain.AccountRepository using SQLite.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new SQLite-backed AccountRepository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db.SqlDB}
}

const birthDateLayout = "2006-01-02"

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	now := time.Now().UTC()
	p := a.Profile
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password_hash, first_name, last_name, birth_date, gender, status,
		   nationality, origin_city, country, city, role, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Email, a.PasswordHash, p.FirstName, p.LastName, p.BirthDate.Format(birthDateLayout),
		string(p.Gender), string(p.Status), p.Nationality, p.OriginCity, p.Country, p.City,
		a.Role, a.Active, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrDuplicateAccount
		}
		return fmt.Errorf("insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

const accountColumns = `id, email, password_hash, first_name, last_name, birth_date, gender, status,
	nationality, origin_city, country, city, role, active, created_at, updated_at`

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("query account by id: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("query account by email: %w", err)
	}
	return a, nil
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	a := &domain.Account{}
	p := &a.Profile
	var birth, gender, status string
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &p.FirstName, &p.LastName, &birth, &gender, &status,
		&p.Nationality, &p.OriginCity, &p.Country, &p.City, &a.Role, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Gender = domain.Gender(gender)
	p.Status = domain.Status(status)
	p.Email = a.Email
	if p.BirthDate, err = time.Parse(birthDateLayout, birth); err != nil {
		return nil, fmt.Errorf("parse birth date %q: %w", birth, err)
	}
	return a, nil
}
