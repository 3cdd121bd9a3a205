package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/acadium/acadium-api/internal/models"
)

type UserRepository interface {
	// CreateOwner registers a team owner: the new user is the admin of a
	// tenant keyed by their own id.
	CreateOwner(ctx context.Context, email, password, firstName, lastName string) (models.User, error)
	CreateUser(ctx context.Context, tenantID, email, password, firstName, lastName string, role models.UserRole) (models.User, error)
	// CreateMember adds a membership record without credentials; the person
	// joined through a magic link and sets a password on first login.
	CreateMember(ctx context.Context, tenantID, email string, role models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListUsersByTenant(ctx context.Context, tenantID string) ([]models.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tenant_id, email, first_name, last_name, password_hash, role, is_active, created_at, updated_at`

func (u *userRepository) CreateOwner(ctx context.Context, email, password, firstName, lastName string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	// The owner's tenant id is their own user id, so it is generated here
	// rather than by the database.
	id := uuid.NewString()
	query := `
		INSERT INTO app.users (id, tenant_id, email, first_name, last_name, password_hash, role, is_active)
		VALUES ($1, $1, $2, $3, $4, $5, 'admin', TRUE)
		RETURNING ` + userColumns
	user, err := scanUser(u.db.QueryRowContext(ctx, query, id, email, strings.TrimSpace(firstName), strings.TrimSpace(lastName), string(hash)))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return models.User{}, errors.Wrap(err, "user already exists")
		}
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) CreateUser(ctx context.Context, tenantID, email, password, firstName, lastName string, role models.UserRole) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	return u.insertUser(ctx, tenantID, email, string(hash), strings.TrimSpace(firstName), strings.TrimSpace(lastName), role)
}

func (u *userRepository) CreateMember(ctx context.Context, tenantID, email string, role models.UserRole) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}
	return u.insertUser(ctx, tenantID, email, "", "", "", role)
}

func (u *userRepository) insertUser(ctx context.Context, tenantID, email, passwordHash, firstName, lastName string, role models.UserRole) (models.User, error) {
	query := `
		INSERT INTO app.users (tenant_id, email, first_name, last_name, password_hash, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING ` + userColumns
	user, err := scanUser(u.db.QueryRowContext(ctx, query, tenantID, email, firstName, lastName, passwordHash, role))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return models.User{}, errors.Wrap(err, "user already exists")
		}
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := u.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.User{}, errors.New("invalid credentials")
		}
		return models.User{}, err
	}

	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}
	if user.PasswordHash == "" {
		return models.User{}, errors.New("password not set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, errors.New("invalid credentials")
	}
	return user, nil
}

func (u *userRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM app.users
		WHERE email = $1 AND deleted_at IS NULL`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM app.users
		WHERE id = $1 AND deleted_at IS NULL`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) ListUsersByTenant(ctx context.Context, tenantID string) ([]models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM app.users
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY email`
	rows, err := u.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (u *userRepository) DeleteUser(ctx context.Context, userID string) error {
	const query = `
		UPDATE app.users
		SET is_active = FALSE, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`
	result, err := u.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
