package inmem

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
)

type userRepo struct {
	db *DB
}

// UserRepository returns an in-memory repository.UserRepository.
func (d *DB) UserRepository() repository.UserRepository {
	return &userRepo{db: d}
}

func (r *userRepo) CreateOwner(_ context.Context, email, password, firstName, lastName string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	id := uuid.NewString()
	return r.insert(models.User{
		ID:           id,
		TenantID:     id,
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		IsActive:     true,
	})
}

func (r *userRepo) CreateUser(_ context.Context, tenantID, email, password, firstName, lastName string, role models.UserRole) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	return r.insert(models.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	})
}

func (r *userRepo) CreateMember(_ context.Context, tenantID, email string, role models.UserRole) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, errors.New("invalid role")
	}
	return r.insert(models.User{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Email:    email,
		Role:     role,
		IsActive: true,
	})
}

func (r *userRepo) insert(user models.User) (models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.users {
		if existing.Email == user.Email {
			return models.User{}, errors.New("user already exists")
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.db.users[user.ID] = user
	return user, nil
}

func (r *userRepo) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	user, err := r.GetUserByEmail(ctx, email)
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

func (r *userRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, user := range r.db.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func (r *userRepo) GetUserByID(_ context.Context, userID string) (models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[userID]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return user, nil
}

func (r *userRepo) ListUsersByTenant(_ context.Context, tenantID string) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var users []models.User
	for _, user := range r.db.users {
		if user.TenantID == tenantID {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (r *userRepo) DeleteUser(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[userID]; !ok {
		return models.ErrNotFound
	}
	delete(r.db.users, userID)
	return nil
}
