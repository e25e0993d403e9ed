package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type userStore struct{ s *Store }

func (r *userStore) Create(ctx context.Context, user *models.User, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return r.s.do(func(t *tables) error {
		email := strings.ToLower(strings.TrimSpace(user.Email))
		for _, u := range t.users {
			if u.Email == email {
				return store.ErrDuplicate
			}
		}
		if user.ID == "" {
			user.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		user.Email = email
		user.PasswordHash = string(hashed)
		user.CreatedAt = now
		user.UpdatedAt = now

		stored := *user
		stored.Roles = append([]models.Role(nil), user.Roles...)
		t.users[user.ID] = stored
		return nil
	})
}

func (r *userStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := r.s.do(func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.Roles = append([]models.Role(nil), u.Roles...)
		out = &u
		return nil
	})
	return out, err
}

func (r *userStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out *models.User
	err := r.s.do(func(t *tables) error {
		for _, u := range t.users {
			if u.Email == email {
				u.Roles = append([]models.Role(nil), u.Roles...)
				out = &u
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *userStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, store.ErrInvalidCredentials
	}
	return u, nil
}
