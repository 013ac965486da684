// Package memory is an in-process [tokenauth.UserRepository]. It keeps
// everything in maps guarded by a single mutex and is meant for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/actiontoken"
)

type actionSlot struct {
	hash      string
	expiresAt time.Time
}

type record struct {
	user    tokenauth.User
	actions map[actiontoken.Kind]actionSlot
}

// Repository is a concurrency-safe in-memory user repository.
type Repository struct {
	mu         sync.Mutex
	byID       map[string]*record
	byEmail    map[string]string
	byUsername map[string]string
	now        func() time.Time
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		byID:       make(map[string]*record),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

func (r *Repository) FindByEmail(_ context.Context, email string) (*tokenauth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, tokenauth.ErrUserNotFound
	}
	u := r.byID[id].user
	return &u, nil
}

func (r *Repository) FindByID(_ context.Context, id string) (*tokenauth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, tokenauth.ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

func (r *Repository) Create(_ context.Context, user *tokenauth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return tokenauth.ErrEmailTaken
	}
	if user.Username != "" {
		if _, taken := r.byUsername[user.Username]; taken {
			return tokenauth.ErrUsernameTaken
		}
		r.byUsername[user.Username] = user.ID
	}
	r.byID[user.ID] = &record{user: *user, actions: make(map[actiontoken.Kind]actionSlot)}
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *Repository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return tokenauth.ErrUserNotFound
	}
	rec.user.PasswordHash = hash
	rec.user.UpdatedAt = r.now().UTC()
	return nil
}

func (r *Repository) UpdateProfile(_ context.Context, id string, update tokenauth.ProfileUpdate) (*tokenauth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, tokenauth.ErrUserNotFound
	}
	if update.Username != nil && *update.Username != rec.user.Username {
		if owner, taken := r.byUsername[*update.Username]; taken && owner != id {
			return nil, tokenauth.ErrUsernameTaken
		}
		delete(r.byUsername, rec.user.Username)
		if *update.Username != "" {
			r.byUsername[*update.Username] = id
		}
		rec.user.Username = *update.Username
	}
	if update.Bio != nil {
		rec.user.Bio = *update.Bio
	}
	if update.AvatarURL != nil {
		rec.user.AvatarURL = *update.AvatarURL
	}
	rec.user.UpdatedAt = r.now().UTC()

	u := rec.user
	return &u, nil
}

// List returns users ordered by creation time, then id.
func (r *Repository) List(_ context.Context, limit, offset int) ([]tokenauth.User, error) {
	r.mu.Lock()
	all := make([]tokenauth.User, 0, len(r.byID))
	for _, rec := range r.byID {
		all = append(all, rec.user)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []tokenauth.User{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *Repository) SetActionToken(_ context.Context, userID string, kind actiontoken.Kind, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[userID]
	if !ok {
		return tokenauth.ErrUserNotFound
	}
	rec.actions[kind] = actionSlot{hash: tokenHash, expiresAt: expiresAt}
	return nil
}

// ConsumeActionToken matches, clears and applies effect under the
// repository lock, so at most one caller wins a given token.
func (r *Repository) ConsumeActionToken(_ context.Context, kind actiontoken.Kind, tokenHash string, now time.Time, effect actiontoken.Effect) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.byID {
		slot, ok := rec.actions[kind]
		if !ok || slot.hash != tokenHash || !slot.expiresAt.After(now) {
			continue
		}
		delete(rec.actions, kind)
		if effect.MarkEmailVerified {
			rec.user.EmailVerified = true
		}
		if effect.PasswordHash != "" {
			rec.user.PasswordHash = effect.PasswordHash
		}
		rec.user.UpdatedAt = now
		return id, nil
	}
	return "", actiontoken.ErrNotFound
}

// SetRole changes the role of id. It is not part of the repository contract
// and exists for seeding admins in development and tests.
func (r *Repository) SetRole(id, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return tokenauth.ErrUserNotFound
	}
	rec.user.Role = role
	return nil
}
