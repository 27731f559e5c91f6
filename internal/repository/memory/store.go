// Package memory is an in-process implementation of the repository
// interfaces, used for local runs without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/repository"
)

var (
	_ repository.UserRepository    = (*Store)(nil)
	_ repository.ChannelRepository = (*Store)(nil)
)

// Store keeps users, subscriptions and watch history in maps guarded by one mutex.
type Store struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*model.User
	subs    map[uuid.UUID]map[uuid.UUID]bool // channel -> subscribers
	videos  map[uuid.UUID]model.WatchedVideo
	history map[uuid.UUID][]uuid.UUID
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:   map[uuid.UUID]*model.User{},
		subs:    map[uuid.UUID]map[uuid.UUID]bool{},
		videos:  map[uuid.UUID]model.WatchedVideo{},
		history: map[uuid.UUID][]uuid.UUID{},
	}
}

func (s *Store) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.users {
		if x.Username == u.Username || x.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) FindByLogin(_ context.Context, username, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// a username match wins over an email match on another account
	for _, u := range s.users {
		if username != "" && u.Username == username {
			c := *u
			return &c, nil
		}
	}
	for _, u := range s.users {
		if email != "" && u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *Store) List(context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	return s.mutate(id, func(u *model.User) { u.RefreshToken = token })
}

func (s *Store) SwapRefreshToken(_ context.Context, id uuid.UUID, expected, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.RefreshToken == "" || u.RefreshToken != expected {
		return errs.ErrVersionConflict
	}
	u.RefreshToken = token
	return nil
}

func (s *Store) ClearRefreshToken(_ context.Context, id uuid.UUID) error {
	return s.mutate(id, func(u *model.User) { u.RefreshToken = "" })
}

func (s *Store) SetPassword(_ context.Context, id uuid.UUID, hash []byte) error {
	return s.mutate(id, func(u *model.User) {
		u.PwdHash = append([]byte(nil), hash...)
		u.UpdatedAt = time.Now().UTC()
	})
}

func (s *Store) UpdateAccount(_ context.Context, id uuid.UUID, fullName, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.users {
		if x.ID != id && x.Email == email {
			return nil, errs.ErrAlreadyExists
		}
	}
	return s.applyLocked(id, func(u *model.User) { u.FullName, u.Email = fullName, email })
}

func (s *Store) SetAvatar(_ context.Context, id uuid.UUID, url string) (*model.User, error) {
	return s.mutateReturning(id, func(u *model.User) { u.Avatar = url })
}

func (s *Store) SetCoverImage(_ context.Context, id uuid.UUID, url string) (*model.User, error) {
	return s.mutateReturning(id, func(u *model.User) { u.CoverImage = url })
}

// Subscribe records that subscriber follows channel.
func (s *Store) Subscribe(subscriber, channel uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[channel] == nil {
		s.subs[channel] = map[uuid.UUID]bool{}
	}
	s.subs[channel][subscriber] = true
}

// Watch appends a video to the user's history.
func (s *Store) Watch(userID uuid.UUID, v model.WatchedVideo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
	s.history[userID] = append(s.history[userID], v.ID)
}

func (s *Store) ChannelProfile(_ context.Context, username string, viewerID uuid.UUID) (*model.ChannelProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username != username {
			continue
		}
		var following int64
		for _, subs := range s.subs {
			if subs[u.ID] {
				following++
			}
		}
		return &model.ChannelProfile{
			ID:                u.ID,
			Username:          u.Username,
			FullName:          u.FullName,
			Email:             u.Email,
			Avatar:            u.Avatar,
			CoverImage:        u.CoverImage,
			SubscribersCount:  int64(len(s.subs[u.ID])),
			SubscribedToCount: following,
			IsSubscribed:      s.subs[u.ID][viewerID],
		}, nil
	}
	return nil, errs.ErrNotFound
}

func (s *Store) WatchHistory(_ context.Context, userID uuid.UUID) ([]model.WatchedVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.WatchedVideo, 0, len(s.history[userID]))
	for _, id := range s.history[userID] {
		out = append(out, s.videos[id])
	}
	return out, nil
}

func (s *Store) mutate(id uuid.UUID, apply func(u *model.User)) error {
	_, err := s.mutateReturning(id, apply)
	return err
}

func (s *Store) mutateReturning(id uuid.UUID, apply func(u *model.User)) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(id, apply)
}

// applyLocked requires s.mu held.
func (s *Store) applyLocked(id uuid.UUID, apply func(u *model.User)) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	apply(u)
	c := *u
	return &c, nil
}
