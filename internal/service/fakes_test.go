package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tubeaccount/internal/assets"
	"github.com/and161185/tubeaccount/internal/errs"
	"github.com/and161185/tubeaccount/internal/limiter"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/repository"
)

type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.User

	createErr error
	getErr    error
	setErr    error
	updateErr error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uuid.UUID]*model.User{}} }

func (f *fakeUsers) put(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *u
	f.byID[u.ID] = &c
}

func (f *fakeUsers) stored(id uuid.UUID) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, x := range f.byID {
		if x.Username == u.Username || x.Email == u.Email {
			return errs.ErrAlreadyExists
		}
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	c := *u
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) FindByLogin(_ context.Context, username, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if username != "" && u.Username == username {
			c := *u
			return &c, nil
		}
	}
	for _, u := range f.byID {
		if email != "" && u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) List(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]model.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeUsers) SetRefreshToken(_ context.Context, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (f *fakeUsers) SwapRefreshToken(_ context.Context, id uuid.UUID, expected, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.byID[id]
	if !ok || u.RefreshToken != expected {
		return errs.ErrVersionConflict
	}
	u.RefreshToken = token
	return nil
}

func (f *fakeUsers) ClearRefreshToken(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.RefreshToken = ""
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id uuid.UUID, hash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.PwdHash = append([]byte(nil), hash...)
	return nil
}

func (f *fakeUsers) update(id uuid.UUID, apply func(u *model.User)) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	apply(u)
	c := *u
	return &c, nil
}

func (f *fakeUsers) UpdateAccount(_ context.Context, id uuid.UUID, fullName, email string) (*model.User, error) {
	f.mu.Lock()
	for _, x := range f.byID {
		if x.ID != id && x.Email == email {
			f.mu.Unlock()
			return nil, errs.ErrAlreadyExists
		}
	}
	f.mu.Unlock()
	return f.update(id, func(u *model.User) { u.FullName, u.Email = fullName, email })
}

func (f *fakeUsers) SetAvatar(_ context.Context, id uuid.UUID, url string) (*model.User, error) {
	return f.update(id, func(u *model.User) { u.Avatar = url })
}

func (f *fakeUsers) SetCoverImage(_ context.Context, id uuid.UUID, url string) (*model.User, error) {
	return f.update(id, func(u *model.User) { u.CoverImage = url })
}

type fakeUploader struct {
	failKinds map[assets.Kind]bool
	calls     []assets.Kind
}

var _ assets.Uploader = (*fakeUploader)(nil)

func (u *fakeUploader) Upload(_ context.Context, kind assets.Kind, f assets.File) (string, error) {
	u.calls = append(u.calls, kind)
	if u.failKinds[kind] {
		return "", errors.New("asset host down")
	}
	return "https://assets.test/" + string(kind) + "/" + f.Name, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	lastKey      string
	failureKeys  []string
	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, key string, _ []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastKey = key
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(_ context.Context, key string, _ []byte) (bool, time.Duration, error) {
	l.failureCalls++
	l.failureKeys = append(l.failureKeys, key)
	return l.failBlocked, 0, l.failErr
}

type fakeChannels struct {
	profile *model.ChannelProfile
	history []model.WatchedVideo
	err     error

	gotUsername string
	gotViewer   uuid.UUID
}

var _ repository.ChannelRepository = (*fakeChannels)(nil)

func (f *fakeChannels) ChannelProfile(_ context.Context, username string, viewer uuid.UUID) (*model.ChannelProfile, error) {
	f.gotUsername, f.gotViewer = username, viewer
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func (f *fakeChannels) WatchHistory(context.Context, uuid.UUID) ([]model.WatchedVideo, error) {
	return f.history, f.err
}
