package testutil

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"feedline/internal/artifact"
	"feedline/internal/models"
)

// PostRepoStub is an in-memory post repository implementation for tests.
type PostRepoStub struct {
	mu     sync.Mutex
	items  map[uint]models.Post
	users  *UserRepoStub
	nextID uint
	now    time.Time

	// Err, when set, is returned by every call.
	Err error
	// UpdateErr and DeleteErr fail only the matching write.
	UpdateErr error
	DeleteErr error
}

// NewPostRepoStub creates a post store whose creator projections come from users.
func NewPostRepoStub(users *UserRepoStub) *PostRepoStub {
	return &PostRepoStub{
		items:  make(map[uint]models.Post),
		users:  users,
		nextID: 1,
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *PostRepoStub) withCreator(p models.Post) models.Post {
	if s.users != nil {
		if u, err := s.users.GetByID(context.Background(), p.CreatorID); err == nil {
			p.Creator = u
		}
	}
	return p
}

// Create stores post, stamping monotonically increasing timestamps.
func (s *PostRepoStub) Create(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	post.ID = s.nextID
	s.nextID++
	if post.CreatedAt.IsZero() {
		s.now = s.now.Add(time.Minute)
		post.CreatedAt = s.now
	}
	post.UpdatedAt = post.CreatedAt
	stored := *post
	stored.Creator = nil
	s.items[post.ID] = stored
	return nil
}

func (s *PostRepoStub) GetByID(_ context.Context, id uint) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.items[id]
	if !ok {
		return nil, models.NewNotFoundError("post")
	}
	p = s.withCreator(p)
	return &p, nil
}

func (s *PostRepoStub) List(_ context.Context, limit, offset int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := make([]models.Post, 0, len(s.items))
	for _, p := range s.items {
		all = append(all, s.withCreator(p))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []models.Post{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (s *PostRepoStub) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return int64(len(s.items)), nil
}

func (s *PostRepoStub) Update(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := cmp.Or(s.Err, s.UpdateErr); err != nil {
		return err
	}
	existing, ok := s.items[post.ID]
	if !ok {
		return models.NewNotFoundError("post")
	}
	existing.Title = post.Title
	existing.Content = post.Content
	existing.ImageURL = post.ImageURL
	existing.UpdatedAt = existing.UpdatedAt.Add(time.Second)
	s.items[post.ID] = existing
	return nil
}

func (s *PostRepoStub) Delete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := cmp.Or(s.Err, s.DeleteErr); err != nil {
		return err
	}
	if _, ok := s.items[id]; !ok {
		return models.NewNotFoundError("post")
	}
	delete(s.items, id)
	return nil
}

// UserRepoStub is an in-memory user repository implementation for tests.
type UserRepoStub struct {
	mu     sync.Mutex
	items  map[uint]models.User
	owned  map[uint][]uint
	nextID uint

	// AddPostErr and RemovePostErr, when set, fail the matching call.
	AddPostErr    error
	RemovePostErr error
}

func NewUserRepoStub() *UserRepoStub {
	return &UserRepoStub{items: make(map[uint]models.User), owned: make(map[uint][]uint), nextID: 1}
}

func (s *UserRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.items[id]
	if !ok {
		return nil, models.NewNotFoundError("user")
	}
	return &u, nil
}

func (s *UserRepoStub) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.items {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (s *UserRepoStub) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.items {
		if u.Email == user.Email {
			return models.NewValidationError("E-Mail address already exists!")
		}
	}
	user.ID = s.nextID
	s.nextID++
	if user.Status == "" {
		user.Status = models.DefaultUserStatus
	}
	s.items[user.ID] = *user
	return nil
}

func (s *UserRepoStub) UpdateStatus(_ context.Context, id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.items[id]
	if !ok {
		return models.NewNotFoundError("user")
	}
	u.Status = status
	s.items[id] = u
	return nil
}

func (s *UserRepoStub) AddPost(_ context.Context, userID, postID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AddPostErr != nil {
		return s.AddPostErr
	}
	s.owned[userID] = append(s.owned[userID], postID)
	return nil
}

func (s *UserRepoStub) RemovePost(_ context.Context, userID, postID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RemovePostErr != nil {
		return s.RemovePostErr
	}
	ids := s.owned[userID]
	for i, id := range ids {
		if id == postID {
			s.owned[userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// OwnedPosts returns the post ids recorded for userID.
func (s *UserRepoStub) OwnedPosts(userID uint) []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.owned[userID]...)
}

// Seed inserts a user directly.
func (s *UserRepoStub) Seed(name, email string) *models.User {
	u := &models.User{Name: name, Email: email, Password: "hash"}
	_ = s.Create(context.Background(), u)
	return u
}

// RecordingPublisher captures published feed events.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.FeedEvent

	// Err, when set, is returned from Publish after recording the event.
	Err error
}

func (p *RecordingPublisher) Publish(_ context.Context, event models.FeedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

// Events returns a copy of everything published so far.
func (p *RecordingPublisher) Events() []models.FeedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.FeedEvent(nil), p.events...)
}

// MemoryArtifacts is an artifact.Store that keeps bytes in memory and
// records deletions.
type MemoryArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	// DeleteErr, when set, fails every Delete.
	DeleteErr error
}

func NewMemoryArtifacts(keys ...string) *MemoryArtifacts {
	m := &MemoryArtifacts{objects: make(map[string][]byte)}
	for _, k := range keys {
		m.objects[k] = []byte("img")
	}
	return m
}

func (m *MemoryArtifacts) Name() string { return "memory" }

func (m *MemoryArtifacts) Save(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

func (m *MemoryArtifacts) Open(_ context.Context, url string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[url]
	if !ok {
		return nil, "", artifact.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "application/octet-stream", nil
}

func (m *MemoryArtifacts) Exists(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok, nil
}

func (m *MemoryArtifacts) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.objects[url]; !ok {
		return artifact.ErrNotFound
	}
	delete(m.objects, url)
	return nil
}

// Deleted lists every url Delete was called with.
func (m *MemoryArtifacts) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Has reports whether url is stored.
func (m *MemoryArtifacts) Has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

// ErrStoreDown simulates an unreachable backend.
var ErrStoreDown = errors.New("store unavailable")
