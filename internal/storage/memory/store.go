package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/storage"
)

// Store keeps users, tasks and comments in process memory. It backs the
// default dev configuration and every repository-level test.
type Store struct {
	mu    sync.RWMutex
	users map[string]domain.User
	tasks map[string]domain.Task
	now   func() time.Time
}

func New() *Store {
	return &Store{
		users: make(map[string]domain.User),
		tasks: make(map[string]domain.Task),
		now:   time.Now,
	}
}

func (s *Store) ListUsers() ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *Store) GetUser(id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return domain.User{}, storage.ErrNotFound
}

func (s *Store) CreateUser(u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return domain.User{}, storage.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = s.now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListTasks() ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		res = append(res, copyTask(t))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func (s *Store) GetTask(id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	return copyTask(t), nil
}

func (s *Store) CreateTask(t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Comments = nil
	s.tasks[t.ID] = t
	return copyTask(t), nil
}

func (s *Store) UpdateTask(t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[t.ID]
	if !ok {
		return domain.Task{}, storage.ErrNotFound
	}
	t.CreatedAt = existing.CreatedAt
	t.Comments = existing.Comments
	t.UpdatedAt = s.now().UTC()
	s.tasks[t.ID] = t
	return copyTask(t), nil
}

func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) AddComment(c domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[c.TaskID]
	if !ok {
		return domain.Comment{}, storage.ErrNotFound
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.now().UTC()
	t.Comments = append(t.Comments, c)
	t.UpdatedAt = c.CreatedAt
	s.tasks[t.ID] = t
	return c, nil
}

func copyTask(t domain.Task) domain.Task {
	if t.Comments != nil {
		comments := make([]domain.Comment, len(t.Comments))
		copy(comments, t.Comments)
		t.Comments = comments
	}
	if t.DueAt != nil {
		due := *t.DueAt
		t.DueAt = &due
	}
	return t
}
