package repository

import "example.com/teamboard/internal/domain"

// TaskRepository returns tasks with their comments populated, newest-updated
// first. Mutations return the full post-mutation entity so callers can
// republish it verbatim.
type TaskRepository interface {
	ListTasks() ([]domain.Task, error)
	GetTask(id string) (domain.Task, error)
	CreateTask(task domain.Task) (domain.Task, error)
	UpdateTask(task domain.Task) (domain.Task, error)
	DeleteTask(id string) error
	AddComment(comment domain.Comment) (domain.Comment, error)
}

type UserRepository interface {
	ListUsers() ([]domain.User, error)
	GetUser(id string) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	CreateUser(user domain.User) (domain.User, error)
}
