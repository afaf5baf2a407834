package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/event"
	"example.com/teamboard/internal/repository"
)

var (
	ErrInvalidTitle    = errors.New("task title is empty")
	ErrInvalidStatus   = errors.New("invalid task status")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrInvalidContent  = errors.New("comment content is empty")
	ErrForbidden       = errors.New("not allowed")
)

// Publisher is the push side of the sync layer. Both methods are
// fire-and-forget; failures never reach the mutation's caller.
type Publisher interface {
	Broadcast(ev event.Event)
	Notify(userIDs []string, ev event.Event)
}

// TaskService performs task mutations and republishes every successful one:
// a broadcast of the full post-mutation entity to all clients, plus targeted
// notifications to the users the change concerns.
type TaskService struct {
	repo repository.TaskRepository
	pub  Publisher
}

func NewTaskService(repo repository.TaskRepository, pub Publisher) *TaskService {
	return &TaskService{repo: repo, pub: pub}
}

type CreateTaskInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	AssigneeID  string
	DueAt       *time.Time
}

type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssigneeID  *string
	DueAt       *time.Time
}

func (s *TaskService) List() ([]domain.Task, error) {
	return s.repo.ListTasks()
}

func (s *TaskService) Get(id string) (domain.Task, error) {
	return s.repo.GetTask(id)
}

func (s *TaskService) Create(actorID string, in CreateTaskInput) (domain.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Task{}, ErrInvalidTitle
	}
	if in.Status == "" {
		in.Status = domain.TaskStatusTodo
	}
	if !domain.ValidTaskStatus(in.Status) {
		return domain.Task{}, ErrInvalidStatus
	}
	if in.Priority == "" {
		in.Priority = domain.TaskPriorityMedium
	}
	if !domain.ValidTaskPriority(in.Priority) {
		return domain.Task{}, ErrInvalidPriority
	}
	created, err := s.repo.CreateTask(domain.Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		AssigneeID:  in.AssigneeID,
		CreatorID:   actorID,
		DueAt:       in.DueAt,
	})
	if err != nil {
		return domain.Task{}, err
	}

	s.pub.Broadcast(event.TaskCreated(created))
	if created.AssigneeID != "" {
		s.pub.Notify([]string{created.AssigneeID}, event.Notification(
			event.NotificationAssigned,
			fmt.Sprintf("You have been assigned a new task: %s", created.Title),
			created.ID,
		))
	}
	return created, nil
}

func (s *TaskService) Update(actorID, id string, in UpdateTaskInput) (domain.Task, error) {
	prior, err := s.repo.GetTask(id)
	if err != nil {
		return domain.Task{}, err
	}
	if actorID != prior.CreatorID && actorID != prior.AssigneeID {
		return domain.Task{}, ErrForbidden
	}

	next := prior
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Task{}, ErrInvalidTitle
		}
		next.Title = title
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		if !domain.ValidTaskStatus(*in.Status) {
			return domain.Task{}, ErrInvalidStatus
		}
		next.Status = *in.Status
	}
	if in.Priority != nil {
		if !domain.ValidTaskPriority(*in.Priority) {
			return domain.Task{}, ErrInvalidPriority
		}
		next.Priority = *in.Priority
	}
	if in.AssigneeID != nil {
		next.AssigneeID = *in.AssigneeID
	}
	if in.DueAt != nil {
		next.DueAt = in.DueAt
	}

	updated, err := s.repo.UpdateTask(next)
	if err != nil {
		return domain.Task{}, err
	}

	s.pub.Broadcast(event.TaskUpdated(updated))
	if updated.AssigneeID != "" && updated.AssigneeID != prior.AssigneeID {
		s.pub.Notify([]string{updated.AssigneeID}, event.Notification(
			event.NotificationAssigned,
			fmt.Sprintf("You have been assigned a task: %s", updated.Title),
			updated.ID,
		))
	}
	if updated.Status == domain.TaskStatusCompleted && prior.Status != domain.TaskStatusCompleted {
		s.pub.Notify([]string{updated.CreatorID}, event.Notification(
			event.NotificationCompleted,
			fmt.Sprintf("Task %q has been marked as completed", updated.Title),
			updated.ID,
		))
	}
	return updated, nil
}

func (s *TaskService) Delete(actorID, id string) error {
	prior, err := s.repo.GetTask(id)
	if err != nil {
		return err
	}
	if actorID != prior.CreatorID {
		return ErrForbidden
	}
	if err := s.repo.DeleteTask(id); err != nil {
		return err
	}
	s.pub.Broadcast(event.TaskDeleted(id))
	return nil
}

func (s *TaskService) AddComment(actorID, taskID, content string) (domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, ErrInvalidContent
	}
	task, err := s.repo.GetTask(taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	comment, err := s.repo.AddComment(domain.Comment{
		TaskID:   taskID,
		AuthorID: actorID,
		Content:  content,
	})
	if err != nil {
		return domain.Comment{}, err
	}

	s.pub.Broadcast(event.TaskCommentAdded(taskID, comment))
	if targets := commentNotifyTargets(task.CreatorID, task.AssigneeID, actorID); len(targets) > 0 {
		s.pub.Notify(targets, event.Notification(
			event.NotificationCommented,
			fmt.Sprintf("New comment on task %q", task.Title),
			taskID,
		))
	}
	return comment, nil
}

// commentNotifyTargets is {creator, assignee} minus the commenting user;
// the author of a comment is never notified about it.
func commentNotifyTargets(creatorID, assigneeID, authorID string) []string {
	var targets []string
	if creatorID != "" && creatorID != authorID {
		targets = append(targets, creatorID)
	}
	if assigneeID != "" && assigneeID != authorID && assigneeID != creatorID {
		targets = append(targets, assigneeID)
	}
	return targets
}
