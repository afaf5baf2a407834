// Package event defines the closed set of events carried over the push
// channel, shared by the server hub and the client reconciler. Payloads are
// validated on receipt; anything outside the union is rejected.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/teamboard/internal/domain"
)

const (
	TypeOnlineMembers      = "online_members"
	TypeMemberConnected    = "member_connected"
	TypeMemberDisconnected = "member_disconnected"
	TypeTaskCreated        = "task_created"
	TypeTaskUpdated        = "task_updated"
	TypeTaskDeleted        = "task_deleted"
	TypeTaskCommentAdded   = "task_comment_added"
	TypeNotification       = "notification"
)

const (
	NotificationAssigned  = "assigned"
	NotificationUpdated   = "updated"
	NotificationCompleted = "completed"
	NotificationCommented = "commented"
)

var (
	ErrUnknownType = errors.New("unknown event type")
	ErrMalformed   = errors.New("malformed event payload")
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type OnlineMembersPayload struct {
	UserIDs []string `json:"user_ids"`
}

type MemberConnectedPayload struct {
	UserID string `json:"user_id"`
}

type MemberDisconnectedPayload struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type TaskDeletedPayload struct {
	TaskID string `json:"task_id"`
}

type CommentAddedPayload struct {
	TaskID  string         `json:"task_id"`
	Comment domain.Comment `json:"comment"`
}

type NotificationPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

func OnlineMembers(userIDs []string) Event {
	if userIDs == nil {
		userIDs = []string{}
	}
	return wrap(TypeOnlineMembers, OnlineMembersPayload{UserIDs: userIDs})
}

func MemberConnected(userID string) Event {
	return wrap(TypeMemberConnected, MemberConnectedPayload{UserID: userID})
}

func MemberDisconnected(userID string, lastSeenAt time.Time) Event {
	return wrap(TypeMemberDisconnected, MemberDisconnectedPayload{UserID: userID, LastSeenAt: lastSeenAt})
}

func TaskCreated(task domain.Task) Event {
	return wrap(TypeTaskCreated, task)
}

func TaskUpdated(task domain.Task) Event {
	return wrap(TypeTaskUpdated, task)
}

func TaskDeleted(taskID string) Event {
	return wrap(TypeTaskDeleted, TaskDeletedPayload{TaskID: taskID})
}

func TaskCommentAdded(taskID string, comment domain.Comment) Event {
	return wrap(TypeTaskCommentAdded, CommentAddedPayload{TaskID: taskID, Comment: comment})
}

func Notification(kind, message, taskID string) Event {
	return wrap(TypeNotification, NotificationPayload{Kind: kind, Message: message, TaskID: taskID})
}

func wrap(typ string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		// payload types above contain no unmarshalable values
		panic(err)
	}
	return Event{Type: typ, Data: data}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire frame into an Event, rejecting unknown types. The
// payload itself is validated by the typed accessors below.
func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch e.Type {
	case TypeOnlineMembers, TypeMemberConnected, TypeMemberDisconnected,
		TypeTaskCreated, TypeTaskUpdated, TypeTaskDeleted,
		TypeTaskCommentAdded, TypeNotification:
		return e, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
}

func (e Event) OnlineMembers() ([]string, error) {
	var p OnlineMembersPayload
	if err := unwrap(e.Data, &p); err != nil {
		return nil, err
	}
	return p.UserIDs, nil
}

func (e Event) MemberConnected() (string, error) {
	var p MemberConnectedPayload
	if err := unwrap(e.Data, &p); err != nil {
		return "", err
	}
	if p.UserID == "" {
		return "", fmt.Errorf("%w: missing user_id", ErrMalformed)
	}
	return p.UserID, nil
}

func (e Event) MemberDisconnected() (MemberDisconnectedPayload, error) {
	var p MemberDisconnectedPayload
	if err := unwrap(e.Data, &p); err != nil {
		return MemberDisconnectedPayload{}, err
	}
	if p.UserID == "" {
		return MemberDisconnectedPayload{}, fmt.Errorf("%w: missing user_id", ErrMalformed)
	}
	return p, nil
}

func (e Event) Task() (domain.Task, error) {
	var t domain.Task
	if err := unwrap(e.Data, &t); err != nil {
		return domain.Task{}, err
	}
	if t.ID == "" {
		return domain.Task{}, fmt.Errorf("%w: missing task id", ErrMalformed)
	}
	return t, nil
}

func (e Event) TaskID() (string, error) {
	var p TaskDeletedPayload
	if err := unwrap(e.Data, &p); err != nil {
		return "", err
	}
	if p.TaskID == "" {
		return "", fmt.Errorf("%w: missing task_id", ErrMalformed)
	}
	return p.TaskID, nil
}

func (e Event) CommentAdded() (CommentAddedPayload, error) {
	var p CommentAddedPayload
	if err := unwrap(e.Data, &p); err != nil {
		return CommentAddedPayload{}, err
	}
	if p.TaskID == "" || p.Comment.ID == "" {
		return CommentAddedPayload{}, fmt.Errorf("%w: missing task_id or comment id", ErrMalformed)
	}
	return p, nil
}

func (e Event) Notification() (NotificationPayload, error) {
	var p NotificationPayload
	if err := unwrap(e.Data, &p); err != nil {
		return NotificationPayload{}, err
	}
	switch p.Kind {
	case NotificationAssigned, NotificationUpdated, NotificationCompleted, NotificationCommented:
	default:
		return NotificationPayload{}, fmt.Errorf("%w: unknown notification kind %q", ErrMalformed, p.Kind)
	}
	return p, nil
}

func unwrap(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
