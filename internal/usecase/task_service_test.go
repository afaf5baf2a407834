package usecase

import (
	"errors"
	"reflect"
	"testing"

	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/event"
	"example.com/teamboard/internal/storage/memory"
)

type notifyCall struct {
	userIDs []string
	ev      event.Event
}

type pubRecorder struct {
	broadcasts []event.Event
	notifies   []notifyCall
}

func (p *pubRecorder) Broadcast(ev event.Event) {
	p.broadcasts = append(p.broadcasts, ev)
}

func (p *pubRecorder) Notify(userIDs []string, ev event.Event) {
	p.notifies = append(p.notifies, notifyCall{userIDs: userIDs, ev: ev})
}

func (p *pubRecorder) lastNotification(t *testing.T) (notifyCall, event.NotificationPayload) {
	t.Helper()
	if len(p.notifies) == 0 {
		t.Fatal("expected a notification, got none")
	}
	call := p.notifies[len(p.notifies)-1]
	payload, err := call.ev.Notification()
	if err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	return call, payload
}

func TestCreate_BroadcastsAndNotifiesAssignee(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	created, err := svc.Create("creator", CreateTaskInput{Title: "  ship it  ", AssigneeID: "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "ship it" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if created.Status != domain.TaskStatusTodo || created.Priority != domain.TaskPriorityMedium {
		t.Fatalf("expected defaults, got %s/%s", created.Status, created.Priority)
	}

	if len(pub.broadcasts) != 1 || pub.broadcasts[0].Type != event.TypeTaskCreated {
		t.Fatalf("expected one task_created broadcast, got %v", pub.broadcasts)
	}
	got, err := pub.broadcasts[0].Task()
	if err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if got.ID != created.ID || got.AssigneeID != "bob" {
		t.Fatalf("broadcast does not carry the full created task: %+v", got)
	}

	call, payload := pub.lastNotification(t)
	if !reflect.DeepEqual(call.userIDs, []string{"bob"}) {
		t.Fatalf("expected notification addressed to bob, got %v", call.userIDs)
	}
	if payload.Kind != event.NotificationAssigned || payload.TaskID != created.ID {
		t.Fatalf("unexpected notification payload: %+v", payload)
	}
}

func TestCreate_NoAssigneeNoNotification(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	if _, err := svc.Create("creator", CreateTaskInput{Title: "solo"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(pub.notifies) != 0 {
		t.Fatalf("expected no notification, got %v", pub.notifies)
	}
}

func TestUpdate_CompletedNotifiesCreatorOnTransitionOnly(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	created, err := svc.Create("carol", CreateTaskInput{Title: "review docs", AssigneeID: "bob", Status: domain.TaskStatusInProgress})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pub.notifies = nil

	completed := domain.TaskStatusCompleted
	updated, err := svc.Update("bob", created.ID, UpdateTaskInput{Status: &completed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}

	if len(pub.broadcasts) != 2 || pub.broadcasts[1].Type != event.TypeTaskUpdated {
		t.Fatalf("expected task_updated broadcast, got %v", pub.broadcasts)
	}
	call, payload := pub.lastNotification(t)
	if !reflect.DeepEqual(call.userIDs, []string{"carol"}) {
		t.Fatalf("completed notification must target the creator, got %v", call.userIDs)
	}
	if payload.Kind != event.NotificationCompleted {
		t.Fatalf("expected completed kind, got %q", payload.Kind)
	}

	// a second update that keeps status completed must not re-notify
	pub.notifies = nil
	title := "review docs again"
	if _, err := svc.Update("bob", created.ID, UpdateTaskInput{Title: &title}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if len(pub.notifies) != 0 {
		t.Fatalf("expected no notification when status stays completed, got %v", pub.notifies)
	}
}

func TestUpdate_AssigneeChangeNotifiesNewAssigneeOnly(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	created, err := svc.Create("carol", CreateTaskInput{Title: "triage", AssigneeID: "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pub.notifies = nil

	// unchanged assignee: no assigned notification
	same := "bob"
	if _, err := svc.Update("carol", created.ID, UpdateTaskInput{AssigneeID: &same}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(pub.notifies) != 0 {
		t.Fatalf("expected no notification for unchanged assignee, got %v", pub.notifies)
	}

	next := "dave"
	if _, err := svc.Update("carol", created.ID, UpdateTaskInput{AssigneeID: &next}); err != nil {
		t.Fatalf("update: %v", err)
	}
	call, payload := pub.lastNotification(t)
	if !reflect.DeepEqual(call.userIDs, []string{"dave"}) {
		t.Fatalf("expected notification to new assignee, got %v", call.userIDs)
	}
	if payload.Kind != event.NotificationAssigned {
		t.Fatalf("expected assigned kind, got %q", payload.Kind)
	}

	// clearing the assignee notifies nobody
	pub.notifies = nil
	empty := ""
	if _, err := svc.Update("carol", created.ID, UpdateTaskInput{AssigneeID: &empty}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(pub.notifies) != 0 {
		t.Fatalf("expected no notification when assignee cleared, got %v", pub.notifies)
	}
}

func TestUpdate_Permissions(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	created, err := svc.Create("carol", CreateTaskInput{Title: "locked", AssigneeID: "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "hijacked"
	if _, err := svc.Update("mallory", created.ID, UpdateTaskInput{Title: &title}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger update, got %v", err)
	}
	if _, err := svc.Update("bob", created.ID, UpdateTaskInput{Title: &title}); err != nil {
		t.Fatalf("assignee update should be allowed: %v", err)
	}
	if err := svc.Delete("bob", created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-creator delete, got %v", err)
	}
	if err := svc.Delete("carol", created.ID); err != nil {
		t.Fatalf("creator delete: %v", err)
	}
	last := pub.broadcasts[len(pub.broadcasts)-1]
	if last.Type != event.TypeTaskDeleted {
		t.Fatalf("expected task_deleted broadcast, got %s", last.Type)
	}
	id, err := last.TaskID()
	if err != nil || id != created.ID {
		t.Fatalf("delete broadcast must carry only the id: %v %v", id, err)
	}
}

func TestAddComment_BroadcastsAndNotifies(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	created, err := svc.Create("carol", CreateTaskInput{Title: "discuss", AssigneeID: "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pub.notifies = nil

	comment, err := svc.AddComment("uli", created.ID, "  looks good  ")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if comment.Content != "looks good" {
		t.Fatalf("expected trimmed content, got %q", comment.Content)
	}

	last := pub.broadcasts[len(pub.broadcasts)-1]
	if last.Type != event.TypeTaskCommentAdded {
		t.Fatalf("expected task_comment_added broadcast, got %s", last.Type)
	}
	p, err := last.CommentAdded()
	if err != nil {
		t.Fatalf("decode comment broadcast: %v", err)
	}
	if p.TaskID != created.ID || p.Comment.ID != comment.ID {
		t.Fatalf("unexpected comment payload: %+v", p)
	}

	call, payload := pub.lastNotification(t)
	if !reflect.DeepEqual(call.userIDs, []string{"carol", "bob"}) {
		t.Fatalf("expected creator and assignee targeted, got %v", call.userIDs)
	}
	if payload.Kind != event.NotificationCommented {
		t.Fatalf("expected commented kind, got %q", payload.Kind)
	}
}

func TestCommentNotifyTargets(t *testing.T) {
	cases := []struct {
		name                      string
		creator, assignee, author string
		want                      []string
	}{
		{"creator and assignee", "c", "a", "u", []string{"c", "a"}},
		{"author is creator", "c", "a", "c", []string{"a"}},
		{"author is assignee", "c", "a", "a", []string{"c"}},
		{"creator is assignee is author", "u", "u", "u", nil},
		{"no assignee", "c", "", "u", []string{"c"}},
		{"creator equals assignee", "c", "c", "u", []string{"c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := commentNotifyTargets(tc.creator, tc.assignee, tc.author)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("targets(%s,%s,%s) = %v, want %v", tc.creator, tc.assignee, tc.author, got, tc.want)
			}
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	pub := &pubRecorder{}
	svc := NewTaskService(memory.New(), pub)

	if _, err := svc.Create("c", CreateTaskInput{Title: "   "}); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
	if _, err := svc.Create("c", CreateTaskInput{Title: "x", Status: "archived"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.Create("c", CreateTaskInput{Title: "x", Priority: "extreme"}); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected ErrInvalidPriority, got %v", err)
	}
	if len(pub.broadcasts) != 0 {
		t.Fatalf("failed mutations must not broadcast, got %v", pub.broadcasts)
	}
}
