package client

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/event"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New("http://127.0.0.1:0", "token", slog.Default())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func frame(t *testing.T, ev event.Event) []byte {
	t.Helper()
	raw, err := ev.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestApply_MalformedFrameLeavesCacheIntact(t *testing.T) {
	c := newTestClient(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	seed := domain.Task{ID: "t1", Title: "keep", Status: domain.TaskStatusTodo, Priority: domain.TaskPriorityLow, CreatorID: "u", UpdatedAt: now}
	c.cache.Upsert(seed)

	for _, raw := range [][]byte{
		[]byte("not json at all"),
		[]byte(`{"type":"mystery_event","data":{}}`),
		[]byte(`{"type":"task_updated","data":{"title":"no id"}}`),
		[]byte(`{"type":"task_deleted","data":{}}`),
		[]byte(`{"type":"task_comment_added","data":{"task_id":"t1"}}`),
		[]byte(`{"type":"notification","data":{"kind":"spam"}}`),
	} {
		c.apply(raw)
	}

	got, ok := c.cache.Get("t1")
	if !ok || got.Title != "keep" || len(got.Comments) != 0 {
		t.Fatalf("malformed frames must not touch the cache, got %+v", got)
	}
	if c.cache.Len() != 1 {
		t.Fatalf("expected 1 task, got %d", c.cache.Len())
	}
}

func TestApply_DispatchesEveryEventKind(t *testing.T) {
	c := newTestClient(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	c.apply(frame(t, event.OnlineMembers([]string{"alice"})))
	c.apply(frame(t, event.MemberConnected("bob")))

	created := domain.Task{ID: "t1", Title: "new", Status: domain.TaskStatusTodo, Priority: domain.TaskPriorityLow, CreatorID: "alice", UpdatedAt: now}
	c.apply(frame(t, event.TaskCreated(created)))

	updated := created
	updated.Status = domain.TaskStatusInProgress
	updated.UpdatedAt = now.Add(time.Minute)
	c.apply(frame(t, event.TaskUpdated(updated)))

	comment := domain.Comment{ID: "c1", TaskID: "t1", AuthorID: "bob", Content: "on it", CreatedAt: now}
	c.apply(frame(t, event.TaskCommentAdded("t1", comment)))

	got, ok := c.cache.Get("t1")
	if !ok || got.Status != domain.TaskStatusInProgress || len(got.Comments) != 1 {
		t.Fatalf("events not reconciled: %+v", got)
	}
	if online := c.cache.Online(); len(online) != 2 {
		t.Fatalf("expected alice and bob online, got %v", online)
	}

	c.apply(frame(t, event.MemberDisconnected("bob", now)))
	if c.cache.IsOnline("bob") {
		t.Fatal("bob should be offline after member_disconnected")
	}

	c.apply(frame(t, event.TaskDeleted("t1")))
	if c.cache.Len() != 0 {
		t.Fatal("task_deleted not applied")
	}
}

func TestApply_NotificationInvokesHandler(t *testing.T) {
	c := newTestClient(t)
	var got []event.NotificationPayload
	c.OnNotification(func(n event.NotificationPayload) {
		got = append(got, n)
	})

	c.apply(frame(t, event.Notification(event.NotificationAssigned, "you are up", "t1")))

	if len(got) != 1 || got[0].Kind != event.NotificationAssigned || got[0].TaskID != "t1" {
		t.Fatalf("handler not invoked as expected: %v", got)
	}
}

func TestApply_EchoedEventAfterLocalMutationIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	confirmed := domain.Task{ID: "t1", Title: "mine", Status: domain.TaskStatusTodo, Priority: domain.TaskPriorityLow, CreatorID: "me", UpdatedAt: now}

	// local REST result applied first, then the server echo of the same
	// mutation arrives on the push channel
	c.cache.Upsert(confirmed)
	before, _ := json.Marshal(c.cache.Filtered())
	c.apply(frame(t, event.TaskCreated(confirmed)))
	after, _ := json.Marshal(c.cache.Filtered())

	if string(before) != string(after) {
		t.Fatalf("echoed event changed the cache:\nbefore: %s\nafter:  %s", before, after)
	}
}
