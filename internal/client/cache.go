// Package client is the consuming side of the sync layer: a REST client, a
// push-channel watcher and the cache that reconciles both into one
// consistent local view of the shared task board.
package client

import (
	"sort"
	"sync"

	"example.com/teamboard/internal/domain"
)

// Filter selects tasks by equality on status, priority and assignee. Empty
// fields match everything.
type Filter struct {
	Status     string
	Priority   string
	AssigneeID string
}

func (f Filter) Match(t domain.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	return true
}

// Cache is the authoritative local state: the union of the last full fetch
// and every push event applied since, deduplicated by id with last write
// winning in arrival order. The filtered view is always recomputed over the
// whole cache, never patched incrementally, so it stays correct under any
// event ordering.
type Cache struct {
	mu        sync.RWMutex
	tasks     map[string]domain.Task
	filter    Filter
	filtered  []domain.Task
	currentID string
	online    map[string]struct{}
}

func NewCache() *Cache {
	return &Cache{
		tasks:  make(map[string]domain.Task),
		online: make(map[string]struct{}),
	}
}

// ReplaceAll installs a full fetch result, dropping stale entries that the
// response no longer contains.
func (c *Cache) ReplaceAll(tasks []domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		c.tasks[t.ID] = t
	}
	if c.currentID != "" {
		if _, ok := c.tasks[c.currentID]; !ok {
			c.currentID = ""
		}
	}
	c.recompute()
}

// Upsert replaces the task in place if present, inserts it otherwise.
// Applying the same event twice leaves the cache unchanged after the first.
func (c *Cache) Upsert(t domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[t.ID] = t
	c.recompute()
}

// Delete removes the task and clears the open detail reference if it
// pointed at the removed task.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, id)
	if c.currentID == id {
		c.currentID = ""
	}
	c.recompute()
}

// AppendComment adds the comment to its task if the task is cached. An
// absent task means the event is dropped; the next full fetch catches up.
// A comment id already present is skipped, so the REST response and the
// echoed push event for the same comment cannot double-append.
func (c *Cache) AppendComment(taskID string, comment domain.Comment) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return false
	}
	for _, existing := range t.Comments {
		if existing.ID == comment.ID {
			return true
		}
	}
	t.Comments = append(t.Comments, comment)
	c.tasks[taskID] = t
	c.recompute()
	return true
}

func (c *Cache) Get(id string) (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	return t, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

func (c *Cache) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
	c.recompute()
}

func (c *Cache) ClearFilter() {
	c.SetFilter(Filter{})
}

// Filtered returns the current filtered view, newest-updated first.
func (c *Cache) Filtered() []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]domain.Task, len(c.filtered))
	copy(res, c.filtered)
	return res
}

// Open marks a task as the current detail view.
func (c *Cache) Open(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tasks[id]; !ok {
		return false
	}
	c.currentID = id
	return true
}

// Current returns the task open in the detail view, if any. The reference
// follows upserts by id and is cleared when the task is deleted.
func (c *Cache) Current() (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentID == "" {
		return domain.Task{}, false
	}
	t, ok := c.tasks[c.currentID]
	return t, ok
}

func (c *Cache) CloseDetail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentID = ""
}

func (c *Cache) SetOnline(userIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		c.online[id] = struct{}{}
	}
}

func (c *Cache) MarkOnline(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[userID] = struct{}{}
}

func (c *Cache) MarkOffline(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.online, userID)
}

func (c *Cache) Online() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]string, 0, len(c.online))
	for id := range c.online {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

func (c *Cache) IsOnline(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.online[userID]
	return ok
}

// recompute rebuilds the filtered view from the full cache. Callers hold
// the write lock.
func (c *Cache) recompute() {
	res := make([]domain.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if c.filter.Match(t) {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].UpdatedAt.After(res[j].UpdatedAt)
		}
		return res[i].ID < res[j].ID
	})
	c.filtered = res
}
