package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/event"
	"example.com/teamboard/internal/usecase"
)

// NotificationHandler receives addressed notifications pushed to this user.
type NotificationHandler func(event.NotificationPayload)

// Client talks to the server over REST for mutations and over the push
// channel for everything that happened elsewhere, reconciling both into its
// Cache.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	cache   *Cache
	logger  *slog.Logger
	onNote  NotificationHandler
}

func New(baseURL, token string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		cache:   NewCache(),
		logger:  logger,
	}, nil
}

func (c *Client) Cache() *Cache {
	return c.cache
}

func (c *Client) OnNotification(fn NotificationHandler) {
	c.onNote = fn
}

// Login authenticates and stores the issued token for subsequent calls and
// the push-channel handshake.
func (c *Client) Login(ctx context.Context, email, password string) (domain.User, error) {
	var res struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "api/auth/login",
		map[string]string{"email": email, "password": password}, &res)
	if err != nil {
		return domain.User{}, err
	}
	c.token = res.Token
	return res.User, nil
}

// FetchTasks performs the full fetch and replaces the cache with the
// result. It is the only way to (re)establish a trustworthy cache: after
// any disconnect the cache is stale until this succeeds again.
func (c *Client) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	var res struct {
		Items []domain.Task `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "api/tasks", nil, &res); err != nil {
		return nil, err
	}
	c.cache.ReplaceAll(res.Items)
	return res.Items, nil
}

func (c *Client) CreateTask(ctx context.Context, in usecase.CreateTaskInput) (domain.Task, error) {
	body := map[string]any{
		"title":       in.Title,
		"description": in.Description,
		"status":      in.Status,
		"priority":    in.Priority,
		"assignee_id": in.AssigneeID,
	}
	if in.DueAt != nil {
		body["due_at"] = in.DueAt
	}
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, "api/tasks", body, &task); err != nil {
		return domain.Task{}, err
	}
	c.cache.Upsert(task)
	return task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, in usecase.UpdateTaskInput) (domain.Task, error) {
	body := map[string]any{}
	if in.Title != nil {
		body["title"] = *in.Title
	}
	if in.Description != nil {
		body["description"] = *in.Description
	}
	if in.Status != nil {
		body["status"] = *in.Status
	}
	if in.Priority != nil {
		body["priority"] = *in.Priority
	}
	if in.AssigneeID != nil {
		body["assignee_id"] = *in.AssigneeID
	}
	if in.DueAt != nil {
		body["due_at"] = in.DueAt
	}
	var task domain.Task
	if err := c.do(ctx, http.MethodPut, "api/tasks/"+id, body, &task); err != nil {
		return domain.Task{}, err
	}
	c.cache.Upsert(task)
	return task, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "api/tasks/"+id, nil, nil); err != nil {
		return err
	}
	c.cache.Delete(id)
	return nil
}

func (c *Client) AddComment(ctx context.Context, taskID, content string) (domain.Comment, error) {
	var comment domain.Comment
	err := c.do(ctx, http.MethodPost, "api/tasks/"+taskID+"/comments",
		map[string]string{"content": content}, &comment)
	if err != nil {
		return domain.Comment{}, err
	}
	c.cache.AppendComment(taskID, comment)
	return comment, nil
}

// Run keeps the client synchronized: full fetch, then watch the push
// channel until it drops, then fetch again before trusting the cache. It
// returns when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		if _, err := c.FetchTasks(ctx); err != nil {
			c.logger.Error("full fetch failed", "err", err)
		} else if err := c.Watch(ctx); err != nil {
			c.logger.Error("watch ended", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// Watch connects to the push channel and applies events until the
// connection drops or ctx is cancelled.
func (c *Client) Watch(ctx context.Context) error {
	u := c.baseURL.JoinPath("ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing push channel: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading push channel: %w", err)
		}
		c.apply(raw)
	}
}

// apply reconciles one wire frame into the cache. A malformed frame is
// dropped and logged; the cache is left as-is and the next full fetch
// heals any divergence.
func (c *Client) apply(raw []byte) {
	ev, err := event.Decode(raw)
	if err != nil {
		c.logger.Warn("dropping push frame", "err", err)
		return
	}
	switch ev.Type {
	case event.TypeOnlineMembers:
		ids, err := ev.OnlineMembers()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		c.cache.SetOnline(ids)
	case event.TypeMemberConnected:
		id, err := ev.MemberConnected()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		c.cache.MarkOnline(id)
	case event.TypeMemberDisconnected:
		p, err := ev.MemberDisconnected()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		c.cache.MarkOffline(p.UserID)
	case event.TypeTaskCreated, event.TypeTaskUpdated:
		task, err := ev.Task()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		c.cache.Upsert(task)
	case event.TypeTaskDeleted:
		id, err := ev.TaskID()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		c.cache.Delete(id)
	case event.TypeTaskCommentAdded:
		p, err := ev.CommentAdded()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		c.cache.AppendComment(p.TaskID, p.Comment)
	case event.TypeNotification:
		p, err := ev.Notification()
		if err != nil {
			c.logger.Warn("dropping push frame", "type", ev.Type, "err", err)
			return
		}
		if c.onNote != nil {
			c.onNote(p)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
