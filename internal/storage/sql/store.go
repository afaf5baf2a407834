package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"example.com/teamboard/internal/domain"
	"example.com/teamboard/internal/storage"
)

// Store is the durable repository, working against either postgres (driver
// "pgx") or sqlite (driver "sqlite"). Ids and timestamps are generated in Go
// so both drivers share one code path; queries use ? placeholders rebound
// per driver by sqlx.
type Store struct {
	db *sqlx.DB
}

func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`create table if not exists users (
			id text primary key,
			name text not null,
			email text not null unique,
			password_hash text not null,
			avatar_url text not null default '',
			created_at timestamp not null
		)`,
		`create table if not exists tasks (
			id text primary key,
			title text not null,
			description text not null default '',
			status text not null,
			priority text not null,
			assignee_id text not null default '',
			creator_id text not null,
			due_at timestamp,
			created_at timestamp not null,
			updated_at timestamp not null
		)`,
		`create table if not exists comments (
			id text primary key,
			task_id text not null references tasks(id) on delete cascade,
			author_id text not null,
			content text not null,
			created_at timestamp not null
		)`,
		`create index if not exists idx_tasks_status on tasks(status)`,
		`create index if not exists idx_tasks_assignee on tasks(assignee_id)`,
		`create index if not exists idx_comments_task on comments(task_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListUsers() ([]domain.User, error) {
	var res []domain.User
	err := s.db.Select(&res, `
		select id, name, email, password_hash, avatar_url, created_at
		from users order by created_at`)
	return res, err
}

func (s *Store) GetUser(id string) (domain.User, error) {
	var u domain.User
	err := s.db.Get(&u, s.db.Rebind(`
		select id, name, email, password_hash, avatar_url, created_at
		from users where id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, storage.ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(email string) (domain.User, error) {
	var u domain.User
	err := s.db.Get(&u, s.db.Rebind(`
		select id, name, email, password_hash, avatar_url, created_at
		from users where lower(email) = lower(?)`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, storage.ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(s.db.Rebind(`
		insert into users(id, name, email, password_hash, avatar_url, created_at)
		values (?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, u.PasswordHash, u.AvatarURL, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, storage.ErrConflict
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *Store) ListTasks() ([]domain.Task, error) {
	var res []domain.Task
	err := s.db.Select(&res, `
		select id, title, description, status, priority, assignee_id, creator_id,
			due_at, created_at, updated_at
		from tasks order by updated_at desc`)
	if err != nil {
		return nil, err
	}
	var comments []domain.Comment
	err = s.db.Select(&comments, `
		select id, task_id, author_id, content, created_at
		from comments order by created_at`)
	if err != nil {
		return nil, err
	}
	byTask := make(map[string][]domain.Comment, len(res))
	for _, c := range comments {
		byTask[c.TaskID] = append(byTask[c.TaskID], c)
	}
	for i := range res {
		res[i].Comments = byTask[res[i].ID]
	}
	return res, nil
}

func (s *Store) GetTask(id string) (domain.Task, error) {
	var t domain.Task
	err := s.db.Get(&t, s.db.Rebind(`
		select id, title, description, status, priority, assignee_id, creator_id,
			due_at, created_at, updated_at
		from tasks where id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	err = s.db.Select(&t.Comments, s.db.Rebind(`
		select id, task_id, author_id, content, created_at
		from comments where task_id = ? order by created_at`), id)
	return t, err
}

func (s *Store) CreateTask(t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Comments = nil
	_, err := s.db.Exec(s.db.Rebind(`
		insert into tasks(id, title, description, status, priority, assignee_id,
			creator_id, due_at, created_at, updated_at)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.Title, t.Description, t.Status, t.Priority, t.AssigneeID,
		t.CreatorID, t.DueAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *Store) UpdateTask(t domain.Task) (domain.Task, error) {
	t.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(s.db.Rebind(`
		update tasks
		set title = ?, description = ?, status = ?, priority = ?,
			assignee_id = ?, due_at = ?, updated_at = ?
		where id = ?`),
		t.Title, t.Description, t.Status, t.Priority,
		t.AssigneeID, t.DueAt, t.UpdatedAt, t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Task{}, err
	}
	if affected == 0 {
		return domain.Task{}, storage.ErrNotFound
	}
	return s.GetTask(t.ID)
}

func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(s.db.Rebind(`delete from tasks where id = ?`), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AddComment(c domain.Comment) (domain.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(s.db.Rebind(`
		insert into comments(id, task_id, author_id, content, created_at)
		values (?, ?, ?, ?, ?)`),
		c.ID, c.TaskID, c.AuthorID, c.Content, c.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Comment{}, storage.ErrNotFound
		}
		return domain.Comment{}, err
	}
	_, err = s.db.Exec(s.db.Rebind(`update tasks set updated_at = ? where id = ?`),
		c.CreatedAt, c.TaskID)
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// modernc.org/sqlite reports constraint failures in the message only
	return err != nil && containsAny(err.Error(), "UNIQUE constraint failed", "constraint failed: users.email")
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return err != nil && containsAny(err.Error(), "FOREIGN KEY constraint failed")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
