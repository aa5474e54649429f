package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskbot/internal/task"
	logx "taskbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Timestamps are stored as Unix milliseconds so range filters are plain
// integer comparisons.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers. A single connection
	// also makes AtomicUpdate's transaction a true critical section.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `id, group_id, assignee_id, assigned_by, title, description, status, priority,
	due_date, reminder_interval_minutes, last_reminder_sent, reminder_at,
	submitted_at, verified_at, verified_by, created_at, updated_at`

func (s *sqliteStore) Create(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(group_id, assignee_id, assigned_by, title, description, status, priority,
			due_date, reminder_interval_minutes, last_reminder_sent, reminder_at,
			submitted_at, verified_at, verified_by, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		nullI64(t.GroupID), t.AssigneeID, t.AssignedBy, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullMS(t.DueDate), nullInt(t.ReminderIntervalMinutes), nullMS(t.LastReminderSent), nullMS(t.ReminderAt),
		nullMS(t.SubmittedAt), nullMS(t.VerifiedAt), nullI64(t.VerifiedBy), ms(t.CreatedAt), ms(t.UpdatedAt),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &task.NotFoundError{ID: id}
	}
	return t, err
}

func (s *sqliteStore) Query(ctx context.Context, f Filter) ([]*task.Task, error) {
	where, args := buildWhere(f)
	q := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any

	if f.GroupOnly {
		conds = append(conds, "group_id IS NOT NULL")
	}
	if f.GroupID != nil {
		conds = append(conds, "group_id = ?")
		args = append(args, *f.GroupID)
	}
	if f.AssigneeID != nil {
		conds = append(conds, "assignee_id = ?")
		args = append(args, *f.AssigneeID)
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(ph, ",")+")")
	}
	if f.WithReminderInterval {
		conds = append(conds, "reminder_interval_minutes IS NOT NULL")
	}
	if f.WithReminderAt {
		conds = append(conds, "reminder_at IS NOT NULL")
	}
	if f.DueBefore != nil {
		conds = append(conds, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, ms(*f.DueBefore))
	}
	if f.DueAfterOrUnset != nil {
		conds = append(conds, "(due_date IS NULL OR due_date > ?)")
		args = append(args, ms(*f.DueAfterOrUnset))
	}
	if f.ReminderAtBefore != nil {
		conds = append(conds, "reminder_at IS NOT NULL AND reminder_at <= ?")
		args = append(args, ms(*f.ReminderAtBefore))
	}
	if f.VerifiedBefore != nil {
		conds = append(conds, "verified_at IS NOT NULL AND verified_at < ?")
		args = append(args, ms(*f.VerifiedBefore))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *sqliteStore) AtomicUpdate(ctx context.Context, id int64, mutate Mutator) (*task.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	cur, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &task.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET group_id=?, assignee_id=?, assigned_by=?, title=?, description=?, status=?, priority=?,
			due_date=?, reminder_interval_minutes=?, last_reminder_sent=?, reminder_at=?,
			submitted_at=?, verified_at=?, verified_by=?, updated_at=?
		 WHERE id=?`,
		nullI64(next.GroupID), next.AssigneeID, next.AssignedBy, next.Title, next.Description, string(next.Status), string(next.Priority),
		nullMS(next.DueDate), nullInt(next.ReminderIntervalMinutes), nullMS(next.LastReminderSent), nullMS(next.ReminderAt),
		nullMS(next.SubmittedAt), nullMS(next.VerifiedAt), nullI64(next.VerifiedBy), ms(next.UpdatedAt),
		id,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &task.NotFoundError{ID: id}
	}
	return nil
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*task.Task, error) {
	var t task.Task
	var (
		groupID, verifiedBy, interval                sql.NullInt64
		status, priority                             string
		due, lastSent, remindAt, submitted, verified sql.NullInt64
		createdMS, updatedMS                         int64
	)
	err := r.Scan(
		&t.ID, &groupID, &t.AssigneeID, &t.AssignedBy, &t.Title, &t.Description, &status, &priority,
		&due, &interval, &lastSent, &remindAt,
		&submitted, &verified, &verifiedBy, &createdMS, &updatedMS,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.GroupID = fromNullI64(groupID)
	t.VerifiedBy = fromNullI64(verifiedBy)
	t.DueDate = fromNullMS(due)
	t.LastReminderSent = fromNullMS(lastSent)
	t.ReminderAt = fromNullMS(remindAt)
	t.SubmittedAt = fromNullMS(submitted)
	t.VerifiedAt = fromNullMS(verified)
	if interval.Valid {
		v := int(interval.Int64)
		t.ReminderIntervalMinutes = &v
	}
	t.CreatedAt = time.UnixMilli(createdMS).UTC()
	t.UpdatedAt = time.UnixMilli(updatedMS).UTC()
	return &t, nil
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func nullMS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullI64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullI64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func fromNullMS(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
