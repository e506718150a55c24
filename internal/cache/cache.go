// Package cache keeps a local snapshot of the last fetched task list so
// list commands can render something useful while offline. The snapshot
// is per owner and carries its fetch time; readers decide staleness
// against a TTL.
package cache

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"taskdeck/internal/tasks"
)

// Cache is a sqlite-backed task snapshot store.
type Cache struct {
	db *sql.DB
}

// New opens (or creates) the snapshot database at path.
func New(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			owner_id TEXT PRIMARY KEY,
			fetched_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			status TEXT NOT NULL,
			due_at TEXT,
			created_at TEXT,
			position INTEGER NOT NULL,
			PRIMARY KEY (owner_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_cache_tasks_owner ON tasks(owner_id);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Put replaces the owner's snapshot with the given task list.
func (c *Cache) Put(ctx context.Context, ownerID string, list []tasks.Task) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE owner_id = ?", ownerID); err != nil {
		return err
	}

	for i, task := range list {
		var dueAt any
		if task.DueAt != nil {
			dueAt = task.DueAt.UTC().Format(time.RFC3339Nano)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (id, owner_id, title, description, status, due_at, created_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, ownerID, task.Title, task.Description, string(task.Status),
			dueAt, task.CreatedAt.UTC().Format(time.RFC3339Nano), i,
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (owner_id, fetched_at) VALUES (?, ?)`,
		ownerID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the owner's cached snapshot in stored order, along with
// whether it is still fresh under the given TTL. A missing snapshot
// returns (nil, false, nil).
func (c *Cache) Get(ctx context.Context, ownerID string, ttl time.Duration) ([]tasks.Task, bool, error) {
	var fetchedStr string
	err := c.db.QueryRowContext(ctx,
		"SELECT fetched_at FROM snapshots WHERE owner_id = ?", ownerID,
	).Scan(&fetchedStr)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	fetchedAt, _ := time.Parse(time.RFC3339Nano, fetchedStr)
	fresh := time.Since(fetchedAt) < ttl

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, title, description, status, due_at, created_at
		 FROM tasks WHERE owner_id = ? ORDER BY position`, ownerID)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()

	list := []tasks.Task{}
	for rows.Next() {
		var task tasks.Task
		var dueAt sql.NullString
		var createdStr string
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.Status, &dueAt, &createdStr); err != nil {
			return nil, false, err
		}
		task.OwnerID = ownerID
		if dueAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, dueAt.String); err == nil {
				task.DueAt = &t
			}
		}
		task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		list = append(list, task)
	}

	return list, fresh, rows.Err()
}

// Invalidate drops the owner's snapshot.
func (c *Cache) Invalidate(ctx context.Context, ownerID string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM tasks WHERE owner_id = ?", ownerID); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, "DELETE FROM snapshots WHERE owner_id = ?", ownerID)
	return err
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
