package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tgienger/stmbot/internal/models"
)

const taskColumns = "id, owner, project_id, name, status, comment, created_at, updated_at"

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	err := row.Scan(&t.ID, &t.Owner, &t.ProjectID, &t.Name, &t.Status, &t.Comment, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func getTask(ctx context.Context, q querier, owner models.Owner, projectID, id int64) (*models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE id = ? AND project_id = ? AND owner = ?
	`, id, projectID, owner))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

type createdTask struct {
	task    *models.Task
	created bool
}

// CreateTask creates a new task in the project. A task with the same name in the
// same project is returned instead of a duplicate, with created set to false.
func (db *DB) CreateTask(ctx context.Context, owner models.Owner, projectID int64, name string) (*models.Task, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, ErrEmptyName
	}

	key := fmt.Sprintf("task/%d/%d/%s", owner, projectID, name)
	v, err, _ := db.creates.Do(key, func() (any, error) {
		var res createdTask
		err := db.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := getProject(ctx, tx, owner, projectID); err != nil {
				return err
			}

			t, err := scanTask(tx.QueryRowContext(ctx, `
				SELECT `+taskColumns+`
				FROM tasks WHERE owner = ? AND project_id = ? AND name = ?
				ORDER BY id ASC LIMIT 1
			`, owner, projectID, name))
			if err == nil {
				res.task = t
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			result, err := tx.ExecContext(ctx, `
				INSERT INTO tasks (owner, project_id, name, status) VALUES (?, ?, ?, ?)
			`, owner, projectID, name, models.NotStarted)
			if err != nil {
				return err
			}
			id, err := result.LastInsertId()
			if err != nil {
				return err
			}
			res.created = true
			res.task, err = getTask(ctx, tx, owner, projectID, id)
			return err
		})
		return res, err
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(createdTask)
	return res.task, res.created, nil
}

// GetTask retrieves a task by its owner-scoped key
func (db *DB) GetTask(ctx context.Context, owner models.Owner, projectID, id int64) (*models.Task, error) {
	return getTask(ctx, db, owner, projectID, id)
}

// ListTasks returns all tasks of a project in creation order
func (db *DB) ListTasks(ctx context.Context, owner models.Owner, projectID int64) ([]models.Task, error) {
	if _, err := db.GetProject(ctx, owner, projectID); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner = ? AND project_id = ?
		ORDER BY id ASC
	`, owner, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// updateTask applies set to one task and returns the updated record
func (db *DB) updateTask(ctx context.Context, owner models.Owner, projectID, id int64, set string, args ...any) (*models.Task, error) {
	var updated *models.Task
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE tasks SET "+set+", updated_at = CURRENT_TIMESTAMP WHERE id = ? AND project_id = ? AND owner = ?",
			append(args, id, projectID, owner)...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		updated, err = getTask(ctx, tx, owner, projectID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RenameTask renames a task in place
func (db *DB) RenameTask(ctx context.Context, owner models.Owner, projectID, id int64, name string) (*models.Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	return db.updateTask(ctx, owner, projectID, id, "name = ?", name)
}

// SetTaskStatus moves a task to status. The marker follows from the status.
func (db *DB) SetTaskStatus(ctx context.Context, owner models.Owner, projectID, id int64, status models.Status) (*models.Task, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return db.updateTask(ctx, owner, projectID, id, "status = ?", status)
}

// DeleteTask deletes a task
func (db *DB) DeleteTask(ctx context.Context, owner models.Owner, projectID, id int64) error {
	result, err := db.ExecContext(ctx,
		"DELETE FROM tasks WHERE id = ? AND project_id = ? AND owner = ?", id, projectID, owner)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats counts the owner's tasks per status across all projects
func (db *DB) Stats(ctx context.Context, owner models.Owner) (models.Stats, error) {
	var stats models.Stats
	rows, err := db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM tasks WHERE owner = ? GROUP BY status", owner)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status models.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch status {
		case models.NotStarted:
			stats.NotStarted = count
		case models.InProgress:
			stats.InProgress = count
		case models.Completed:
			stats.Completed = count
		}
	}
	return stats, rows.Err()
}
