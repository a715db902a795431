package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tgienger/stmbot/internal/models"
)

const projectColumns = "id, owner, name, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	if err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func getProject(ctx context.Context, q querier, owner models.Owner, id int64) (*models.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = ? AND owner = ?", id, owner))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func findProject(ctx context.Context, q querier, owner models.Owner, name string) (*models.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE owner = ? AND name = ?", owner, name))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

type createdProject struct {
	project *models.Project
	created bool
}

// ensureProject returns the owner's project called name, inserting it if absent.
// Identical concurrent calls share one execution.
func (db *DB) ensureProject(ctx context.Context, owner models.Owner, name string) (*models.Project, bool, error) {
	key := fmt.Sprintf("project/%d/%s", owner, name)
	v, err, _ := db.creates.Do(key, func() (any, error) {
		var res createdProject
		err := db.withTx(ctx, func(tx *sql.Tx) error {
			p, err := findProject(ctx, tx, owner, name)
			if err == nil {
				res.project = p
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}

			if err := ensureUser(ctx, tx, owner); err != nil {
				return err
			}
			result, err := tx.ExecContext(ctx, `
				INSERT INTO projects (owner, name) VALUES (?, ?)
				ON CONFLICT(owner, name) DO NOTHING
			`, owner, name)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			res.created = n == 1

			res.project, err = findProject(ctx, tx, owner, name)
			return err
		})
		return res, err
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(createdProject)
	return res.project, res.created, nil
}

// EnsureGeneralProject returns the owner's General project, creating it on first use
func (db *DB) EnsureGeneralProject(ctx context.Context, owner models.Owner) (*models.Project, error) {
	p, _, err := db.ensureProject(ctx, owner, models.GeneralProjectName)
	return p, err
}

// CreateProject creates a new project. An existing project with the same name
// is returned as is with created set to false.
func (db *DB) CreateProject(ctx context.Context, owner models.Owner, name string) (*models.Project, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, ErrEmptyName
	}
	if name == models.GeneralProjectName {
		return nil, false, ErrNameConflict
	}
	return db.ensureProject(ctx, owner, name)
}

// GetProject retrieves a project by ID
func (db *DB) GetProject(ctx context.Context, owner models.Owner, id int64) (*models.Project, error) {
	return getProject(ctx, db, owner, id)
}

// ListProjects returns the owner's projects in creation order, without General
func (db *DB) ListProjects(ctx context.Context, owner models.Owner) ([]models.Project, error) {
	return db.listProjects(ctx, owner, false)
}

// ListAllProjects returns the owner's projects in creation order, General included
func (db *DB) ListAllProjects(ctx context.Context, owner models.Owner) ([]models.Project, error) {
	return db.listProjects(ctx, owner, true)
}

func (db *DB) listProjects(ctx context.Context, owner models.Owner, withGeneral bool) ([]models.Project, error) {
	query := "SELECT " + projectColumns + " FROM projects WHERE owner = ?"
	args := []any{owner}
	if !withGeneral {
		query += " AND name != ?"
		args = append(args, models.GeneralProjectName)
	}
	query += " ORDER BY id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// RenameProject renames a project in place
func (db *DB) RenameProject(ctx context.Context, owner models.Owner, id int64, newName string) (*models.Project, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrEmptyName
	}

	var renamed *models.Project
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getProject(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if p.IsGeneral() {
			return ErrProtected
		}
		if newName == models.GeneralProjectName {
			return ErrNameConflict
		}
		if newName == p.Name {
			renamed = p
			return nil
		}
		if _, err := findProject(ctx, tx, owner, newName); err == nil {
			return ErrNameTaken
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE projects SET name = ? WHERE id = ? AND owner = ?", newName, id, owner); err != nil {
			return err
		}
		renamed, err = getProject(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// DeleteProject deletes a project and all its tasks in one transaction.
// It returns the number of tasks removed.
func (db *DB) DeleteProject(ctx context.Context, owner models.Owner, id int64) (int, error) {
	var removed int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getProject(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if p.IsGeneral() {
			return ErrProtected
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM tasks WHERE project_id = ? AND owner = ?", id, owner)
		if err != nil {
			return fmt.Errorf("delete tasks of project %d: %w", id, err)
		}
		if removed, err = result.RowsAffected(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM projects WHERE id = ? AND owner = ?", id, owner); err != nil {
			return fmt.Errorf("delete project %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}
