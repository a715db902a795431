package db

import (
	"context"

	"github.com/tgienger/stmbot/internal/models"
)

// EnsureUser creates the user record if it does not exist yet
func (db *DB) EnsureUser(ctx context.Context, owner models.Owner) error {
	return ensureUser(ctx, db, owner)
}

func ensureUser(ctx context.Context, q querier, owner models.Owner) error {
	_, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO users (id) VALUES (?)", owner)
	return err
}

// GetUser retrieves a user by account id
func (db *DB) GetUser(ctx context.Context, owner models.Owner) (*models.User, error) {
	u := &models.User{}
	err := db.QueryRowContext(ctx, "SELECT id, created_at FROM users WHERE id = ?", owner).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// FirstContact registers the owner and guarantees their General project exists
func (db *DB) FirstContact(ctx context.Context, owner models.Owner) (*models.Project, error) {
	if err := db.EnsureUser(ctx, owner); err != nil {
		return nil, err
	}
	return db.EnsureGeneralProject(ctx, owner)
}
