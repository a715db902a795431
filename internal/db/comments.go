package db

import (
	"context"
	"strings"

	"github.com/tgienger/stmbot/internal/models"
)

// SetTaskComment replaces the comment on a task. A blank comment clears it.
func (db *DB) SetTaskComment(ctx context.Context, owner models.Owner, projectID, id int64, comment string) (*models.Task, error) {
	return db.updateTask(ctx, owner, projectID, id, "comment = ?", strings.TrimSpace(comment))
}
