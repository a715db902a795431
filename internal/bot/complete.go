package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tgienger/stmbot/internal/db"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
)

// Text handles typed input. With a pending prompt the text answers it;
// otherwise the message is only cleaned up. A prompt that timed out before the
// sweeper saw it is removed along with the answer.
func (h *Handler) Text(ctx context.Context, owner models.Owner, text string, ref dialogue.MessageRef) Response {
	slot, ok, expired := h.dialogue.Take(owner)
	if expired {
		h.log.Debug("answer to expired prompt",
			zap.Int64("owner", int64(owner)),
			zap.Stringer("state", slot.State))
		return Response{Notice: NoticeExpired}.withCleanup(ref, slot.Context.Anchor)
	}
	if !ok {
		return Response{}.withCleanup(ref)
	}

	h.log.Debug("prompt answered",
		zap.Int64("owner", int64(owner)),
		zap.Stringer("state", slot.State))

	resp, retry := h.complete(ctx, owner, slot, text)
	if retry {
		// The prompt message stays on screen and keeps waiting.
		h.dialogue.Enter(owner, slot.State, slot.Context)
		return resp.withCleanup(ref)
	}
	return resp.withCleanup(ref, slot.Context.Anchor)
}

// complete runs the mutation a prompt was waiting for. retry is set when the
// input was rejected and the same prompt should stay open.
func (h *Handler) complete(ctx context.Context, owner models.Owner, slot dialogue.Slot, text string) (resp Response, retry bool) {
	c := slot.Context
	switch slot.State {
	case dialogue.AwaitingTaskName:
		return h.completeCreateTask(ctx, owner, c, text)
	case dialogue.AwaitingProjectName:
		return h.completeCreateProject(ctx, owner, text)
	case dialogue.AwaitingTaskRename:
		return h.completeRenameTask(ctx, owner, c, text)
	case dialogue.AwaitingProjectRename:
		return h.completeRenameProject(ctx, owner, c, text)
	case dialogue.AwaitingComment:
		return h.completeComment(ctx, owner, c, text), false
	}

	h.log.Error("no completion for state", zap.Stringer("state", slot.State))
	return Response{View: ptr(failureView())}, false
}

func emptyName() (Response, bool) {
	return Response{Notice: "The name must not be empty"}, true
}

func (h *Handler) completeCreateTask(ctx context.Context, owner models.Owner, c dialogue.Context, text string) (Response, bool) {
	task, created, err := h.store.CreateTask(ctx, owner, c.ProjectID, text)
	if errors.Is(err, db.ErrEmptyName) {
		return emptyName()
	}
	if err != nil {
		return h.fail(owner, "create task", err, false), false
	}
	project, err := h.store.GetProject(ctx, owner, c.ProjectID)
	if err != nil {
		return h.fail(owner, "create task", err, false), false
	}

	where := "in general tasks"
	if !project.IsGeneral() {
		where = fmt.Sprintf("in project %q", project.Name)
	}
	msg := fmt.Sprintf("Task %q %s created", task.Label(), where)
	if !created {
		msg = fmt.Sprintf("Task %q %s already exists", task.Label(), where)
	}

	v, err := h.positionView(ctx, owner, project.ID, c.Position, msg)
	if err != nil {
		return h.fail(owner, "create task", err, false), false
	}
	return sendNew(v), false
}

func (h *Handler) completeCreateProject(ctx context.Context, owner models.Owner, text string) (Response, bool) {
	project, created, err := h.store.CreateProject(ctx, owner, text)
	var msg string
	switch {
	case errors.Is(err, db.ErrEmptyName):
		return emptyName()
	case errors.Is(err, db.ErrNameConflict):
		msg = fmt.Sprintf("Projects\nError: the name %q is reserved", models.GeneralProjectName)
	case err != nil:
		return h.fail(owner, "create project", err, false), false
	case created:
		msg = fmt.Sprintf("Project %q created", project.Name)
	default:
		msg = fmt.Sprintf("Project %q already exists", project.Name)
	}

	v, err := h.projects(ctx, owner, msg)
	if err != nil {
		return h.fail(owner, "create project", err, false), false
	}
	return sendNew(v), false
}

func (h *Handler) completeRenameTask(ctx context.Context, owner models.Owner, c dialogue.Context, text string) (Response, bool) {
	task, err := h.store.RenameTask(ctx, owner, c.ProjectID, c.TaskID, text)
	if errors.Is(err, db.ErrEmptyName) {
		return emptyName()
	}
	if err != nil {
		return h.fail(owner, "rename task", err, false), false
	}
	project, err := h.store.GetProject(ctx, owner, c.ProjectID)
	if err != nil {
		return h.fail(owner, "rename task", err, false), false
	}
	return sendNew(manageTaskView(owner, project, task, c.Position, "Task renamed")), false
}

func (h *Handler) completeRenameProject(ctx context.Context, owner models.Owner, c dialogue.Context, text string) (Response, bool) {
	renamed, err := h.store.RenameProject(ctx, owner, c.ProjectID, text)
	var msg string
	switch {
	case errors.Is(err, db.ErrEmptyName):
		return emptyName()
	case errors.Is(err, db.ErrProtected):
		resp := h.protected(ctx, owner)
		resp.Edit = false
		return resp, false
	case errors.Is(err, db.ErrNameConflict):
		msg = fmt.Sprintf("Error: the name %q is reserved", models.GeneralProjectName)
	case errors.Is(err, db.ErrNameTaken):
		msg = fmt.Sprintf("Error: a project named %q already exists", strings.TrimSpace(text))
	case err != nil:
		return h.fail(owner, "rename project", err, false), false
	default:
		return sendNew(manageProjectView(renamed, fmt.Sprintf("Project renamed to %q", renamed.Name))), false
	}

	project, err := h.store.GetProject(ctx, owner, c.ProjectID)
	if err != nil {
		return h.fail(owner, "rename project", err, false), false
	}
	return sendNew(manageProjectView(project, msg)), false
}

func (h *Handler) completeComment(ctx context.Context, owner models.Owner, c dialogue.Context, text string) Response {
	comment := strings.TrimSpace(text)
	msg := "Comment saved"
	if comment == clearCommentInput || comment == "" {
		comment = ""
		msg = "Comment removed"
	}
	task, err := h.store.SetTaskComment(ctx, owner, c.ProjectID, c.TaskID, comment)
	if err != nil {
		return h.fail(owner, "comment task", err, false)
	}
	project, err := h.store.GetProject(ctx, owner, c.ProjectID)
	if err != nil {
		return h.fail(owner, "comment task", err, false)
	}
	return sendNew(manageTaskView(owner, project, task, c.Position, msg))
}
