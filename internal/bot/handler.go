package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tgienger/stmbot/internal/action"
	"github.com/tgienger/stmbot/internal/db"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
)

// Store is the persistence the handlers need. *db.DB implements it.
type Store interface {
	FirstContact(ctx context.Context, owner models.Owner) (*models.Project, error)
	EnsureGeneralProject(ctx context.Context, owner models.Owner) (*models.Project, error)

	CreateProject(ctx context.Context, owner models.Owner, name string) (*models.Project, bool, error)
	GetProject(ctx context.Context, owner models.Owner, id int64) (*models.Project, error)
	RenameProject(ctx context.Context, owner models.Owner, id int64, newName string) (*models.Project, error)
	DeleteProject(ctx context.Context, owner models.Owner, id int64) (int, error)
	ListProjects(ctx context.Context, owner models.Owner) ([]models.Project, error)

	CreateTask(ctx context.Context, owner models.Owner, projectID int64, name string) (*models.Task, bool, error)
	GetTask(ctx context.Context, owner models.Owner, projectID, id int64) (*models.Task, error)
	RenameTask(ctx context.Context, owner models.Owner, projectID, id int64, name string) (*models.Task, error)
	SetTaskStatus(ctx context.Context, owner models.Owner, projectID, id int64, status models.Status) (*models.Task, error)
	SetTaskComment(ctx context.Context, owner models.Owner, projectID, id int64, comment string) (*models.Task, error)
	DeleteTask(ctx context.Context, owner models.Owner, projectID, id int64) error
	ListTasks(ctx context.Context, owner models.Owner, projectID int64) ([]models.Task, error)

	Stats(ctx context.Context, owner models.Owner) (models.Stats, error)
}

var _ Store = (*db.DB)(nil)

// clearCommentInput is the reply that removes a task comment
const clearCommentInput = "-"

// Handler turns decoded actions and prompt answers into store calls and views
type Handler struct {
	store    Store
	dialogue *dialogue.Engine
	log      *zap.Logger
}

// NewHandler creates a handler. A nil logger discards logs.
func NewHandler(store Store, engine *dialogue.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, dialogue: engine, log: log}
}

// Start handles first contact. It is safe to repeat.
func (h *Handler) Start(ctx context.Context, owner models.Owner, ref dialogue.MessageRef) Response {
	if _, err := h.store.FirstContact(ctx, owner); err != nil {
		return h.fail(owner, "start", err, false)
	}

	var stale dialogue.MessageRef
	if slot, ok := h.dialogue.Clear(owner); ok {
		stale = slot.Context.Anchor
	}

	v, err := h.home(ctx, owner)
	if err != nil {
		return h.fail(owner, "start", err, false)
	}
	return sendNew(v).withCleanup(ref, stale)
}

// Interaction handles a pressed button
func (h *Handler) Interaction(ctx context.Context, owner models.Owner, token string, ref dialogue.MessageRef) Response {
	a, err := action.Decode(token)
	if err == nil && a.Kind.CarriesOwner() && a.Owner != owner {
		err = fmt.Errorf("token issued to owner %d", a.Owner)
	}
	if err != nil {
		h.log.Warn("rejected action token",
			zap.Int64("owner", int64(owner)),
			zap.String("token", token),
			zap.Error(err))
		v, herr := h.home(ctx, owner)
		if herr != nil {
			return h.fail(owner, "decode fallback", herr, true)
		}
		return editTo(v, "This button is no longer valid")
	}

	h.log.Debug("action",
		zap.Int64("owner", int64(owner)),
		zap.Stringer("kind", a.Kind),
		zap.Int64("project", a.ProjectID),
		zap.Int64("task", a.TaskID))

	// Navigating anywhere else abandons a pending prompt.
	var stale dialogue.MessageRef
	if a.Kind != action.Cancel && !startsPrompt(a.Kind) {
		if slot, ok := h.dialogue.Clear(owner); ok {
			h.log.Debug("prompt abandoned",
				zap.Int64("owner", int64(owner)),
				zap.Stringer("state", slot.State))
			stale = slot.Context.Anchor
		}
	}

	resp := h.route(ctx, owner, a, ref)
	if stale != ref {
		resp = resp.withCleanup(stale)
	}
	return resp
}

func startsPrompt(k action.Kind) bool {
	switch k {
	case action.EnterCreateTask, action.EnterCreateProject,
		action.RenameTask, action.RenameProject, action.CommentTask:
		return true
	}
	return false
}

func (h *Handler) route(ctx context.Context, owner models.Owner, a action.Action, ref dialogue.MessageRef) Response {
	switch a.Kind {
	case action.EnterCreateTask:
		return h.enterCreateTask(ctx, owner, a, ref)
	case action.EnterCreateProject:
		return h.prompt(owner, ref, dialogue.AwaitingProjectName,
			dialogue.Context{Position: a.Position},
			"Enter a name for the new project", 0, "Creating a new project")
	case action.SelectTask:
		return h.selectTask(ctx, owner, a)
	case action.SelectProject:
		return h.selectProject(ctx, owner, a)
	case action.ChangeTaskMenu:
		return h.changeTaskMenu(ctx, owner, a)
	case action.SetTaskStatus:
		return h.setTaskStatus(ctx, owner, a)
	case action.RenameTask:
		return h.renameTask(ctx, owner, a, ref)
	case action.DeleteTask:
		return h.deleteTask(ctx, owner, a)
	case action.CommentTask:
		return h.commentTask(ctx, owner, a, ref)
	case action.ChangeProjectMenu:
		return h.changeProjectMenu(ctx, owner, a)
	case action.RenameProject:
		return h.renameProject(ctx, owner, a, ref)
	case action.DeleteProject:
		return h.deleteProject(ctx, owner, a)
	case action.ListGeneralTasks:
		v, err := h.generalTasks(ctx, owner, "")
		if err != nil {
			return h.fail(owner, "list general tasks", err, true)
		}
		return editTo(v, "General tasks")
	case action.ListProjectTasks:
		return h.listProjectTasks(ctx, owner, a)
	case action.ListProjects:
		v, err := h.projects(ctx, owner, "")
		if err != nil {
			return h.fail(owner, "list projects", err, true)
		}
		return editTo(v, "Projects")
	case action.Cancel:
		return h.cancel(ctx, owner, a, ref)
	case action.GoHome:
		v, err := h.home(ctx, owner)
		if err != nil {
			return h.fail(owner, "home", err, true)
		}
		return editTo(v, "Main menu")
	}

	h.log.Error("unhandled action kind", zap.Stringer("kind", a.Kind))
	return Response{View: ptr(failureView()), Edit: true}
}

// prompt asks the owner for free text and remembers what it is for
func (h *Handler) prompt(owner models.Owner, ref dialogue.MessageRef, state dialogue.State, c dialogue.Context, text string, cancelProjectID int64, notice string) Response {
	c.Anchor = ref
	resp := editTo(promptView(owner, text, cancelProjectID, c.Position), notice)
	if replaced := h.dialogue.Enter(owner, state, c); replaced != nil {
		h.log.Info("pending prompt replaced",
			zap.Int64("owner", int64(owner)),
			zap.Stringer("old_state", replaced.State),
			zap.Stringer("new_state", state))
		if replaced.Context.Anchor != ref {
			resp = resp.withCleanup(replaced.Context.Anchor)
		}
	}
	return resp
}

func (h *Handler) enterCreateTask(ctx context.Context, owner models.Owner, a action.Action, ref dialogue.MessageRef) Response {
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "enter create task", err, true)
	}
	text := "Enter a name for the new task"
	if !project.IsGeneral() {
		text = fmt.Sprintf("Enter a name for the new task in project %q", project.Name)
	}
	return h.prompt(owner, ref, dialogue.AwaitingTaskName,
		dialogue.Context{ProjectID: project.ID, Position: a.Position},
		text, project.ID, "Creating a new task")
}

func (h *Handler) loadTask(ctx context.Context, owner models.Owner, projectID, taskID int64) (*models.Project, *models.Task, error) {
	project, err := h.store.GetProject(ctx, owner, projectID)
	if err != nil {
		return nil, nil, err
	}
	task, err := h.store.GetTask(ctx, owner, projectID, taskID)
	if err != nil {
		return nil, nil, err
	}
	return project, task, nil
}

func (h *Handler) selectTask(ctx context.Context, owner models.Owner, a action.Action) Response {
	project, task, err := h.loadTask(ctx, owner, a.ProjectID, a.TaskID)
	if err != nil {
		return h.fail(owner, "select task", err, true)
	}
	return editTo(manageTaskView(owner, project, task, a.Position, ""), task.Label())
}

func (h *Handler) changeTaskMenu(ctx context.Context, owner models.Owner, a action.Action) Response {
	project, task, err := h.loadTask(ctx, owner, a.ProjectID, a.TaskID)
	if err != nil {
		return h.fail(owner, "change task menu", err, true)
	}
	return editTo(changeTaskView(owner, project, task, a.Position), "Editing task")
}

func (h *Handler) setTaskStatus(ctx context.Context, owner models.Owner, a action.Action) Response {
	task, err := h.store.SetTaskStatus(ctx, owner, a.ProjectID, a.TaskID, a.Status)
	if err != nil {
		return h.fail(owner, "set task status", err, true)
	}
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "set task status", err, true)
	}
	return editTo(manageTaskView(owner, project, task, a.Position, ""), "Task status changed")
}

func (h *Handler) renameTask(ctx context.Context, owner models.Owner, a action.Action, ref dialogue.MessageRef) Response {
	project, task, err := h.loadTask(ctx, owner, a.ProjectID, a.TaskID)
	if err != nil {
		return h.fail(owner, "rename task", err, true)
	}
	return h.prompt(owner, ref, dialogue.AwaitingTaskRename,
		dialogue.Context{ProjectID: project.ID, TaskID: task.ID, Position: a.Position},
		fmt.Sprintf("Enter a new name for task %q", task.Name), project.ID, "Renaming task")
}

func (h *Handler) commentTask(ctx context.Context, owner models.Owner, a action.Action, ref dialogue.MessageRef) Response {
	project, task, err := h.loadTask(ctx, owner, a.ProjectID, a.TaskID)
	if err != nil {
		return h.fail(owner, "comment task", err, true)
	}
	text := fmt.Sprintf("Send a comment for task %q", task.Name)
	if task.Comment != "" {
		text += fmt.Sprintf("\nCurrent comment: %s\nSend %s to remove it", task.Comment, clearCommentInput)
	}
	return h.prompt(owner, ref, dialogue.AwaitingComment,
		dialogue.Context{ProjectID: project.ID, TaskID: task.ID, Position: a.Position},
		text, project.ID, "Commenting task")
}

func (h *Handler) deleteTask(ctx context.Context, owner models.Owner, a action.Action) Response {
	task, err := h.store.GetTask(ctx, owner, a.ProjectID, a.TaskID)
	if err != nil {
		return h.fail(owner, "delete task", err, true)
	}
	if err := h.store.DeleteTask(ctx, owner, a.ProjectID, a.TaskID); err != nil {
		return h.fail(owner, "delete task", err, true)
	}
	v, err := h.positionView(ctx, owner, a.ProjectID, a.Position, fmt.Sprintf("Task %q deleted", task.Name))
	if err != nil {
		return h.fail(owner, "delete task", err, true)
	}
	return editTo(v, "Task deleted")
}

func (h *Handler) selectProject(ctx context.Context, owner models.Owner, a action.Action) Response {
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "select project", err, true)
	}
	if project.IsGeneral() {
		v, err := h.generalTasks(ctx, owner, "")
		if err != nil {
			return h.fail(owner, "select project", err, true)
		}
		return editTo(v, "General tasks")
	}
	return editTo(manageProjectView(project, ""), fmt.Sprintf("Project %q", project.Name))
}

func (h *Handler) changeProjectMenu(ctx context.Context, owner models.Owner, a action.Action) Response {
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "change project menu", err, true)
	}
	if project.IsGeneral() {
		return h.protected(ctx, owner)
	}
	return editTo(changeProjectView(owner, project), "Editing project")
}

func (h *Handler) renameProject(ctx context.Context, owner models.Owner, a action.Action, ref dialogue.MessageRef) Response {
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "rename project", err, true)
	}
	if project.IsGeneral() {
		return h.protected(ctx, owner)
	}
	return h.prompt(owner, ref, dialogue.AwaitingProjectRename,
		dialogue.Context{ProjectID: project.ID, Position: models.PositionProject},
		fmt.Sprintf("Enter a new name for project %q", project.Name), project.ID, "Renaming project")
}

func (h *Handler) deleteProject(ctx context.Context, owner models.Owner, a action.Action) Response {
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "delete project", err, true)
	}
	removed, err := h.store.DeleteProject(ctx, owner, project.ID)
	if errors.Is(err, db.ErrProtected) {
		return h.protected(ctx, owner)
	}
	if err != nil {
		return h.fail(owner, "delete project", err, true)
	}

	h.log.Info("project deleted",
		zap.Int64("owner", int64(owner)),
		zap.Int64("project", project.ID),
		zap.Int("tasks", removed))

	text := fmt.Sprintf("Project %q deleted", project.Name)
	if removed > 0 {
		text += fmt.Sprintf(" together with %d tasks", removed)
	}
	v, err := h.projects(ctx, owner, text)
	if err != nil {
		return h.fail(owner, "delete project", err, true)
	}
	return editTo(v, "Project deleted")
}

func (h *Handler) listProjectTasks(ctx context.Context, owner models.Owner, a action.Action) Response {
	project, err := h.store.GetProject(ctx, owner, a.ProjectID)
	if err != nil {
		return h.fail(owner, "list project tasks", err, true)
	}
	tasks, err := h.store.ListTasks(ctx, owner, project.ID)
	if err != nil {
		return h.fail(owner, "list project tasks", err, true)
	}
	return editTo(taskListView(owner, project, tasks, ""), "Task list")
}

func (h *Handler) cancel(ctx context.Context, owner models.Owner, a action.Action, ref dialogue.MessageRef) Response {
	state := dialogue.Idle
	c := dialogue.Context{ProjectID: a.ProjectID, Position: a.Position}
	slot, live, expired := h.dialogue.Take(owner)
	pending := live || expired
	if pending {
		state = slot.State
		c = slot.Context
	}

	v, err := h.returnView(ctx, owner, state, c)
	if err != nil {
		return h.fail(owner, "cancel", err, true)
	}
	resp := editTo(v, "Cancelled")
	if pending && slot.Context.Anchor != ref {
		resp = resp.withCleanup(slot.Context.Anchor)
	}
	return resp
}

// returnView is the screen a prompt was opened from
func (h *Handler) returnView(ctx context.Context, owner models.Owner, state dialogue.State, c dialogue.Context) (View, error) {
	if c.TaskID != 0 {
		project, task, err := h.loadTask(ctx, owner, c.ProjectID, c.TaskID)
		if err != nil {
			return View{}, err
		}
		return manageTaskView(owner, project, task, c.Position, ""), nil
	}

	if state == dialogue.AwaitingProjectName || c.ProjectID == 0 {
		if c.Position == models.PositionList {
			return h.projects(ctx, owner, "")
		}
		return h.home(ctx, owner)
	}
	return h.positionView(ctx, owner, c.ProjectID, c.Position, "")
}

// positionView renders the parent screen named by pos for a project
func (h *Handler) positionView(ctx context.Context, owner models.Owner, projectID int64, pos models.Position, text string) (View, error) {
	project, err := h.store.GetProject(ctx, owner, projectID)
	if err != nil {
		return View{}, err
	}
	if pos == models.PositionProject && !project.IsGeneral() {
		return manageProjectView(project, text), nil
	}
	tasks, err := h.store.ListTasks(ctx, owner, project.ID)
	if err != nil {
		return View{}, err
	}
	return taskListView(owner, project, tasks, text), nil
}

func (h *Handler) home(ctx context.Context, owner models.Owner) (View, error) {
	general, err := h.store.EnsureGeneralProject(ctx, owner)
	if err != nil {
		return View{}, err
	}
	stats, err := h.store.Stats(ctx, owner)
	if err != nil {
		return View{}, err
	}
	return homeView(general, stats), nil
}

// generalTasks resolves the General project on every call so a fresh owner
// sees it right after first contact.
func (h *Handler) generalTasks(ctx context.Context, owner models.Owner, text string) (View, error) {
	general, err := h.store.EnsureGeneralProject(ctx, owner)
	if err != nil {
		return View{}, err
	}
	tasks, err := h.store.ListTasks(ctx, owner, general.ID)
	if err != nil {
		return View{}, err
	}
	return taskListView(owner, general, tasks, text), nil
}

func (h *Handler) projects(ctx context.Context, owner models.Owner, text string) (View, error) {
	projects, err := h.store.ListProjects(ctx, owner)
	if err != nil {
		return View{}, err
	}
	return projectsView(owner, projects, text), nil
}

func (h *Handler) protected(ctx context.Context, owner models.Owner) Response {
	v, err := h.generalTasks(ctx, owner, "The General project cannot be renamed or deleted")
	if err != nil {
		return h.fail(owner, "protected", err, true)
	}
	return editTo(v, "Not allowed")
}

// fail maps an error to a recoverable response
func (h *Handler) fail(owner models.Owner, op string, err error, edit bool) Response {
	if errors.Is(err, db.ErrNotFound) {
		h.log.Info("stale reference",
			zap.Int64("owner", int64(owner)),
			zap.String("op", op))
		return Response{View: ptr(goneView()), Edit: edit, Notice: "No longer exists"}
	}
	h.log.Error("handler failed",
		zap.Int64("owner", int64(owner)),
		zap.String("op", op),
		zap.Error(err))
	return Response{View: ptr(failureView()), Edit: edit}
}

func ptr[T any](v T) *T { return &v }
