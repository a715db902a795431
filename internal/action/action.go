// Package action maps navigation targets to compact opaque tokens and back.
//
// A token looks like
//
//	1|ts|p=12|t=5|o=l|s=ip
//
// where the first segment is the format version, the second the action kind
// and the rest the fields that kind carries, always in the same order. Decode
// accepts exactly what Encode produces for the same kind and rejects anything
// else with a *DecodeError.
package action

import "github.com/tgienger/stmbot/internal/models"

// Kind identifies an action variant
type Kind uint8

const (
	KindInvalid Kind = iota
	EnterCreateTask
	EnterCreateProject
	SelectTask
	SelectProject
	ChangeTaskMenu
	SetTaskStatus
	RenameTask
	DeleteTask
	CommentTask
	ChangeProjectMenu
	RenameProject
	DeleteProject
	ListGeneralTasks
	ListProjectTasks
	ListProjects
	Cancel
	GoHome
)

// Action is a decoded interaction. Only the fields listed for its Kind are set.
type Action struct {
	Kind      Kind
	Owner     models.Owner
	ProjectID int64
	TaskID    int64
	Position  models.Position
	Status    models.Status
}

func (k Kind) String() string {
	if spec, ok := kinds[k]; ok {
		return spec.name
	}
	return "invalid"
}

// NewEnterCreateTask prompts for a new task name inside a project
func NewEnterCreateTask(projectID int64, pos models.Position) Action {
	return Action{Kind: EnterCreateTask, ProjectID: projectID, Position: pos}
}

// NewEnterCreateProject prompts for a new project name
func NewEnterCreateProject(pos models.Position) Action {
	return Action{Kind: EnterCreateProject, Position: pos}
}

func NewSelectTask(owner models.Owner, projectID, taskID int64, pos models.Position) Action {
	return Action{Kind: SelectTask, Owner: owner, ProjectID: projectID, TaskID: taskID, Position: pos}
}

func NewSelectProject(owner models.Owner, projectID int64) Action {
	return Action{Kind: SelectProject, Owner: owner, ProjectID: projectID}
}

func NewChangeTaskMenu(projectID, taskID int64, pos models.Position) Action {
	return Action{Kind: ChangeTaskMenu, ProjectID: projectID, TaskID: taskID, Position: pos}
}

func NewSetTaskStatus(projectID, taskID int64, pos models.Position, status models.Status) Action {
	return Action{Kind: SetTaskStatus, ProjectID: projectID, TaskID: taskID, Position: pos, Status: status}
}

func NewRenameTask(projectID, taskID int64, pos models.Position) Action {
	return Action{Kind: RenameTask, ProjectID: projectID, TaskID: taskID, Position: pos}
}

func NewDeleteTask(projectID, taskID int64, pos models.Position) Action {
	return Action{Kind: DeleteTask, ProjectID: projectID, TaskID: taskID, Position: pos}
}

func NewCommentTask(projectID, taskID int64, pos models.Position) Action {
	return Action{Kind: CommentTask, ProjectID: projectID, TaskID: taskID, Position: pos}
}

func NewChangeProjectMenu(projectID int64) Action {
	return Action{Kind: ChangeProjectMenu, ProjectID: projectID}
}

func NewRenameProject(projectID int64) Action {
	return Action{Kind: RenameProject, ProjectID: projectID}
}

func NewDeleteProject(projectID int64) Action {
	return Action{Kind: DeleteProject, ProjectID: projectID}
}

func NewListGeneralTasks() Action {
	return Action{Kind: ListGeneralTasks}
}

func NewListProjectTasks(projectID int64) Action {
	return Action{Kind: ListProjectTasks, ProjectID: projectID}
}

func NewListProjects() Action {
	return Action{Kind: ListProjects}
}

// NewCancel abandons a pending prompt. projectID is 0 when the prompt had no project.
func NewCancel(owner models.Owner, projectID int64, pos models.Position) Action {
	return Action{Kind: Cancel, Owner: owner, ProjectID: projectID, Position: pos}
}

func NewGoHome() Action {
	return Action{Kind: GoHome}
}
