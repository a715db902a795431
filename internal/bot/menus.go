package bot

import (
	"fmt"
	"strings"

	"github.com/tgienger/stmbot/internal/action"
	"github.com/tgienger/stmbot/internal/models"
)

const (
	labelNewTask       = "📝 New task"
	labelNewProject    = "📚 New project"
	labelGeneralTasks  = "✅ General tasks"
	labelProjects      = "☑️ Projects"
	labelBack          = "🔙 Back"
	labelCancel        = "✖️ Cancel"
	labelHome          = "🏠 Main menu"
	labelTaskList      = "📃 Task list"
	labelEditProject   = "✏️ Edit project"
	labelAddTask       = "➕ New task"
	labelAddProject    = "➕ New project"
	labelEditTask      = "✏️ Edit task"
	labelRenameTask    = "📝 Rename task"
	labelRenameProject = "📝 Rename project"
	labelComment       = "💬 Comment"
	labelDelete        = "❌ Delete"
)

var statusLabels = map[models.Status]string{
	models.NotStarted: "Not started",
	models.InProgress: "In progress",
	models.Completed:  "Completed",
}

func row(buttons ...Button) []Button { return buttons }

func btn(label string, a action.Action) Button {
	return Button{Label: label, Action: a}
}

func homeView(general *models.Project, stats models.Stats) View {
	text := "Main menu"
	if stats.Total() > 0 {
		text += fmt.Sprintf("\n%s %d  %s %d  %s %d",
			models.NotStarted.Marker(), stats.NotStarted,
			models.InProgress.Marker(), stats.InProgress,
			models.Completed.Marker(), stats.Completed)
	}
	return View{
		Text: text,
		Rows: [][]Button{
			row(
				btn(labelNewTask, action.NewEnterCreateTask(general.ID, models.PositionGeneral)),
				btn(labelNewProject, action.NewEnterCreateProject(models.PositionGeneral)),
			),
			row(btn(labelGeneralTasks, action.NewListGeneralTasks())),
			row(btn(labelProjects, action.NewListProjects())),
		},
	}
}

func projectsView(owner models.Owner, projects []models.Project, text string) View {
	if text == "" {
		text = "Projects"
	}
	v := View{Text: text}
	for _, p := range projects {
		if p.IsGeneral() {
			continue
		}
		v.Rows = append(v.Rows, row(btn(p.Name, action.NewSelectProject(owner, p.ID))))
	}
	v.Rows = append(v.Rows,
		row(btn(labelAddProject, action.NewEnterCreateProject(models.PositionList))),
		row(btn(labelBack, action.NewGoHome())),
	)
	return v
}

// taskListView lists the tasks of project. The general list goes back to the
// main menu, a project's list back to the project screen.
func taskListView(owner models.Owner, project *models.Project, tasks []models.Task, text string) View {
	pos := models.PositionList
	back := action.NewSelectProject(owner, project.ID)
	if project.IsGeneral() {
		pos = models.PositionGeneral
		back = action.NewGoHome()
	}
	if text == "" {
		text = taskListTitle(project)
	}

	v := View{Text: text}
	for _, t := range tasks {
		v.Rows = append(v.Rows, row(btn(t.Label(), action.NewSelectTask(owner, project.ID, t.ID, pos))))
	}
	v.Rows = append(v.Rows,
		row(btn(labelAddTask, action.NewEnterCreateTask(project.ID, pos))),
		row(btn(labelBack, back)),
	)
	return v
}

func taskListTitle(project *models.Project) string {
	if project.IsGeneral() {
		return "General tasks"
	}
	return fmt.Sprintf("Tasks of project %q", project.Name)
}

func manageProjectView(project *models.Project, text string) View {
	if text == "" {
		text = fmt.Sprintf("Project: %s", project.Name)
	}
	return View{
		Text: text,
		Rows: [][]Button{
			row(btn(labelTaskList, action.NewListProjectTasks(project.ID))),
			row(
				btn(labelEditProject, action.NewChangeProjectMenu(project.ID)),
				btn(labelAddTask, action.NewEnterCreateTask(project.ID, models.PositionProject)),
			),
			row(btn(labelBack, action.NewListProjects())),
		},
	}
}

func changeProjectView(owner models.Owner, project *models.Project) View {
	return View{
		Text: fmt.Sprintf("Editing project %q", project.Name),
		Rows: [][]Button{
			row(
				btn(labelRenameProject, action.NewRenameProject(project.ID)),
				btn(labelDelete, action.NewDeleteProject(project.ID)),
			),
			row(btn(labelBack, action.NewSelectProject(owner, project.ID))),
		},
	}
}

// describeTask renders a task with where it lives
func describeTask(project *models.Project, task *models.Task) string {
	var b strings.Builder
	if project.IsGeneral() {
		fmt.Fprintf(&b, "Task %q in general tasks", task.Label())
	} else {
		fmt.Fprintf(&b, "Task %q in project %q", task.Label(), project.Name)
	}
	fmt.Fprintf(&b, "\nStatus: %s", statusLabels[task.Status])
	if task.Comment != "" {
		fmt.Fprintf(&b, "\nComment: %s", task.Comment)
	}
	return b.String()
}

func manageTaskView(owner models.Owner, project *models.Project, task *models.Task, pos models.Position, text string) View {
	if text == "" {
		text = describeTask(project, task)
	} else {
		text += "\n" + describeTask(project, task)
	}

	statusRow := make([]Button, 0, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		statusRow = append(statusRow,
			btn(s.Marker()+" "+statusLabels[s], action.NewSetTaskStatus(project.ID, task.ID, pos, s)))
	}
	return View{
		Text: text,
		Rows: [][]Button{
			statusRow,
			row(btn(labelEditTask, action.NewChangeTaskMenu(project.ID, task.ID, pos))),
			row(btn(labelBack, taskBackAction(owner, project.ID, pos))),
		},
	}
}

func changeTaskView(owner models.Owner, project *models.Project, task *models.Task, pos models.Position) View {
	return View{
		Text: describeTask(project, task),
		Rows: [][]Button{
			row(
				btn(labelRenameTask, action.NewRenameTask(project.ID, task.ID, pos)),
				btn(labelComment, action.NewCommentTask(project.ID, task.ID, pos)),
			),
			row(btn(labelDelete, action.NewDeleteTask(project.ID, task.ID, pos))),
			row(btn(labelBack, action.NewSelectTask(owner, project.ID, task.ID, pos))),
		},
	}
}

// taskBackAction is where "back" leads from a task screen reached from pos
func taskBackAction(owner models.Owner, projectID int64, pos models.Position) action.Action {
	switch pos {
	case models.PositionGeneral:
		return action.NewListGeneralTasks()
	case models.PositionProject:
		return action.NewSelectProject(owner, projectID)
	}
	return action.NewListProjectTasks(projectID)
}

func promptView(owner models.Owner, text string, projectID int64, pos models.Position) View {
	return View{
		Text: text,
		Rows: [][]Button{
			row(btn(labelCancel, action.NewCancel(owner, projectID, pos))),
		},
	}
}

func goneView() View {
	return View{
		Text: "This item no longer exists",
		Rows: [][]Button{row(btn(labelHome, action.NewGoHome()))},
	}
}

func failureView() View {
	return View{
		Text: "Something went wrong, please try again",
		Rows: [][]Button{row(btn(labelHome, action.NewGoHome()))},
	}
}
