package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/tgienger/stmbot/internal/action"
	"github.com/tgienger/stmbot/internal/db"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const u1 models.Owner = 1001

// chat drives a dispatcher the way a transport would: every button press
// edits the current message, every typed text is a new message.
type chat struct {
	t     *testing.T
	store *db.DB
	eng   *dialogue.Engine
	d     *Dispatcher
	owner models.Owner
	last  Response
	seq   int
	// screen is the message the menu is shown on
	screen dialogue.MessageRef
}

func newChat(t *testing.T, opts ...dialogue.Option) *chat {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := dialogue.NewEngine(opts...)
	h := NewHandler(store, eng, zap.NewNop())
	return &chat{t: t, store: store, eng: eng, d: NewDispatcher(h), owner: u1}
}

func (c *chat) nextRef() dialogue.MessageRef {
	c.seq++
	return dialogue.MessageRef(fmt.Sprintf("m%d", c.seq))
}

func (c *chat) apply(resp Response) Response {
	c.last = resp
	if resp.View != nil && !resp.Edit {
		c.screen = c.nextRef()
	}
	return resp
}

func (c *chat) start() Response {
	c.t.Helper()
	return c.apply(c.d.Dispatch(context.Background(), Start{Owner: c.owner, Ref: c.nextRef()}))
}

func (c *chat) send(text string) Response {
	c.t.Helper()
	return c.apply(c.d.Dispatch(context.Background(), TextInput{Owner: c.owner, Text: text, Ref: c.nextRef()}))
}

func (c *chat) pressAction(a action.Action) Response {
	c.t.Helper()
	token, err := action.Encode(a)
	require.NoError(c.t, err)
	return c.pressToken(token)
}

func (c *chat) pressToken(token string) Response {
	c.t.Helper()
	return c.apply(c.d.Dispatch(context.Background(), Interaction{Owner: c.owner, Token: token, Ref: c.screen}))
}

func (c *chat) button(label string) Button {
	c.t.Helper()
	require.NotNil(c.t, c.last.View, "no view on screen")
	for _, b := range c.last.View.Buttons() {
		if b.Label == label {
			return b
		}
	}
	c.t.Fatalf("no button %q in %v", label, labels(*c.last.View))
	return Button{}
}

func (c *chat) press(label string) Response {
	c.t.Helper()
	return c.pressAction(c.button(label).Action)
}

func labels(v View) []string {
	var out []string
	for _, b := range v.Buttons() {
		out = append(out, b.Label)
	}
	return out
}

func projectNames(t *testing.T, store *db.DB, owner models.Owner) []string {
	t.Helper()
	projects, err := store.ListProjects(context.Background(), owner)
	require.NoError(t, err)
	names := []string{}
	for _, p := range projects {
		names = append(names, p.Name)
	}
	return names
}

func TestStartShowsHome(t *testing.T) {
	c := newChat(t)
	resp := c.start()
	require.NotNil(t, resp.View)
	assert.False(t, resp.Edit)
	assert.Equal(t, "Main menu", resp.View.Text)
	assert.Equal(t, []string{labelNewTask, labelNewProject, labelGeneralTasks, labelProjects}, labels(*resp.View))
	assert.Equal(t, []dialogue.MessageRef{"m1"}, resp.Cleanup)

	c.start()
	all, err := c.store.ListAllProjects(context.Background(), u1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "General", all[0].Name)
}

func TestScenarioProjectLifecycle(t *testing.T) {
	c := newChat(t)
	ctx := context.Background()
	c.start()

	c.press(labelProjects)
	assert.Equal(t, []string{labelAddProject, labelBack}, labels(*c.last.View))

	prompt := c.press(labelAddProject)
	assert.True(t, prompt.Edit)
	assert.Equal(t, dialogue.AwaitingProjectName, c.eng.State(u1))
	anchor := c.screen

	created := c.send("Work")
	assert.Equal(t, dialogue.Idle, c.eng.State(u1))
	assert.Contains(t, created.View.Text, `Project "Work" created`)
	assert.Contains(t, created.Cleanup, anchor, "prompt message must be removed")
	assert.Len(t, created.Cleanup, 2)
	assert.Equal(t, []string{"Work"}, projectNames(t, c.store, u1))

	c.press("Work")
	assert.Equal(t, "Project: Work", c.last.View.Text)

	c.press(labelAddTask)
	assert.Equal(t, dialogue.AwaitingTaskName, c.eng.State(u1))
	resp := c.send("Write report")
	assert.Contains(t, resp.View.Text, `Task "🟣 Write report" in project "Work" created`)
	// created from the project screen, so we land back there
	assert.Contains(t, labels(*resp.View), labelTaskList)

	c.press(labelTaskList)
	c.press("🟣 Write report")
	assert.Contains(t, c.last.View.Text, "Status: Not started")

	done := c.press("🟢 Completed")
	assert.Contains(t, done.View.Text, `"🟢 Write report"`)
	assert.Contains(t, done.View.Text, "Status: Completed")

	work, err := c.store.ListProjects(ctx, u1)
	require.NoError(t, err)
	tasks, err := c.store.ListTasks(ctx, u1, work[0].ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.Completed, tasks[0].Status)
	assert.Equal(t, "🟢", tasks[0].Status.Marker())
	taskID := tasks[0].ID

	c.press(labelBack)
	assert.Contains(t, labels(*c.last.View), "🟢 Write report")
	c.press(labelBack)
	c.press(labelEditProject)
	deleted := c.press(labelDelete)
	assert.Contains(t, deleted.View.Text, `Project "Work" deleted together with 1 tasks`)

	assert.Empty(t, projectNames(t, c.store, u1))
	_, err = c.store.GetTask(ctx, u1, work[0].ID, taskID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestCreateGeneralProjectIsRejected(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewProject)

	resp := c.send("General")
	require.NotNil(t, resp.View)
	assert.Contains(t, resp.View.Text, `the name "General" is reserved`)
	assert.Empty(t, projectNames(t, c.store, u1))

	all, err := c.store.ListAllProjects(context.Background(), u1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGeneralProjectCannotBeChanged(t *testing.T) {
	c := newChat(t)
	c.start()
	general, err := c.store.EnsureGeneralProject(context.Background(), u1)
	require.NoError(t, err)

	for _, a := range []action.Action{
		action.NewChangeProjectMenu(general.ID),
		action.NewRenameProject(general.ID),
		action.NewDeleteProject(general.ID),
	} {
		resp := c.pressAction(a)
		require.NotNil(t, resp.View)
		assert.Contains(t, resp.View.Text, "cannot be renamed or deleted", a.Kind.String())
		assert.Equal(t, dialogue.Idle, c.eng.State(u1))
	}

	still, err := c.store.GetProject(context.Background(), u1, general.ID)
	require.NoError(t, err)
	assert.Equal(t, "General", still.Name)
}

func TestGeneralTasksFlow(t *testing.T) {
	c := newChat(t)
	c.start()

	c.press(labelNewTask)
	resp := c.send("Buy milk")
	assert.Contains(t, resp.View.Text, `Task "🟣 Buy milk" in general tasks created`)
	assert.Equal(t, []string{"🟣 Buy milk", labelAddTask, labelBack}, labels(*resp.View))

	c.press("🟣 Buy milk")
	c.press("🔵 In progress")
	back := c.press(labelBack)
	assert.Equal(t, "General tasks", back.View.Text)
	assert.Contains(t, labels(*back.View), "🔵 Buy milk")

	home := c.press(labelBack)
	assert.Contains(t, home.View.Text, "🔵 1")
}

func TestDuplicateTaskIsReused(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelGeneralTasks)
	c.press(labelAddTask)
	c.send("X")
	c.press(labelAddTask)
	resp := c.send("X")
	assert.Contains(t, resp.View.Text, "already exists")
	assert.Equal(t, []string{"🟣 X", labelAddTask, labelBack}, labels(*resp.View))
}

func TestCancelReturnsToOrigin(t *testing.T) {
	c := newChat(t)
	c.start()

	// project prompt from the main menu goes home
	c.press(labelNewProject)
	resp := c.press(labelCancel)
	assert.Equal(t, "Main menu", resp.View.Text)
	assert.Equal(t, dialogue.Idle, c.eng.State(u1))

	// a general task prompt lands on the general tasks, wherever it was opened
	c.press(labelNewTask)
	resp = c.press(labelCancel)
	assert.Equal(t, "General tasks", resp.View.Text)
	assert.Equal(t, dialogue.Idle, c.eng.State(u1))
	c.press(labelBack)

	// project prompt from the list goes back to the list
	c.press(labelProjects)
	c.press(labelAddProject)
	resp = c.press(labelCancel)
	assert.Equal(t, "Projects", resp.View.Text)

	c.press(labelAddProject)
	c.send("Work")
	c.press("Work")
	c.press(labelTaskList)
	c.press(labelAddTask)
	resp = c.press(labelCancel)
	assert.Equal(t, `Tasks of project "Work"`, resp.View.Text)

	c.press(labelBack)
	c.press(labelAddTask)
	resp = c.press(labelCancel)
	assert.Equal(t, "Project: Work", resp.View.Text)

	// a rename prompt returns to the task
	c.press(labelTaskList)
	c.press(labelAddTask)
	c.send("t1")
	c.press("🟣 t1")
	c.press(labelEditTask)
	c.press(labelRenameTask)
	resp = c.press(labelCancel)
	assert.Contains(t, resp.View.Text, `Task "🟣 t1" in project "Work"`)
	assert.Equal(t, dialogue.Idle, c.eng.State(u1))
}

func TestCancelWithoutPendingPromptUsesToken(t *testing.T) {
	c := newChat(t)
	c.start()
	resp := c.pressAction(action.NewCancel(u1, 0, models.PositionList))
	assert.Equal(t, "Projects", resp.View.Text)
	assert.Empty(t, resp.Cleanup)
}

func TestRenameAndComment(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewTask)
	c.send("draft")
	c.press("🟣 draft")
	c.press(labelEditTask)
	c.press(labelRenameTask)
	assert.Equal(t, dialogue.AwaitingTaskRename, c.eng.State(u1))

	resp := c.send("final")
	assert.Contains(t, resp.View.Text, "Task renamed")
	assert.Contains(t, resp.View.Text, `"🟣 final"`)

	c.press(labelEditTask)
	c.press(labelComment)
	resp = c.send("needs review")
	assert.Contains(t, resp.View.Text, "Comment: needs review")

	c.press(labelEditTask)
	prompt := c.press(labelComment)
	assert.Contains(t, prompt.View.Text, "Current comment: needs review")
	resp = c.send("-")
	assert.Contains(t, resp.View.Text, "Comment removed")
	assert.NotContains(t, resp.View.Text, "Comment:")
}

func TestRenameProjectConflicts(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelProjects)
	c.press(labelAddProject)
	c.send("Home")
	c.press(labelAddProject)
	c.send("Work")

	c.press("Work")
	c.press(labelEditProject)
	c.press(labelRenameProject)
	resp := c.send("Home")
	assert.Contains(t, resp.View.Text, `a project named "Home" already exists`)

	c.press(labelEditProject)
	c.press(labelRenameProject)
	resp = c.send("General")
	assert.Contains(t, resp.View.Text, "is reserved")

	c.press(labelEditProject)
	c.press(labelRenameProject)
	resp = c.send("Office")
	assert.Equal(t, `Project renamed to "Office"`, resp.View.Text)
	assert.Equal(t, []string{"Home", "Office"}, projectNames(t, c.store, u1))
}

func TestEmptyNameKeepsPromptOpen(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewTask)
	anchor := c.screen

	resp := c.send("   ")
	assert.Nil(t, resp.View)
	assert.Equal(t, "The name must not be empty", resp.Notice)
	assert.NotContains(t, resp.Cleanup, anchor)
	assert.Equal(t, dialogue.AwaitingTaskName, c.eng.State(u1))

	resp = c.send("real name")
	assert.Contains(t, resp.View.Text, "created")
}

func TestTextWhileIdleIsCleanedUp(t *testing.T) {
	c := newChat(t)
	c.start()
	resp := c.send("hello?")
	assert.Nil(t, resp.View)
	assert.Len(t, resp.Cleanup, 1)
}

func TestUndecodableTokenFallsBackHome(t *testing.T) {
	c := newChat(t)
	c.start()
	for _, token := range []string{"garbage", "task_1_2_3_list", "1|ts|p=1|t=1|o=l|s=zz"} {
		resp := c.pressToken(token)
		require.NotNil(t, resp.View, token)
		assert.True(t, resp.Edit)
		assert.Equal(t, "This button is no longer valid", resp.Notice)
		assert.True(t, strings.HasPrefix(resp.View.Text, "Main menu"))
	}
}

func TestForeignOwnerTokenIsRejected(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewTask)
	c.send("mine")

	general, err := c.store.EnsureGeneralProject(context.Background(), u1)
	require.NoError(t, err)
	tasks, err := c.store.ListTasks(context.Background(), u1, general.ID)
	require.NoError(t, err)

	intruder := &chat{t: t, store: c.store, eng: c.eng, d: c.d, owner: 2002}
	intruder.start()
	resp := intruder.pressAction(action.NewSelectTask(u1, general.ID, tasks[0].ID, models.PositionGeneral))
	assert.Equal(t, "This button is no longer valid", resp.Notice)

	// even with its own owner id the task does not resolve for someone else
	resp = intruder.pressAction(action.NewSelectTask(2002, general.ID, tasks[0].ID, models.PositionGeneral))
	assert.Equal(t, goneView().Text, resp.View.Text)
}

func TestStaleReferenceAfterDelete(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewTask)
	c.send("ephemeral")
	c.press("🟣 ephemeral")
	statusButton := c.button("🟢 Completed")

	c.press(labelEditTask)
	resp := c.press(labelDelete)
	assert.Contains(t, resp.View.Text, `Task "ephemeral" deleted`)

	resp = c.pressAction(statusButton.Action)
	assert.Equal(t, "No longer exists", resp.Notice)
	if diff := cmp.Diff(goneView(), *resp.View); diff != "" {
		t.Errorf("gone view mismatch (-want +got):\n%s", diff)
	}
}

func TestNavigationAbandonsPrompt(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewProject)
	assert.Equal(t, dialogue.AwaitingProjectName, c.eng.State(u1))

	c.pressAction(action.NewListProjects())
	assert.Equal(t, dialogue.Idle, c.eng.State(u1))

	resp := c.send("Late answer")
	assert.Nil(t, resp.View)
	assert.Empty(t, projectNames(t, c.store, u1))
}

func TestNewPromptReplacesOldAnchor(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewProject)
	oldAnchor := c.screen

	// a second menu message, e.g. after /start again elsewhere
	c.screen = "other"
	resp := c.pressAction(action.NewEnterCreateProject(models.PositionList))
	assert.Equal(t, []dialogue.MessageRef{oldAnchor}, resp.Cleanup)
	slot, ok := c.eng.Peek(u1)
	require.True(t, ok)
	assert.Equal(t, dialogue.MessageRef("other"), slot.Context.Anchor)
}

func TestExpiredPromptIsIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newChat(t, dialogue.WithTTL(time.Minute), dialogue.WithClock(func() time.Time { return now }))
	c.start()
	c.press(labelNewProject)
	anchor := c.screen

	now = now.Add(2 * time.Minute)
	resp := c.send("Too late")
	assert.Nil(t, resp.View)
	assert.Equal(t, NoticeExpired, resp.Notice)
	assert.Contains(t, resp.Cleanup, anchor)
	assert.Contains(t, resp.Cleanup, dialogue.MessageRef(fmt.Sprintf("m%d", c.seq)))
	assert.Empty(t, projectNames(t, c.store, u1))

	// already reported, the sweeper has nothing left
	assert.Empty(t, c.eng.Sweep())
	resp = c.send("Still too late")
	assert.Empty(t, resp.Notice)
	assert.NotContains(t, resp.Cleanup, anchor)
}

func TestExpiredPromptIsReplacedByNewOne(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := newChat(t, dialogue.WithTTL(time.Minute), dialogue.WithClock(func() time.Time { return now }))
	c.start()
	c.press(labelNewProject)
	oldAnchor := c.screen

	now = now.Add(2 * time.Minute)
	c.screen = "other"
	resp := c.pressAction(action.NewEnterCreateProject(models.PositionList))
	assert.Equal(t, []dialogue.MessageRef{oldAnchor}, resp.Cleanup)
	assert.Equal(t, dialogue.AwaitingProjectName, c.eng.State(u1))
}

func TestConcurrentAnswersCompleteOnce(t *testing.T) {
	c := newChat(t)
	c.start()
	c.press(labelNewTask)

	var wg sync.WaitGroup
	views := make([]Response, 8)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i] = c.d.Dispatch(context.Background(), TextInput{
				Owner: u1,
				Text:  fmt.Sprintf("task %d", i),
				Ref:   dialogue.MessageRef(fmt.Sprintf("c%d", i)),
			})
		}(i)
	}
	wg.Wait()

	completed := 0
	for _, r := range views {
		if r.View != nil {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	general, err := c.store.EnsureGeneralProject(context.Background(), u1)
	require.NoError(t, err)
	tasks, err := c.store.ListTasks(context.Background(), u1, general.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

type panicStore struct{ Store }

func TestDispatchRecoversPanics(t *testing.T) {
	h := NewHandler(panicStore{}, dialogue.NewEngine(), nil)
	d := NewDispatcher(h)
	resp := d.Dispatch(context.Background(), Start{Owner: u1, Ref: "m"})
	require.NotNil(t, resp.View)
	assert.Equal(t, failureView().Text, resp.View.Text)
}

func TestSweepExpiredStopsWithContext(t *testing.T) {
	eng := dialogue.NewEngine(dialogue.WithTTL(time.Millisecond))
	d := NewDispatcher(NewHandler(panicStore{}, eng, nil))
	eng.Enter(u1, dialogue.AwaitingComment, dialogue.Context{Anchor: "prompt"})

	ctx, cancel := context.WithCancel(context.Background())
	expired := make(chan ExpiredPrompt, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.SweepExpired(ctx, 5*time.Millisecond, func(p ExpiredPrompt) { expired <- p })
	}()

	select {
	case p := <-expired:
		assert.Equal(t, u1, p.Owner)
		assert.Equal(t, dialogue.MessageRef("prompt"), p.Slot.Context.Anchor)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt was not swept")
	}
	cancel()
	<-done
}
