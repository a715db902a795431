package action

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/stmbot/internal/models"
)

const owner models.Owner = 123456789

func sampleActions() []Action {
	return []Action{
		NewEnterCreateTask(7, models.PositionGeneral),
		NewEnterCreateProject(models.PositionList),
		NewSelectTask(owner, 7, 42, models.PositionList),
		NewSelectProject(owner, 7),
		NewChangeTaskMenu(7, 42, models.PositionGeneral),
		NewSetTaskStatus(7, 42, models.PositionList, models.Completed),
		NewRenameTask(7, 42, models.PositionGeneral),
		NewDeleteTask(7, 42, models.PositionList),
		NewCommentTask(7, 42, models.PositionGeneral),
		NewChangeProjectMenu(7),
		NewRenameProject(7),
		NewDeleteProject(7),
		NewListGeneralTasks(),
		NewListProjectTasks(7),
		NewListProjects(),
		NewCancel(owner, 0, models.PositionProject),
		NewGoHome(),
	}
}

func TestRoundTripEveryKind(t *testing.T) {
	seen := map[Kind]bool{}
	for _, a := range sampleActions() {
		seen[a.Kind] = true
		t.Run(a.Kind.String(), func(t *testing.T) {
			token, err := Encode(a)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(token), 64, "token %q too long for a callback", token)

			got, err := Decode(token)
			require.NoError(t, err)
			if diff := cmp.Diff(a, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			again, err := got.Encode()
			require.NoError(t, err)
			assert.Equal(t, token, again)
		})
	}
	for _, k := range Kinds() {
		assert.True(t, seen[k], "no sample for %s", k)
	}
}

func TestRoundTripEveryStatusAndPosition(t *testing.T) {
	positions := []models.Position{models.PositionGeneral, models.PositionList, models.PositionProject}
	for _, status := range models.AllStatuses {
		for _, pos := range positions {
			a := NewSetTaskStatus(1, 2, pos, status)
			token, err := Encode(a)
			require.NoError(t, err)
			got, err := Decode(token)
			require.NoError(t, err)
			assert.Equal(t, a, got)
		}
	}
}

func TestEncodeFormat(t *testing.T) {
	token, err := Encode(NewSetTaskStatus(12, 5, models.PositionList, models.InProgress))
	require.NoError(t, err)
	assert.Equal(t, "1|ts|p=12|t=5|o=l|s=ip", token)

	token, err = Encode(NewGoHome())
	require.NoError(t, err)
	assert.Equal(t, "1|h", token)
}

func TestEncodeRejectsInvalidActions(t *testing.T) {
	cases := map[string]Action{
		"unknown kind":     {Kind: KindInvalid},
		"bad position":     NewEnterCreateTask(1, models.Position("elsewhere")),
		"bad status":       NewSetTaskStatus(1, 2, models.PositionList, models.Status(7)),
		"negative project": NewListProjectTasks(-3),
	}
	for name, a := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(a)
			assert.Error(t, err)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"1",
		"to_start_kb",
		"task_1_2_3_list",
		"2|h",
		"1|zz",
		"1|h|p=1",
		"1|lt",
		"1|lt|t=4",
		"1|lt|p=abc",
		"1|lt|p=007",
		"1|lt|p=-1",
		"1|lt|p",
		"1|nt|p=1|o=q",
		"1|ts|p=1|t=2|o=l|s=done",
		"1|ts|p=1|t=2|s=ip|o=l",
		"1|lt|p=99999999999999999999",
		"1|x|u=1|p=0|o=g|extra=1",
		strings.Repeat("1|h", 100),
	}
	for _, token := range cases {
		t.Run(token, func(t *testing.T) {
			_, err := Decode(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.NotEmpty(t, de.Reason)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SetTaskStatus", SetTaskStatus.String())
	assert.Equal(t, "invalid", Kind(200).String())
}
