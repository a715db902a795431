package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tgienger/stmbot/internal/models"
)

// Version is the token format produced by Encode
const Version = "1"

// MaxTokenLen bounds the tokens Decode will look at
const MaxTokenLen = 128

const sep = "|"

// ErrDecode is wrapped by every *DecodeError
var ErrDecode = errors.New("malformed action token")

// DecodeError describes why a token did not match any known action
type DecodeError struct {
	Token  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode action %q: %s", e.Token, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

func decodeErr(token, format string, args ...any) error {
	return &DecodeError{Token: token, Reason: fmt.Sprintf(format, args...)}
}

type field uint8

const (
	fieldOwner field = iota
	fieldProject
	fieldTask
	fieldPosition
	fieldStatus
)

var fieldKeys = map[field]string{
	fieldOwner:    "u",
	fieldProject:  "p",
	fieldTask:     "t",
	fieldPosition: "o",
	fieldStatus:   "s",
}

type kindSpec struct {
	name   string
	code   string
	fields []field
}

var kinds = map[Kind]kindSpec{
	EnterCreateTask:    {"EnterCreateTask", "nt", []field{fieldProject, fieldPosition}},
	EnterCreateProject: {"EnterCreateProject", "np", []field{fieldPosition}},
	SelectTask:         {"SelectTask", "t", []field{fieldOwner, fieldProject, fieldTask, fieldPosition}},
	SelectProject:      {"SelectProject", "p", []field{fieldOwner, fieldProject}},
	ChangeTaskMenu:     {"ChangeTaskMenu", "ct", []field{fieldProject, fieldTask, fieldPosition}},
	SetTaskStatus:      {"SetTaskStatus", "ts", []field{fieldProject, fieldTask, fieldPosition, fieldStatus}},
	RenameTask:         {"RenameTask", "rt", []field{fieldProject, fieldTask, fieldPosition}},
	DeleteTask:         {"DeleteTask", "dt", []field{fieldProject, fieldTask, fieldPosition}},
	CommentTask:        {"CommentTask", "mt", []field{fieldProject, fieldTask, fieldPosition}},
	ChangeProjectMenu:  {"ChangeProjectMenu", "cp", []field{fieldProject}},
	RenameProject:      {"RenameProject", "rp", []field{fieldProject}},
	DeleteProject:      {"DeleteProject", "dp", []field{fieldProject}},
	ListGeneralTasks:   {"ListGeneralTasks", "lg", nil},
	ListProjectTasks:   {"ListProjectTasks", "lt", []field{fieldProject}},
	ListProjects:       {"ListProjects", "lp", nil},
	Cancel:             {"Cancel", "x", []field{fieldOwner, fieldProject, fieldPosition}},
	GoHome:             {"GoHome", "h", nil},
}

var kindsByCode = func() map[string]Kind {
	m := make(map[string]Kind, len(kinds))
	for k, spec := range kinds {
		m[spec.code] = k
	}
	return m
}()

var positionCodes = map[models.Position]string{
	models.PositionGeneral: "g",
	models.PositionList:    "l",
	models.PositionProject: "j",
}

// Kinds lists every valid action kind
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := KindInvalid + 1; k <= GoHome; k++ {
		out = append(out, k)
	}
	return out
}

// Encode serializes a into a token
func Encode(a Action) (string, error) {
	spec, ok := kinds[a.Kind]
	if !ok {
		return "", fmt.Errorf("encode action: unknown kind %d", a.Kind)
	}

	var b strings.Builder
	b.WriteString(Version)
	b.WriteString(sep)
	b.WriteString(spec.code)
	for _, f := range spec.fields {
		value, err := encodeField(a, f)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", spec.name, err)
		}
		b.WriteString(sep)
		b.WriteString(fieldKeys[f])
		b.WriteString("=")
		b.WriteString(value)
	}
	return b.String(), nil
}

// Encode is shorthand for the package level Encode
func (a Action) Encode() (string, error) {
	return Encode(a)
}

func encodeField(a Action, f field) (string, error) {
	switch f {
	case fieldOwner:
		return strconv.FormatInt(int64(a.Owner), 10), nil
	case fieldProject:
		if a.ProjectID < 0 {
			return "", fmt.Errorf("negative project id %d", a.ProjectID)
		}
		return strconv.FormatInt(a.ProjectID, 10), nil
	case fieldTask:
		if a.TaskID < 0 {
			return "", fmt.Errorf("negative task id %d", a.TaskID)
		}
		return strconv.FormatInt(a.TaskID, 10), nil
	case fieldPosition:
		code, ok := positionCodes[a.Position]
		if !ok {
			return "", fmt.Errorf("invalid position %q", a.Position)
		}
		return code, nil
	case fieldStatus:
		if !a.Status.Valid() {
			return "", fmt.Errorf("invalid status %d", int(a.Status))
		}
		return a.Status.Code(), nil
	}
	return "", fmt.Errorf("unknown field %d", f)
}

// Decode parses a token produced by Encode
func Decode(token string) (Action, error) {
	if len(token) > MaxTokenLen {
		return Action{}, decodeErr(token[:16]+"...", "token longer than %d bytes", MaxTokenLen)
	}

	parts := strings.Split(token, sep)
	if len(parts) < 2 {
		return Action{}, decodeErr(token, "missing version or kind")
	}
	if parts[0] != Version {
		return Action{}, decodeErr(token, "unsupported version %q", parts[0])
	}
	kind, ok := kindsByCode[parts[1]]
	if !ok {
		return Action{}, decodeErr(token, "unknown kind %q", parts[1])
	}

	spec := kinds[kind]
	values := parts[2:]
	if len(values) != len(spec.fields) {
		return Action{}, decodeErr(token, "%s takes %d fields, got %d", spec.name, len(spec.fields), len(values))
	}

	a := Action{Kind: kind}
	for i, f := range spec.fields {
		key, value, ok := strings.Cut(values[i], "=")
		if !ok || key != fieldKeys[f] {
			return Action{}, decodeErr(token, "expected field %q at position %d", fieldKeys[f], i)
		}
		if err := decodeField(&a, f, value); err != nil {
			return Action{}, decodeErr(token, "field %q: %v", key, err)
		}
	}
	return a, nil
}

func decodeField(a *Action, f field, value string) error {
	switch f {
	case fieldOwner:
		n, err := parseCanonicalInt(value)
		if err != nil {
			return err
		}
		a.Owner = models.Owner(n)
	case fieldProject, fieldTask:
		n, err := parseCanonicalInt(value)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative id %d", n)
		}
		if f == fieldProject {
			a.ProjectID = n
		} else {
			a.TaskID = n
		}
	case fieldPosition:
		for pos, code := range positionCodes {
			if code == value {
				a.Position = pos
				return nil
			}
		}
		return fmt.Errorf("unknown position %q", value)
	case fieldStatus:
		status, err := models.ParseStatusCode(value)
		if err != nil {
			return err
		}
		a.Status = status
	}
	return nil
}

// parseCanonicalInt only accepts the form strconv.FormatInt produces, so every
// accepted token re-encodes to itself.
func parseCanonicalInt(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", value)
	}
	if strconv.FormatInt(n, 10) != value {
		return 0, fmt.Errorf("non-canonical integer %q", value)
	}
	return n, nil
}

// CarriesOwner reports whether tokens of kind k embed the owner id
func (k Kind) CarriesOwner() bool {
	for _, f := range kinds[k].fields {
		if f == fieldOwner {
			return true
		}
	}
	return false
}
