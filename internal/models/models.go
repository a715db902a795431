package models

import "time"

// GeneralProjectName is the protected default project every owner has
const GeneralProjectName = "General"

// Owner is the platform account id all records are scoped under
type Owner int64

// User represents an account that has contacted the bot
type User struct {
	ID        Owner
	CreatedAt time.Time
}

// Project represents a named group of tasks belonging to one owner
type Project struct {
	ID        int64
	Owner     Owner
	Name      string
	CreatedAt time.Time
}

// IsGeneral reports whether p is the owner's protected default project
func (p Project) IsGeneral() bool {
	return p.Name == GeneralProjectName
}

// Task represents a single task inside a project
type Task struct {
	ID        int64
	Owner     Owner
	ProjectID int64
	Name      string
	Status    Status
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Label returns the task name prefixed with its status marker
func (t Task) Label() string {
	return t.Status.Marker() + " " + t.Name
}

// Stats counts an owner's tasks per status
type Stats struct {
	NotStarted int
	InProgress int
	Completed  int
}

// Total returns the number of tasks counted
func (s Stats) Total() int {
	return s.NotStarted + s.InProgress + s.Completed
}
