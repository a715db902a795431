package models

import "fmt"

// Status is the progress state of a task
type Status int

const (
	NotStarted Status = iota
	InProgress
	Completed
)

type statusInfo struct {
	name   string
	code   string
	marker string
}

// statuses is the only place a status is tied to its marker
var statuses = map[Status]statusInfo{
	NotStarted: {name: "not started", code: "ns", marker: "🟣"},
	InProgress: {name: "in progress", code: "ip", marker: "🔵"},
	Completed:  {name: "completed", code: "cp", marker: "🟢"},
}

// AllStatuses lists statuses in menu order
var AllStatuses = []Status{NotStarted, InProgress, Completed}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// Marker returns the visual indicator for s
func (s Status) Marker() string {
	if info, ok := statuses[s]; ok {
		return info.marker
	}
	return "⚪"
}

// Code returns the compact form used in action tokens
func (s Status) Code() string {
	return statuses[s].code
}

func (s Status) String() string {
	if info, ok := statuses[s]; ok {
		return info.name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatusCode is the inverse of Code
func ParseStatusCode(code string) (Status, error) {
	for s, info := range statuses {
		if info.code == code {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status code %q", code)
}

// Position records which parent view a task or project screen was reached from
type Position string

const (
	PositionGeneral Position = "general"
	PositionList    Position = "list"
	PositionProject Position = "project"
)

// Valid reports whether p is one of the known positions
func (p Position) Valid() bool {
	switch p {
	case PositionGeneral, PositionList, PositionProject:
		return true
	}
	return false
}
