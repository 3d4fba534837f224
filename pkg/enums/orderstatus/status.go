package orderstatus

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(s.Name, "_", " "))
}

// Open reports whether the order still waits for the kitchen or the cashier.
func (s Status) Open() bool {
	return s == Statuses.Pending || s == Statuses.PendingVerification
}

type Enum struct {
	Pending             Status
	PendingVerification Status
	Processing          Status
	Preparing           Status
	Ready               Status
	Completed           Status
	Cancelled           Status
}

var Statuses = Enum{
	Pending:             Status{Name: "pending"},
	PendingVerification: Status{Name: "pending_verification"},
	Processing:          Status{Name: "processing"},
	Preparing:           Status{Name: "preparing"},
	Ready:               Status{Name: "ready"},
	Completed:           Status{Name: "completed"},
	Cancelled:           Status{Name: "cancelled"},
}

var All = []Status{
	Statuses.Pending,
	Statuses.PendingVerification,
	Statuses.Processing,
	Statuses.Preparing,
	Statuses.Ready,
	Statuses.Completed,
	Statuses.Cancelled,
}

// ByName returns the status for a given name, or nil if not found.
// Matching ignores case, surrounding spaces and hyphen/underscore differences.
func ByName(name string) *Status {
	normalized := normalize(name)
	for _, s := range All {
		if s.Name == normalized {
			return &s
		}
	}
	if normalized == "canceled" {
		s := Statuses.Cancelled
		return &s
	}
	return nil
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}
