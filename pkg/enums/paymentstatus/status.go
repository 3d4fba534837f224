package paymentstatus

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

type Enum struct {
	Pending             Status
	PendingVerification Status
	Paid                Status
	Failed              Status
}

var Statuses = Enum{
	Pending:             Status{Name: "pending"},
	PendingVerification: Status{Name: "pending_verification"},
	Paid:                Status{Name: "paid"},
	Failed:              Status{Name: "failed"},
}

var All = []Status{
	Statuses.Pending,
	Statuses.PendingVerification,
	Statuses.Paid,
	Statuses.Failed,
}

// ByName returns the status for a given name, or nil if not found.
func ByName(name string) *Status {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for _, s := range All {
		if s.Name == normalized {
			return &s
		}
	}
	return nil
}
