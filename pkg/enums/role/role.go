package role

import "strings"

// Role is one of the three actor roles of the café platform.
type Role string

const (
	Admin    Role = "admin"
	Staff    Role = "staff"
	Customer Role = "customer"
)

var All = []Role{Admin, Staff, Customer}

func (r Role) Code() string {
	return string(r)
}

// UserKey is the persisted key holding this role's user record.
func (r Role) UserKey() string {
	return string(r) + "User"
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return ByName(string(r)) != nil
}

// ByName returns the role for a given name, or nil if not found.
func ByName(name string) *Role {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range All {
		if string(r) == name {
			return &r
		}
	}
	return nil
}

// ByUserKey returns the role owning a persisted user key, or nil.
func ByUserKey(key string) *Role {
	for _, r := range All {
		if r.UserKey() == key {
			return &r
		}
	}
	return nil
}
