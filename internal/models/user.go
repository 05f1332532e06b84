package models

import "strings"

// User is a directory entry. Authentication lives elsewhere; this table only
// records the role, team, and decision scope used for authorization.
type User struct {
	ID     string `gorm:"primaryKey;size:64"`
	Name   string `gorm:"size:128;not null"`
	Role   string `gorm:"size:16;not null"`
	Team   string `gorm:"size:16"`
	Active bool
	// DecidableTypes is a comma-separated list of request types an authority
	// may decide. Empty means all types.
	DecidableTypes string `gorm:"size:64"`
}

// CanDecide reports whether the user's decision scope covers requestType.
func (u *User) CanDecide(requestType string) bool {
	if strings.TrimSpace(u.DecidableTypes) == "" {
		return true
	}
	for _, t := range strings.Split(u.DecidableTypes, ",") {
		if strings.TrimSpace(t) == requestType {
			return true
		}
	}
	return false
}
