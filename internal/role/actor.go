package role

// Actor identifies who is calling an operation.
type Actor struct {
	ID   string
	Name string
	Role Role
	Team string
}

// Display returns the name used in audit entries.
func (a Actor) Display() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// EffectiveTeam is the team used for routing checks. Sales and credit users
// default to their role's team when none is recorded.
func (a Actor) EffectiveTeam() string {
	if a.Team != "" {
		return a.Team
	}
	switch a.Role {
	case Sales:
		return string(Sales)
	case Credit:
		return string(Credit)
	}
	return ""
}
