// Package role maps the closed set of actor roles to what each may see and do
// with a sub-query, given the sub-query's markedForTeam tag.
package role

import "github.com/zulandar/querydesk/internal/models"

type Role string

const (
	Originator Role = "originator"
	Sales      Role = "sales"
	Credit     Role = "credit"
	Authority  Role = "authority"
	Admin      Role = "admin"
)

// Capability answers visibility and action questions for one role.
type Capability struct {
	// CanView reports whether a sub-query routed to marked is visible to a
	// requester working for team.
	CanView func(team, marked string) bool
	// CanAct reports whether the requester may chat on or directly
	// transition it.
	CanAct func(team, marked string) bool
	// CanOriginate allows creating queries and approval requests.
	CanOriginate bool
	// CanDecide allows deciding approval requests.
	CanDecide bool
	// BranchScoped restricts dashboards to the role's accepted branch.
	BranchScoped bool
}

func always(_, _ string) bool { return true }
func never(_, _ string) bool  { return false }

var capabilities = map[Role]Capability{
	Originator: {CanView: always, CanAct: always, CanOriginate: true},
	Sales:      {CanView: TeamMatches, CanAct: TeamMatches, BranchScoped: true},
	Credit:     {CanView: TeamMatches, CanAct: TeamMatches, BranchScoped: true},
	Authority:  {CanView: always, CanAct: never, CanDecide: true},
	Admin:      {CanView: always, CanAct: always, CanOriginate: true, CanDecide: true},
}

// Of returns the capability for r. Unknown roles get nothing.
func Of(r Role) Capability {
	if c, ok := capabilities[r]; ok {
		return c
	}
	return Capability{CanView: never, CanAct: never}
}

// Parse normalizes a role name. The second result is false for unknown roles.
// "operations" is accepted as an alias of the originating team.
func Parse(s string) (Role, bool) {
	switch Role(s) {
	case Originator, Sales, Credit, Authority, Admin:
		return Role(s), true
	case "operations":
		return Originator, true
	}
	return "", false
}

// IsTeam reports whether s is a valid markedForTeam tag.
func IsTeam(s string) bool {
	return s == models.TeamSales || s == models.TeamCredit || s == models.TeamBoth
}

// TeamMatches applies the routing rule: a sub-query tagged marked is open to a
// requester on team when the tag equals the team or is "both". A requester
// working for both teams matches every tag.
func TeamMatches(team, marked string) bool {
	if team == "" || marked == "" {
		return false
	}
	return marked == team || marked == models.TeamBoth || team == models.TeamBoth
}
