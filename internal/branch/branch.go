// Package branch resolves which branch a downstream-team user works on.
package branch

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/querydesk/internal/apperr"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

// ListAssigned returns a user's assignments for team, newest first. An empty
// team lists every team.
func ListAssigned(db *gorm.DB, userID, team string) ([]models.BranchAssignment, error) {
	if userID == "" {
		return nil, apperr.Validationf("user id is required")
	}
	q := db.Where("user_id = ?", userID)
	if team != "" {
		q = q.Where("team = ?", team)
	}
	var out []models.BranchAssignment
	if err := q.Order("marked_at DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internalf(err, "branch: list assignments for %s", userID)
	}
	return out, nil
}

// Accept marks the assignment identified by ref (branch id or code) as
// accepted and declines every other assignment the user holds for team. Both
// updates commit together, so a user never has two accepted branches.
func Accept(db *gorm.DB, userID, ref, team string) (*models.BranchAssignment, error) {
	if err := checkArgs(userID, ref, team); err != nil {
		return nil, err
	}

	var accepted models.BranchAssignment
	err := db.Transaction(func(tx *gorm.DB) error {
		target, err := find(tx, userID, ref, team)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&models.BranchAssignment{}).
			Where("id = ?", target.ID).
			Updates(map[string]interface{}{
				"status":      models.AssignmentAccepted,
				"accepted_at": now,
				"declined_at": nil,
			}).Error; err != nil {
			return apperr.Internalf(err, "branch: accept %s", target.ID)
		}

		if err := tx.Model(&models.BranchAssignment{}).
			Where("user_id = ? AND team = ? AND id <> ? AND status <> ?",
				userID, team, target.ID, models.AssignmentDeclined).
			Updates(map[string]interface{}{
				"status":      models.AssignmentDeclined,
				"declined_at": now,
			}).Error; err != nil {
			return apperr.Internalf(err, "branch: decline siblings of %s", target.ID)
		}

		return tx.Where("id = ?", target.ID).First(&accepted).Error
	})
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Decline marks only the referenced assignment as declined.
func Decline(db *gorm.DB, userID, ref, team string) (*models.BranchAssignment, error) {
	if err := checkArgs(userID, ref, team); err != nil {
		return nil, err
	}
	target, err := find(db, userID, ref, team)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := db.Model(&models.BranchAssignment{}).
		Where("id = ?", target.ID).
		Updates(map[string]interface{}{
			"status":      models.AssignmentDeclined,
			"declined_at": now,
		}).Error; err != nil {
		return nil, apperr.Internalf(err, "branch: decline %s", target.ID)
	}
	target.Status = models.AssignmentDeclined
	target.DeclinedAt = &now
	return target, nil
}

// Assign offers a branch to a user. The assignment starts pending until the
// user accepts it.
func Assign(db *gorm.DB, userID, branchCode, team string) (*models.BranchAssignment, error) {
	if err := checkArgs(userID, branchCode, team); err != nil {
		return nil, err
	}

	var b models.Branch
	if err := db.Where("code = ?", branchCode).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("branch not found: %s", branchCode)
		}
		return nil, apperr.Internalf(err, "branch: get %s", branchCode)
	}

	var count int64
	if err := db.Model(&models.BranchAssignment{}).
		Where("user_id = ? AND team = ? AND branch_id = ?", userID, team, b.ID).
		Count(&count).Error; err != nil {
		return nil, apperr.Internalf(err, "branch: check existing assignment")
	}
	if count > 0 {
		return nil, apperr.Conflictf("%s is already assigned branch %s for %s", userID, branchCode, team)
	}

	a := models.BranchAssignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		Team:       team,
		BranchID:   b.ID,
		BranchCode: b.Code,
		Status:     models.AssignmentPending,
		MarkedAt:   time.Now(),
	}
	if err := db.Create(&a).Error; err != nil {
		return nil, apperr.Internalf(err, "branch: assign %s to %s", branchCode, userID)
	}
	return &a, nil
}

// Current returns the user's accepted assignment for team, or nil when none
// has been accepted.
func Current(db *gorm.DB, userID, team string) (*models.BranchAssignment, error) {
	var a models.BranchAssignment
	err := db.Where("user_id = ? AND team = ? AND status = ?", userID, team, models.AssignmentAccepted).
		Order("accepted_at DESC").First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Internalf(err, "branch: current for %s", userID)
	}
	return &a, nil
}

// CheckScope returns a Forbidden error unless actor may work on records of
// branchCode. Roles that are not branch scoped always pass; sales and credit
// users need an accepted assignment for that branch.
func CheckScope(db *gorm.DB, actor role.Actor, branchCode string) error {
	if !role.Of(actor.Role).BranchScoped {
		return nil
	}
	team := actor.EffectiveTeam()
	cur, err := Current(db, actor.ID, team)
	if err != nil {
		return err
	}
	if cur == nil {
		return apperr.Forbiddenf("%s has no accepted %s branch", actor.Display(), team)
	}
	if cur.BranchCode != branchCode {
		return apperr.Forbiddenf("%s works branch %s, not %s", actor.Display(), cur.BranchCode, orNone(branchCode))
	}
	return nil
}

func orNone(code string) string {
	if code == "" {
		return "(none)"
	}
	return code
}

func find(db *gorm.DB, userID, ref, team string) (*models.BranchAssignment, error) {
	var a models.BranchAssignment
	err := db.Where("user_id = ? AND team = ? AND (branch_id = ? OR branch_code = ?)", userID, team, ref, ref).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("no %s assignment of branch %s for %s", team, ref, userID)
		}
		return nil, apperr.Internalf(err, "branch: find assignment %s", ref)
	}
	return &a, nil
}

func checkArgs(userID, ref, team string) error {
	if userID == "" {
		return apperr.Validationf("user id is required")
	}
	if ref == "" {
		return apperr.Validationf("branch is required")
	}
	if !role.IsTeam(team) {
		return apperr.Validationf("team %q must be sales, credit or both", team)
	}
	return nil
}
