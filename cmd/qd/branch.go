package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/models"
	"github.com/zulandar/querydesk/internal/role"
	"gorm.io/gorm"
)

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Branch assignment commands",
	}

	cmd.AddCommand(newBranchListCmd())
	cmd.AddCommand(newBranchAssignCmd())
	cmd.AddCommand(newBranchDecisionCmd("accept", "Accept a branch assignment", branch.Accept))
	cmd.AddCommand(newBranchDecisionCmd("decline", "Decline a branch assignment", branch.Decline))
	return cmd
}

func newBranchListCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		team       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List branches, or a user's assignments with --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranchList(cmd, configPath, userID, team)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&userID, "user", "", "show this user's assignments")
	cmd.Flags().StringVar(&team, "team", "", "team for --user (sales, credit)")
	return cmd
}

func runBranchList(cmd *cobra.Command, configPath, userID, team string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if userID == "" {
		var bs []models.Branch
		if err := gormDB.Order("code ASC").Find(&bs).Error; err != nil {
			return fmt.Errorf("list branches: %w", err)
		}
		if len(bs) == 0 {
			fmt.Fprintln(out, "No branches configured.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tNAME\tACTIVE")
		for _, b := range bs {
			fmt.Fprintf(w, "%s\t%s\t%t\n", b.Code, orDash(b.Name), b.Active)
		}
		return w.Flush()
	}

	if team == "" {
		team = userTeam(gormDB, userID)
	}
	as, err := branch.ListAssigned(gormDB, userID, team)
	if err != nil {
		return err
	}
	if len(as) == 0 {
		fmt.Fprintf(out, "No %s branch assignments for %s.\n", team, userID)
		return nil
	}
	tty := isTerminal(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BRANCH\tTEAM\tSTATUS\tMARKED\tACCEPTED")
	for _, a := range as {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.BranchCode, a.Team, colorStatus(a.Status, tty), formatTime(a.MarkedAt), formatTimePtr(a.AcceptedAt))
	}
	return w.Flush()
}

func newBranchAssignCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		code       string
		team       string
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Offer a branch to a sales or credit user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranchAssign(cmd, configPath, userID, code, team)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&code, "branch", "", "branch code (required)")
	cmd.Flags().StringVar(&team, "team", "", "team (defaults to the user's directory team)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("branch")
	return cmd
}

func runBranchAssign(cmd *cobra.Command, configPath, userID, code, team string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if team == "" {
		team = userTeam(gormDB, userID)
	}

	a, err := branch.Assign(gormDB, userID, code, team)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Assigned branch %s to %s (%s), pending acceptance\n", a.BranchCode, a.UserID, a.Team)
	return nil
}

type branchOp func(db *gorm.DB, userID, ref, team string) (*models.BranchAssignment, error)

func newBranchDecisionCmd(use, short string, op branchOp) *cobra.Command {
	var (
		configPath string
		actor      actorFlags
	)

	cmd := &cobra.Command{
		Use:   use + " <branch>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranchDecision(cmd, configPath, &actor, args[0], op)
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, string(role.Sales))
	return cmd
}

func runBranchDecision(cmd *cobra.Command, configPath string, af *actorFlags, ref string, op branchOp) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}
	team := actor.EffectiveTeam()
	if team == "" {
		return fmt.Errorf("--team is required for role %s", actor.Role)
	}

	a, err := op(gormDB, actor.ID, ref, team)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Branch %s is now %s for %s (%s)\n",
		a.BranchCode, colorStatus(a.Status, isTerminal(cmd.OutOrStdout())), a.UserID, a.Team)
	return nil
}

// userTeam looks up a user's directory team, returning "" when unknown.
func userTeam(gormDB *gorm.DB, userID string) string {
	var u models.User
	gormDB.Where("id = ?", userID).Limit(1).Find(&u)
	return u.Team
}
