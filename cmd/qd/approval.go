package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/role"
)

func newApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "approval",
		Aliases: []string{"approvals"},
		Short:   "Approval request commands",
	}

	cmd.AddCommand(newApprovalRequestCmd())
	cmd.AddCommand(newApprovalDecideCmd())
	cmd.AddCommand(newApprovalListCmd())
	return cmd
}

func newApprovalRequestCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		opts       approval.CreateOpts
	)

	cmd := &cobra.Command{
		Use:   "request <query-id>",
		Short: "Ask an authority to approve, defer or OTC a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.QueryID = args[0]
			return runApprovalRequest(cmd, configPath, &actor, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, string(role.Originator))
	cmd.Flags().StringVar(&opts.RequestType, "type", "", "request type (approve, deferral, otc)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assign", "", "authority the request is meant for")
	cmd.Flags().StringVar(&opts.Remarks, "remarks", "", "remarks carried into the status change")
	cmd.MarkFlagRequired("type")
	return cmd
}

func runApprovalRequest(cmd *cobra.Command, configPath string, af *actorFlags, opts approval.CreateOpts) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}
	if !role.Of(actor.Role).CanOriginate {
		return fmt.Errorf("role %s may not raise approval requests", actor.Role)
	}
	opts.RequestedBy = actor.Display()
	opts.RequesterRole = string(actor.Role)

	ctx := context.Background()
	svc, err := newServices(ctx, cfg, gormDB)
	if err != nil {
		return err
	}
	defer svc.Close()

	req, err := svc.router.CreateRequest(ctx, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s request %s for query %s\n", req.RequestType, req.ID, req.QueryID)
	if req.AssignedTo != "" {
		fmt.Fprintf(out, "Assigned to: %s\n", req.AssignedTo)
	}
	return nil
}

func newApprovalDecideCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		decision   string
		approve    bool
		reject     bool
		remarks    string
	)

	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Approve or reject a pending request",
		Long: "Records an authority's decision. Approving replays the stored status change\n" +
			"on the query; rejecting leaves the query untouched.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case approve && reject:
				return fmt.Errorf("--approve and --reject are mutually exclusive")
			case approve:
				decision = "approve"
			case reject:
				decision = "reject"
			}
			if decision == "" {
				return fmt.Errorf("one of --decision, --approve or --reject is required")
			}
			return runApprovalDecide(cmd, configPath, &actor, approval.DecideOpts{
				RequestID: args[0],
				Decision:  decision,
				Remarks:   remarks,
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, string(role.Authority))
	cmd.Flags().StringVar(&decision, "decision", "", "approve or reject")
	cmd.Flags().BoolVar(&approve, "approve", false, "shorthand for --decision approve")
	cmd.Flags().BoolVar(&reject, "reject", false, "shorthand for --decision reject")
	cmd.Flags().StringVar(&remarks, "remarks", "", "authority remarks")
	return cmd
}

func runApprovalDecide(cmd *cobra.Command, configPath string, af *actorFlags, opts approval.DecideOpts) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}
	opts.Authority = actor

	ctx := context.Background()
	svc, err := newServices(ctx, cfg, gormDB)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.router.Decide(ctx, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Message)
	if res.Query != nil {
		fmt.Fprintf(out, "Query %s is now %s\n", res.Query.ID, colorStatus(res.Query.Status, isTerminal(out)))
	}
	return nil
}

func newApprovalListCmd() *cobra.Command {
	var (
		configPath string
		filters    approval.ListFilters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalList(cmd, configPath, filters)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (pending, approved, rejected)")
	cmd.Flags().StringVar(&filters.Type, "type", "", "filter by type (approve, deferral, otc)")
	cmd.Flags().StringVar(&filters.QueryID, "query", "", "filter by query id")
	return cmd
}

func runApprovalList(cmd *cobra.Command, configPath string, filters approval.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	reqs, err := approval.ListRequests(gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(reqs) == 0 {
		fmt.Fprintln(out, "No approval requests found.")
		return nil
	}

	tty := isTerminal(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tQUERY\tTYPE\tSTATUS\tREQUESTED BY\tASSIGNED TO\tCREATED\tDECIDED BY")
	for _, r := range reqs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.QueryID, r.RequestType, colorStatus(r.Status, tty), r.RequestedBy,
			orDash(r.AssignedTo), formatTime(r.CreatedAt), orDash(r.ProcessedBy))
	}
	return w.Flush()
}
