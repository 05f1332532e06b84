package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/approval"
	"github.com/zulandar/querydesk/internal/messaging"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/role"
	"github.com/zulandar/querydesk/internal/visibility"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query management commands",
	}

	cmd.AddCommand(newQueryCreateCmd())
	cmd.AddCommand(newQueryListCmd())
	cmd.AddCommand(newQueryShowCmd())
	cmd.AddCommand(newQueryStatusCmd())
	return cmd
}

// parseItems turns --item values into sub-queries. A leading "sales:",
// "credit:" or "both:" routes that item to the named team.
func parseItems(items []string) []query.SubQueryInput {
	out := make([]query.SubQueryInput, 0, len(items))
	for _, it := range items {
		in := query.SubQueryInput{Text: it}
		if prefix, text, ok := strings.Cut(it, ":"); ok && role.IsTeam(strings.TrimSpace(prefix)) {
			in.MarkedForTeam = strings.TrimSpace(prefix)
			in.Text = strings.TrimSpace(text)
		}
		out = append(out, in)
	}
	return out
}

func newQueryCreateCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		opts       query.CreateOpts
		items      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Raise a new query against a loan application",
		Long: "Creates a pending query with one sub-query per --item. Prefix an item with\n" +
			"\"sales:\" or \"credit:\" to route it to a single team.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SubQueries = parseItems(items)
			return runQueryCreate(cmd, configPath, &actor, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, string(role.Originator))
	cmd.Flags().StringVar(&opts.AppNo, "app", "", "application number (required)")
	cmd.Flags().StringVar(&opts.CustomerName, "customer", "", "customer name")
	cmd.Flags().StringVar(&opts.BranchCode, "branch-code", "", "branch code")
	cmd.Flags().StringVar(&opts.MarkedForTeam, "for", "both", "team the query is routed to (sales, credit, both)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "medium", "priority (low, medium, high, urgent)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "sub-query text, repeatable")
	cmd.MarkFlagRequired("app")
	cmd.MarkFlagRequired("item")
	return cmd
}

func runQueryCreate(cmd *cobra.Command, configPath string, af *actorFlags, opts query.CreateOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}
	if !role.Of(actor.Role).CanOriginate {
		return fmt.Errorf("role %s may not raise queries", actor.Role)
	}
	opts.SubmittedBy = actor.Display()

	q, err := query.Create(gormDB, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created query %s\n", q.ID)
	fmt.Fprintf(out, "Application: %s  Routed to: %s  Sub-queries: %d\n", q.AppNo, q.MarkedForTeam, len(q.SubQueries))
	return nil
}

func newQueryListCmd() *cobra.Command {
	var (
		configPath string
		filters    query.ListFilters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queries",
		Long:  "Lists queries, newest first, with optional filters. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryList(cmd, configPath, filters)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&filters.AppNo, "app", "", "filter by application number")
	cmd.Flags().StringVar(&filters.BranchCode, "branch-code", "", "filter by branch code")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status")
	return cmd
}

func runQueryList(cmd *cobra.Command, configPath string, filters query.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	qs, err := query.List(gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(qs) == 0 {
		fmt.Fprintln(out, visibility.MsgNoQueries)
		return nil
	}

	tty := isTerminal(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP\tCUSTOMER\tBRANCH\tFOR\tSTATUS\tPRIORITY\tITEMS\tSUBMITTED")
	for _, q := range qs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			q.ID, q.AppNo, truncate(orDash(q.CustomerName), 24), orDash(q.BranchCode),
			q.MarkedForTeam, colorStatus(q.Status, tty), q.Priority, len(q.SubQueries),
			formatTime(q.SubmittedAt))
	}
	return w.Flush()
}

func newQueryShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a query with its sub-queries, approval requests and chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runQueryShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	q, err := query.Get(gormDB, id)
	if err != nil {
		return err
	}
	reqs, err := approval.ListRequests(gormDB, approval.ListFilters{QueryID: q.ID})
	if err != nil {
		return err
	}
	msgs, err := messaging.List(gormDB, q.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tty := isTerminal(out)
	fmt.Fprintf(out, "Query:        %s\n", q.ID)
	fmt.Fprintf(out, "Application:  %s\n", q.AppNo)
	fmt.Fprintf(out, "Customer:     %s\n", orDash(q.CustomerName))
	fmt.Fprintf(out, "Branch:       %s\n", orDash(strings.TrimSpace(q.Branch+" "+q.BranchCode)))
	fmt.Fprintf(out, "Routed to:    %s\n", q.MarkedForTeam)
	fmt.Fprintf(out, "Status:       %s\n", colorStatus(q.Status, tty))
	fmt.Fprintf(out, "Priority:     %s\n", q.Priority)
	fmt.Fprintf(out, "Submitted:    %s by %s\n", formatTime(q.SubmittedAt), q.SubmittedBy)
	if q.LastActionBy != "" {
		fmt.Fprintf(out, "Last action:  %s by %s\n", formatTimePtr(q.LastActionAt), q.LastActionBy)
	}
	if q.Remarks != "" {
		fmt.Fprintf(out, "Remarks:      %s\n", q.Remarks)
	}

	fmt.Fprintf(out, "\nSub-queries (%d):\n", len(q.SubQueries))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, sq := range q.SubQueries {
		fmt.Fprintf(w, "  %d.\t[%s]\t%s\t%s\n", i+1, sq.MarkedForTeam, colorStatus(sq.Status, tty), sq.Text)
	}
	w.Flush()

	if len(reqs) > 0 {
		fmt.Fprintf(out, "\nApproval requests (%d):\n", len(reqs))
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range reqs {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", r.ID, r.RequestType, colorStatus(r.Status, tty), r.RequestedBy, orDash(r.ProcessedBy))
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nChat (%d):\n", len(msgs))
	for _, m := range msgs {
		sender := m.Sender
		if m.IsSystemMessage {
			sender = "* " + sender
		}
		fmt.Fprintf(out, "  %s  %s: %s\n", formatTime(m.CreatedAt), sender, m.Message)
	}
	return nil
}

func newQueryStatusCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		to         string
		remarks    string
	)

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Change a query's status directly",
		Long: "Moves a query and its open sub-queries to a new status and records the change\n" +
			"in the query's chat. Deferral and OTC normally go through an approval request.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryStatus(cmd, configPath, &actor, query.Change{
				QueryID: args[0],
				Status:  to,
				Remarks: remarks,
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, string(role.Originator))
	cmd.Flags().StringVar(&to, "to", "", "new status (approved, deferred, otc, resolved)")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks recorded with the change")
	cmd.MarkFlagRequired("to")
	return cmd
}

func runQueryStatus(cmd *cobra.Command, configPath string, af *actorFlags, c query.Change) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}

	q, err := query.ChangeStatus(gormDB, actor, c)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Query %s is now %s\n", q.ID, colorStatus(q.Status, isTerminal(cmd.OutOrStdout())))
	return nil
}
