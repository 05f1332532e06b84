package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/querydesk/internal/branch"
	"github.com/zulandar/querydesk/internal/messaging"
	"github.com/zulandar/querydesk/internal/query"
	"github.com/zulandar/querydesk/internal/role"
	"github.com/zulandar/querydesk/internal/visibility"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Query conversation commands",
	}

	cmd.AddCommand(newChatSendCmd())
	cmd.AddCommand(newChatListCmd())
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
	)

	cmd := &cobra.Command{
		Use:   "send <query-id> <message...>",
		Short: "Post a message on a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatSend(cmd, configPath, &actor, args[0], strings.Join(args[1:], " "))
		},
	}

	addConfigFlag(cmd, &configPath)
	actor.bind(cmd, string(role.Originator))
	return cmd
}

func runChatSend(cmd *cobra.Command, configPath string, af *actorFlags, queryID, text string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	actor, err := af.resolve(gormDB)
	if err != nil {
		return err
	}

	q, err := query.Get(gormDB, queryID)
	if err != nil {
		return err
	}
	if err := branch.CheckScope(gormDB, actor, q.BranchCode); err != nil {
		return err
	}
	if !visibility.CanMessageQuery(actor, q) {
		return fmt.Errorf("%s may not post on query %s", actor.Display(), q.ID)
	}

	msg, err := messaging.Append(gormDB, messaging.AppendOpts{
		QueryID:    q.ID,
		Message:    text,
		Sender:     actor.Display(),
		SenderRole: string(actor.Role),
		Team:       actor.EffectiveTeam(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Message %s posted on query %s\n", msg.ID, q.ID)
	return nil
}

func newChatListCmd() *cobra.Command {
	var (
		configPath string
		system     bool
	)

	cmd := &cobra.Command{
		Use:   "list <query-id>",
		Short: "Show a query's conversation in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatList(cmd, configPath, args[0], system)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&system, "system", true, "include system audit entries")
	return cmd
}

func runChatList(cmd *cobra.Command, configPath, queryID string, system bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	msgs, err := messaging.List(gormDB, queryID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	shown := 0
	for _, m := range msgs {
		if m.IsSystemMessage && !system {
			continue
		}
		shown++
		who := m.Sender
		if m.Team != "" {
			who += " [" + m.Team + "]"
		}
		if m.IsSystemMessage {
			fmt.Fprintf(out, "%s  * %s (%s)\n", formatTime(m.CreatedAt), m.Message, m.ActionType)
			continue
		}
		fmt.Fprintf(out, "%s  %s: %s\n", formatTime(m.CreatedAt), who, m.Message)
	}
	if shown == 0 {
		fmt.Fprintln(out, "No messages.")
	}
	return nil
}
