package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"conversations"},
	Short:   "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withApp(cmd, func(a *app) error {
			sessions, err := a.svc.ListSessions()
			if err != nil {
				return err
			}
			if sessionsJSON {
				return printJSON(out, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tMESSAGES\tCREATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, s.MessageCount, s.CreatedAt.Format(time.DateTime))
			}
			return w.Flush()
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withApp(cmd, func(a *app) error {
			h, err := a.svc.GetSessionHistory(args[0])
			if err != nil {
				return err
			}
			if sessionsJSON {
				return printJSON(out, h)
			}
			if h.MessageCount == 0 {
				fmt.Fprintf(out, "Session %s has no messages.\n", h.SessionID)
				return nil
			}
			for _, m := range h.Messages {
				fmt.Fprintf(out, "[%s] %s:\n%s\n", m.CreatedAt.Format(time.DateTime), m.Role, m.Content)
				if len(m.Sources) > 0 {
					fmt.Fprintf(out, "  (sources: %v)\n", m.Sources)
				}
				fmt.Fprintln(out)
			}
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			if err := a.svc.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
	sessionsCmd.PersistentFlags().BoolVar(&sessionsJSON, "json", false, "output as JSON")
}
