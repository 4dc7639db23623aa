package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studyrag/internal/domain"
	"studyrag/internal/usecase"
)

var (
	chatSession    string
	chatNewSession bool
	chatScope      scopeFlags
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask questions about your documents",
	Long: `Ask a question grounded in the selected documents. Without a message, chat
starts an interactive session that reads one question per line until EOF or "exit".
Without --doc or --all, the model answers from the conversation alone.

Examples:
  studyrag chat --doc biology.txt "What do mitochondria do?"
  studyrag chat --all --session exam-prep
  studyrag chat --new-session --doc a.txt --doc b.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", usecase.DefaultSessionID, "conversation session id")
	chatCmd.Flags().BoolVar(&chatNewSession, "new-session", false, "start a fresh session with a generated id")
	chatScope.register(chatCmd, "ask about")
}

func runChat(cmd *cobra.Command, args []string) error {
	session := chatSession
	if chatNewSession {
		session = uuid.NewString()
	}
	scope := chatScope.scope()
	out := cmd.OutOrStdout()

	return withApp(cmd, func(a *app) error {
		ask := func(message string) error {
			res, err := a.svc.Chat(cmd.Context(), message, scope, session)
			if err != nil {
				return err
			}
			printAnswer(out, res)
			return nil
		}

		if len(args) == 1 {
			return ask(args[0])
		}

		fmt.Fprintf(out, "Session %s (%s). Type exit to quit.\n", session, scope)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "exit", "quit":
				return nil
			}
			if err := ask(line); err != nil {
				// model failures are transient; keep the conversation going
				if errors.Is(err, domain.ErrModelCallFailed) {
					fmt.Fprintf(out, "Error: %v\n", err)
					continue
				}
				return err
			}
		}
	})
}

func printAnswer(out io.Writer, res *usecase.AnswerResult) {
	fmt.Fprintf(out, "\n%s\n", res.Response)
	if len(res.DocumentsUsed) > 0 {
		fmt.Fprintf(out, "\nSources: %s\n", strings.Join(res.DocumentsUsed, ", "))
	}
	fmt.Fprintln(out)
}
