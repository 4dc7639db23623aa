package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"studyrag/internal/usecase"
)

var (
	studyJSON       bool
	quizNum         int
	quizDifficulty  string
	quizInteractive bool
	quizScope       scopeFlags
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <filename>",
	Short: "Summarize a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return withApp(cmd, func(a *app) error {
			res, err := a.svc.Summarize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if studyJSON {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Summary of %s (%d -> %d characters, %s):\n\n%s\n",
				res.Filename, res.OriginalLength, res.SummarizedLength, res.CompressionRatio, res.Summary)
			return nil
		})
	},
}

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Generate a quiz from your documents",
	Long: `Ask the model for a mixed multiple-choice and short-answer quiz built from the
selected documents. With --interactive, answer each question and get a score.

Examples:
  studyrag quiz --doc biology.txt --num 5 --difficulty easy
  studyrag quiz --all --num 20 --interactive`,
	Args: cobra.NoArgs,
	RunE: runQuiz,
}

func init() {
	rootCmd.AddCommand(summarizeCmd, quizCmd)
	summarizeCmd.Flags().BoolVar(&studyJSON, "json", false, "output as JSON")

	quizCmd.Flags().IntVarP(&quizNum, "num", "n", 10, fmt.Sprintf("number of questions (%d-%d)", usecase.MinQuizQuestions, usecase.MaxQuizQuestions))
	quizCmd.Flags().StringVar(&quizDifficulty, "difficulty", "medium", "easy, medium or hard")
	quizCmd.Flags().BoolVarP(&quizInteractive, "interactive", "i", false, "answer the questions and get a score")
	quizCmd.Flags().BoolVar(&studyJSON, "json", false, "output as JSON")
	quizScope.register(quizCmd, "quiz on")
}

func runQuiz(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, func(a *app) error {
		quiz, err := a.svc.GenerateQuiz(cmd.Context(), usecase.QuizRequest{
			NumQuestions: quizNum,
			Difficulty:   quizDifficulty,
			Scope:        quizScope.scope(),
		})
		if err != nil {
			return err
		}

		switch {
		case studyJSON:
			return printJSON(out, quiz)
		case quizInteractive:
			return takeQuiz(cmd.InOrStdin(), out, quiz)
		}
		printQuiz(out, quiz)
		return nil
	})
}

func printQuiz(out io.Writer, quiz *usecase.Quiz) {
	fmt.Fprintf(out, "%s quiz on %s (%d questions)\n\n",
		strings.ToUpper(quiz.Difficulty[:1])+quiz.Difficulty[1:], strings.Join(quiz.DocumentsUsed, ", "), len(quiz.Questions))
	for i, q := range quiz.Questions {
		printQuestion(out, i, q)
		if q.Type == usecase.QuestionMultipleChoice {
			fmt.Fprintf(out, "   Answer: %s\n", q.Correct)
		} else {
			fmt.Fprintf(out, "   Answer: %s\n", q.CorrectAnswer)
		}
		if q.Explanation != "" {
			fmt.Fprintf(out, "   Why: %s\n", q.Explanation)
		}
		fmt.Fprintln(out)
	}
}

func printQuestion(out io.Writer, i int, q usecase.Question) {
	fmt.Fprintf(out, "%d. %s\n", i+1, q.Question)
	if q.Type != usecase.QuestionMultipleChoice {
		return
	}
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "   %s) %s\n", k, q.Options[k])
	}
}

func takeQuiz(in io.Reader, out io.Writer, quiz *usecase.Quiz) error {
	scanner := bufio.NewScanner(in)
	correct := 0
	for i, q := range quiz.Questions {
		printQuestion(out, i, q)
		fmt.Fprint(out, "Your answer: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		if q.Grade(scanner.Text()) {
			correct++
			fmt.Fprintln(out, "Correct!")
		} else if q.Type == usecase.QuestionMultipleChoice {
			fmt.Fprintf(out, "Incorrect. The answer is %s) %s\n", q.Correct, q.Options[q.Correct])
		} else {
			fmt.Fprintf(out, "Incorrect. The answer is: %s\n", q.CorrectAnswer)
		}
		if q.Explanation != "" {
			fmt.Fprintf(out, "%s\n", q.Explanation)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Score: %d/%d\n", correct, len(quiz.Questions))
	return scanner.Err()
}
