package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"studyrag/internal/domain"
)

// withApp opens the wired service for one command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// scopeFlags are shared by commands that read documents.
type scopeFlags struct {
	docs []string
	all  bool
}

func (f *scopeFlags) register(cmd *cobra.Command, what string) {
	cmd.Flags().StringArrayVar(&f.docs, "doc", nil, "document to "+what+" (repeatable)")
	cmd.Flags().BoolVar(&f.all, "all", false, "use all documents")
}

func (f *scopeFlags) scope() domain.Scope {
	if f.all {
		return domain.AllDocuments()
	}
	return domain.Documents(f.docs...)
}
