package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available surveys; * marks a saved draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := a.surveys()
			if err != nil {
				return err
			}
			list, err := cat.List(ctx)
			if err != nil {
				return err
			}
			store, done, err := a.drafts(ctx)
			if err != nil {
				return err
			}
			defer done()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tID\tTITLE\tQUESTIONS\tREQUIRED")
			for _, s := range list {
				mark := ""
				if store.HasSavedData(ctx, s.ID) {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", mark, s.ID, s.Title, s.QuestionsCount, s.RequiredQuestionsCount)
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <surveyId>",
		Short: "Print a survey's questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.surveys()
			if err != nil {
				return err
			}
			def, err := cat.Get(cmd.Context(), args[0])
			if errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("survey %q not found", args[0])
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s\n\n", def.Title, def.Description)
			for i, q := range def.Questions {
				fmt.Fprintf(out, "%2d. %s\n", i+1, describe(q))
			}
			return nil
		},
	}
}

func describe(q survey.Question) string {
	w := survey.Describe(q)
	var b strings.Builder
	b.WriteString(q.Label)
	if q.Required {
		b.WriteString(" *")
	}
	fmt.Fprintf(&b, " [%s/%s]", q.Type, w.Kind)
	if len(w.Options) > 0 {
		fmt.Fprintf(&b, " options: %s", strings.Join(w.Options, " | "))
	}
	if w.MaxSelections > 0 {
		fmt.Fprintf(&b, " (up to %d)", w.MaxSelections)
	}
	if w.MaxLength > 0 {
		fmt.Fprintf(&b, " (max %d chars)", w.MaxLength)
	}
	return b.String()
}
