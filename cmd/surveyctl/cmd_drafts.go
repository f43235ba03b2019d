package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newDraftsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List saved drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, done, err := a.drafts(ctx)
			if err != nil {
				return err
			}
			defer done()

			list := store.ListAll(ctx)
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved drafts.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SURVEY\tANSWERS\tLAST SAVED")
			for _, d := range list {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.SurveyID, d.ResponsesCount, d.LastSaved.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear <surveyId>",
		Short: "Discard the saved draft of a survey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, done, err := a.drafts(ctx)
			if err != nil {
				return err
			}
			defer done()
			if !store.HasSavedData(ctx, args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "No draft for %s.\n", args[0])
				return nil
			}
			if !store.Clear(ctx, args[0]) {
				return fmt.Errorf("could not clear draft for %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Draft for %s cleared.\n", args[0])
			return nil
		},
	})
	return cmd
}
