package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/engine"
	"github.com/mind-engage/mindengage-surveys/internal/storage"
	"github.com/mind-engage/mindengage-surveys/internal/terminal"
)

func newTakeCmd(a *app) *cobra.Command {
	var (
		copyTo    string
		exportDir string
	)
	cmd := &cobra.Command{
		Use:   "take <surveyId>",
		Short: "Answer a survey interactively; progress is saved as you go",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			cat, err := a.surveys()
			if err != nil {
				return err
			}
			store, done, err := a.drafts(ctx)
			if err != nil {
				return err
			}
			defer done()

			submitter, copier := a.sinks(cat)
			e := engine.New(cat, store, submitter,
				engine.WithCopier(copier),
				engine.WithLogger(a.log))
			defer e.Close()

			if err := e.SelectSurvey(ctx, args[0]); err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return fmt.Errorf("survey %q not found", args[0])
				}
				return err
			}

			ack, err := terminal.NewRunner(e, terminal.NewSurveyPrompter(out), a.log).Run(ctx)
			switch {
			case errors.Is(err, terminal.ErrQuit), errors.Is(err, terminal.ErrAborted):
				e.Flush()
				fmt.Fprintln(out, "Progress saved. Run take again to continue.")
				return nil
			case err != nil:
				return err
			}

			fmt.Fprintf(out, "Thank you! Submission %s received at %s.\n", ack.ID, ack.Timestamp.Format("2006-01-02 15:04:05"))
			if ack.Receipt != "" {
				fmt.Fprintf(out, "Receipt: %s\n", ack.Receipt)
			}

			if copyTo != "" {
				c, err := e.SendCopy(ctx, copyTo)
				if err != nil {
					fmt.Fprintf(out, "Could not send a copy: %v\n", err)
				} else {
					fmt.Fprintf(out, "A copy was sent to %s (%s).\n", c.Recipient, c.ID)
				}
			}

			if exportDir != "" {
				bs, err := storage.NewFSStore(exportDir)
				if err != nil {
					return err
				}
				doc, err := e.Export()
				if err != nil {
					return err
				}
				key, err := storage.PutExport(bs, args[0], ack.Timestamp, doc)
				if err != nil {
					return err
				}
				u, _ := bs.SignedURL(key)
				a.log.Debug("responses exported", zap.String("key", key))
				fmt.Fprintf(out, "Responses saved to %s\n", u)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&copyTo, "copy-to", "", "Email address that receives a copy of the responses")
	cmd.Flags().StringVar(&exportDir, "export", "", "Directory to write the responses document into")
	return cmd
}
