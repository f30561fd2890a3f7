package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/pipeline"
)

// NewRunCommand creates the run command
func (a *App) NewRunCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingest now",
		Long: `Run downloads the current archive, reconciles it and loads the result.
The process exits non-zero when the run fails. A run skipped because
another process holds the lock is not a failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, cleanup, err := a.newPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			return a.runOnce(cmd.Context(), p, cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run summary as JSON")

	return cmd
}

// runner is the part of the pipeline the commands need
type runner interface {
	Run(ctx context.Context) (*pipeline.RunSummary, error)
}

func (a *App) runOnce(ctx context.Context, p runner, w io.Writer, asJSON bool) error {
	summary, err := p.Run(ctx)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		a.logger.Warn("Run skipped, another ingest holds the lock")
		return nil
	}

	if summary != nil {
		if perr := printSummary(w, summary, asJSON); perr != nil {
			a.logger.Warn("Failed to print run summary", zap.Error(perr))
		}
	}
	return err
}

func printSummary(w io.Writer, summary *pipeline.RunSummary, asJSON bool) error {
	if !asJSON {
		_, err := io.WriteString(w, summary.Report())
		return err
	}

	data, err := summary.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
