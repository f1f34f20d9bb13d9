package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scribeflow/internal/bootstrap"
	"scribeflow/internal/jobs"
)

const pollInterval = 500 * time.Millisecond

// jobClient is the part of the pipeline the command drives.
type jobClient interface {
	Submit(path, engineHint string) (string, error)
	Status(id string) (jobs.Snapshot, error)
	Cancel(id string) error
}

func newTranscribeCommand(opts *rootOptions) *cobra.Command {
	var (
		engine string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <input-file>",
		Short: "Transcribe one file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			ctx := cmd.Context()
			svc, err := bootstrap.BuildService(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = svc.Shutdown(shutdownCtx)
			}()

			id, err := svc.Submit(path, engine)
			if err != nil {
				return err
			}

			progressOut := cmd.ErrOrStderr()
			if opts.quiet {
				progressOut = io.Discard
			}
			snap, err := waitForJob(ctx, svc, id, pollInterval, progressOut)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), snap, asJSON)
		},
	}
	cmd.Flags().StringVarP(&engine, "engine", "e", "", "pin one engine: local, google, openai, fpt")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full job snapshot as JSON")
	return cmd
}

// waitForJob polls until the job finishes, printing a line whenever the
// stage or overall progress changes. Cancelling ctx cancels the job.
func waitForJob(ctx context.Context, c jobClient, id string, interval time.Duration, out io.Writer) (jobs.Snapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastLine := ""
	done := ctx.Done()
	for {
		snap, err := c.Status(id)
		if err != nil {
			return jobs.Snapshot{}, err
		}
		if line := progressLine(snap); line != lastLine {
			fmt.Fprintln(out, line)
			lastLine = line
		}
		if snap.Status.Terminal() {
			return snap, nil
		}

		select {
		case <-done:
			done = nil
			if err := c.Cancel(id); err != nil {
				return snap, err
			}
		case <-ticker.C:
		}
	}
}

func progressLine(s jobs.Snapshot) string {
	line := fmt.Sprintf("[%3d%%] %-9s %s (%d%%)", s.OverallProgress, s.Status, s.Stage, s.StageProgress)
	if s.EstimatedRemainingSeconds != nil && !s.Status.Terminal() {
		line += fmt.Sprintf(" ~%.0fs left", *s.EstimatedRemainingSeconds)
	}
	return line
}

func printResult(w io.Writer, snap jobs.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
	}

	if snap.Status == jobs.StatusFailed {
		if snap.Error == nil {
			return errors.New("transcription failed")
		}
		return fmt.Errorf("transcription failed (%s): %s", snap.Error.Kind, snap.Error.Message)
	}
	if asJSON || snap.Result == nil {
		return nil
	}

	res := snap.Result
	if res.IsMock {
		fmt.Fprintln(w, "# WARNING: no engine succeeded, this is a synthetic transcript")
	}
	fmt.Fprintf(w, "# engine=%s language=%s duration=%.2fs\n", res.EngineUsed, res.Language, res.DurationSeconds)
	for _, seg := range res.Segments {
		fmt.Fprintf(w, "[%s - %s] %s: %s\n", clock(seg.Start), clock(seg.End), seg.Speaker, seg.Text)
	}
	if a := res.Analysis; a != nil {
		fmt.Fprintf(w, "\n# %s (%s)\n", a.Title, a.Context)
		writeList(w, "Summary", a.Summary)
		writeList(w, "Key points", a.KeyPoints)
		writeList(w, "Action items", a.ActionItems)
	}
	return nil
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", strings.TrimSpace(item))
	}
}

func clock(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(10 * time.Millisecond)
	m := int(d / time.Minute)
	s := (d % time.Minute).Seconds()
	return fmt.Sprintf("%02d:%05.2f", m, s)
}
