package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tephra-labs/tephra/internal/cli/output"
	"github.com/tephra-labs/tephra/internal/history"
	"github.com/tephra-labs/tephra/internal/workspace"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [directory]",
		Short: "Show recent evaluation runs",
		Long: `Show the workspace's evaluation history: one row per run with its target
resource, outcome, and timing. Failed runs keep the failing resource's
error message.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runHistory(cc, cc.targetDir(args), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to show")

	return cmd
}

// runInfo is one row of the history command's JSON output.
type runInfo struct {
	ID        string `json:"id"`
	Target    string `json:"target"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	Duration  string `json:"duration,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runHistory(cc *CommandContext, dir string, limit int) error {
	base, err := workspace.Resolve(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(base, workspace.DataDirName, workspace.HistoryFileName)
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return &workspace.StateError{Kind: workspace.KindNotFound, Base: base}
	}

	store := history.NewStore()
	if err := store.Open(path); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(); err != nil {
		return err
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	infos := make([]runInfo, 0, len(runs))
	for _, run := range runs {
		info := runInfo{
			ID:        run.ID,
			Target:    run.Target,
			Status:    run.Status,
			StartedAt: run.StartedAt.Format(time.RFC3339),
			Error:     run.Error,
		}
		if run.CompletedAt != nil {
			info.Duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		infos = append(infos, info)
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	markdown := r.EffectiveMode() == output.ModeMarkdown
	r.Header(1, fmt.Sprintf("Evaluation history (%d runs)", len(infos)))
	if len(infos) == 0 {
		r.Muted("no runs recorded yet")
		return nil
	}
	if markdown {
		r.Println("")
	}

	cols := []string{"run", "target", "status", "started", "duration", "error"}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		id := info.ID
		if len(id) > 8 {
			id = id[:8]
		}
		errText := info.Error
		if errText == "" {
			errText = "-"
		}
		dur := info.Duration
		if dur == "" {
			dur = "-"
		}
		rows = append(rows, []string{id, info.Target, info.Status, info.StartedAt, dur, errText})
	}
	renderRows(r.Writer(), markdown, cols, rows)
	return nil
}
