package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ollama-dash/internal/format"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/stream"
)

func (a *app) pullCommand() *cobra.Command {
	var plain, quiet bool
	cmd := &cobra.Command{
		Use:   "pull <model>",
		Short: "Download a model with live progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			if quiet {
				return pullQuiet(cmd.Context(), client, args[0], cmd.OutOrStdout())
			}
			agg := stream.NewPullAggregator(stream.WithSampleInterval(a.cfg.ThroughputSampleInterval))
			if plain {
				return pullPlain(cmd.Context(), client, args[0], agg, cmd.OutOrStdout())
			}
			return pullInteractive(cmd.Context(), client, args[0], agg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print one line per progress record instead of a progress bar")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print nothing until the pull finishes")
	return cmd
}

// pullQuiet waits for the daemon's single final status record.
func pullQuiet(ctx context.Context, client *ollama.Client, model string, out io.Writer) error {
	st, err := client.PullBuffered(ctx, model)
	if err != nil {
		return fmt.Errorf("pull %s: %s", model, ollama.ErrorMessage(err))
	}
	fmt.Fprintln(out, successStyle.Render(model+": "+st.Status))
	return nil
}

// pullPlain prints every snapshot as a line. Suitable for logs and pipes.
func pullPlain(ctx context.Context, client *ollama.Client, model string, agg *stream.PullAggregator, out io.Writer) error {
	src, err := client.Pull(ctx, model)
	if err != nil {
		return fmt.Errorf("pull %s: %s", model, ollama.ErrorMessage(err))
	}
	defer src.Close()

	final := stream.FoldPull(src, agg, func(s stream.Snapshot) {
		if !s.Done {
			fmt.Fprintln(out, progressLine(s))
		}
	})
	return finishPull(out, model, final)
}

func finishPull(out io.Writer, model string, final stream.Snapshot) error {
	if final.Failed() {
		return fmt.Errorf("pull %s: %s", model, final.Error)
	}
	fmt.Fprintln(out, successStyle.Render(pullSummary(final)))
	return nil
}

// progressLine renders one in-flight snapshot.
func progressLine(s stream.Snapshot) string {
	if !s.ProgressKnown {
		return fmt.Sprintf("%s · %s", s.Status, format.Seconds(s.Elapsed))
	}
	artifact := s.Artifact
	if artifact == "" {
		artifact = "-"
	}
	return fmt.Sprintf("%s · %s · %s of %s (%.1f%%) · %s · %s",
		s.Status, artifact, format.MiB(s.Completed), format.MiB(s.Total),
		s.Percent(), s.Speed(), format.Seconds(s.Elapsed))
}

func pullSummary(s stream.Snapshot) string {
	if s.Status == stream.StatusNoProgress {
		return "Pull finished with " + stream.StatusNoProgress
	}
	return fmt.Sprintf("Model pulled successfully. Total Size: %s · Total Time: %s · Average Speed: %s",
		format.MiB(s.Total), format.Seconds(s.Elapsed), s.AverageSpeed())
}

// snapshotMsg carries one aggregated pull record into the program.
type snapshotMsg stream.Snapshot

type pullModel struct {
	model   string
	spinner spinner.Model
	bar     progress.Model
	snap    stream.Snapshot
	aborted bool
}

func newPullModel(model string) pullModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle
	return pullModel{
		model:   model,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		snap:    stream.Snapshot{Status: "Starting pull..."},
	}
}

func (m pullModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m pullModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	case snapshotMsg:
		m.snap = stream.Snapshot(msg)
		if m.snap.Done {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m pullModel) View() string {
	if m.aborted {
		return mutedStyle.Render("Pull of "+m.model+" cancelled") + "\n"
	}
	if m.snap.Done {
		if m.snap.Failed() {
			return errorStyle.Render("Error pulling model: "+m.snap.Error) + "\n"
		}
		return successStyle.Render(pullSummary(m.snap)) + "\n"
	}
	head := m.spinner.View() + " " + titleStyle.Render(m.model) + " " + m.snap.Status
	if !m.snap.ProgressKnown {
		return head + "  " + mutedStyle.Render(format.Seconds(m.snap.Elapsed)) + "\n"
	}
	detail := fmt.Sprintf("%s of %s · %s · %s",
		format.MiB(m.snap.Completed), format.MiB(m.snap.Total), m.snap.Speed(), format.Seconds(m.snap.Elapsed))
	return head + "\n" + m.bar.ViewAs(m.snap.Progress) + "  " + mutedStyle.Render(detail) + "\n"
}

var errPullCancelled = errors.New("pull cancelled")

// pullInteractive drives a progress bar from the stream. Quitting the
// program cancels the daemon request.
func pullInteractive(ctx context.Context, client *ollama.Client, model string, agg *stream.PullAggregator, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, err := client.Pull(ctx, model)
	if err != nil {
		return fmt.Errorf("pull %s: %s", model, ollama.ErrorMessage(err))
	}
	defer src.Close()

	p := tea.NewProgram(newPullModel(model), tea.WithContext(ctx), tea.WithOutput(out))
	go func() {
		stream.FoldPull(src, agg, func(s stream.Snapshot) {
			p.Send(snapshotMsg(s))
		})
	}()

	res, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	m, ok := res.(pullModel)
	if !ok || m.aborted {
		return errPullCancelled
	}
	if m.snap.Failed() {
		return fmt.Errorf("pull %s: %s", model, m.snap.Error)
	}
	return nil
}
