package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ollama-dash/internal/config"
	"ollama-dash/internal/format"
	"ollama-dash/internal/ollama"
	"ollama-dash/internal/util"
)

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the panel version and the daemon version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render("ollama-dash"), a.version)

			client, err := a.newClient()
			if err != nil {
				return err
			}
			v, err := client.Version(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "daemon  %s  %s\n", client.BaseURL(), errorStyle.Render("unreachable: "+ollama.ErrorMessage(err)))
				return nil
			}
			fmt.Fprintf(out, "daemon  %s  version %s\n", client.BaseURL(), v.Version)
			return nil
		},
	}
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List local models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models: %s", ollama.ErrorMessage(err))
			}
			return printModels(cmd.OutOrStdout(), models)
		},
	}
}

func printModels(out io.Writer, models []ollama.ModelSummary) error {
	if len(models) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No models found on server"))
		return nil
	}
	rows := make([][]string, 0, len(models))
	var total int64
	for _, m := range models {
		family := m.Details.Family
		if m.IsEmbedding() {
			family += " (embedding)"
		}
		rows = append(rows, []string{m.Name, format.Bytes(m.Size), family, format.Ago(m.ModifiedAt)})
		total += m.Size
	}
	fmt.Fprintln(out, renderTable([]string{"NAME", "SIZE", "FAMILY", "MODIFIED"}, rows))
	fmt.Fprintf(out, "%d models, %s total\n", len(models), format.Human(total))
	return nil
}

func (a *app) psCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List models resident in memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			running, err := client.ListRunning(cmd.Context())
			if err != nil {
				return fmt.Errorf("list running models: %s", ollama.ErrorMessage(err))
			}
			printRunning(cmd.OutOrStdout(), running, time.Now())
			return nil
		},
	}
}

func printRunning(out io.Writer, running []ollama.RunningModel, now time.Time) {
	if len(running) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No models currently loaded"))
		return
	}
	rows := make([][]string, 0, len(running))
	for _, m := range running {
		text, class := format.Countdown(m.ExpiresAt, now)
		family := m.Details.Family
		if family == "" {
			family = "Unknown"
		}
		rows = append(rows, []string{m.Name, format.GiB(m.SizeVRAM), family, countdownStyle(class).Render(text)})
	}
	fmt.Fprintln(out, renderTable([]string{"NAME", "VRAM", "FAMILY", "EXPIRES IN"}, rows))
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <model>",
		Short: "Print model metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			details, err := client.Show(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("show %s: %s", args[0], ollama.ErrorMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), util.PrettyJSON(details))
			return nil
		},
	}
}

func (a *app) rmCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm <model>",
		Short: "Delete a local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := args[0]
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", model)
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), model); err != nil {
				return fmt.Errorf("delete %s: %s", model, ollama.ErrorMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(model+" deleted successfully"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func (a *app) loadCommand() *cobra.Command {
	var keepAlive string
	cmd := &cobra.Command{
		Use:   "load <model>",
		Short: "Load a model into memory and keep it resident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := args[0]
			if keepAlive == "" {
				keepAlive = a.cfg.DefaultKeepAlive
			}
			if !config.ValidKeepAlive(keepAlive) {
				return fmt.Errorf("invalid keep-alive %q", keepAlive)
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}
			if err := client.Load(cmd.Context(), model, config.NormalizeKeepAlive(keepAlive)); err != nil {
				return fmt.Errorf("load %s: %s", model, ollama.ErrorMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Model %s loaded with keep-alive %s", model, keepAlive)))
			return nil
		},
	}
	cmd.Flags().StringVar(&keepAlive, "keep-alive", "", "how long the model stays resident (e.g. 5m, 1h, 1d)")
	return cmd
}

func (a *app) unloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unload <model>",
		Short: "Evict a model from memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}
			if err := client.Unload(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("unload %s: %s", args[0], ollama.ErrorMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Model "+args[0]+" unloaded"))
			return nil
		},
	}
}
