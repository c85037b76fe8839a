package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"screen-reader-llm/src/config"
	"screen-reader-llm/src/control"
	"screen-reader-llm/src/logutil"
	"screen-reader-llm/src/runtimeinit"
)

const commandTimeout = 5 * time.Second

func residentClient(opts *mainOptions) (*control.Client, error) {
	cfg, err := config.LoadWithOptions(opts.loadOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return control.NewClient(cfg.ControlPort), nil
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, commandTimeout)
}

func newTriggerCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running instance to capture and describe the screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := residentClient(opts)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := client.Trigger(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Capture started")
			return nil
		},
	}
}

func newClearCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the running instance's conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := residentClient(opts)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := client.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	}
}

func newStatusCmd(opts *mainOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running instance's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := residentClient(opts)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			st, err := client.Status(ctx)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")
	return cmd
}

func printStatus(w io.Writer, st control.Status, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintf(w, "State:   %s\n", st.State)
	if st.Combo != "" {
		fmt.Fprintf(w, "Hotkey:  %s\n", st.Combo)
	}
	if st.Model != "" {
		fmt.Fprintf(w, "Model:   %s\n", st.Model)
	}
	fmt.Fprintf(w, "History: %d turns\n", st.History)
	return nil
}

func newCheckCmd(opts *mainOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and that the model endpoint accepts the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logutil.SetupVerbose(io.Discard)
			cfg, err := runtimeinit.Bootstrap(cmd.Context(), runtimeinit.Options{
				LoadOptions:   opts.loadOptions(),
				RequireAPIKey: true,
				CheckBackend:  true,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %s at %s accepted the API key\n", cfg.Model, cfg.BaseURL)
			return nil
		},
	}
}
