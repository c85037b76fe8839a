package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"screen-reader-llm/src/config"
	"screen-reader-llm/src/control"
	"screen-reader-llm/src/gui"
	"screen-reader-llm/src/logutil"
	"screen-reader-llm/src/mailbox"
	"screen-reader-llm/src/notification"
	"screen-reader-llm/src/runtimeinit"
)

type mainOptions struct {
	headless   bool
	noContext  bool
	apiKeyPath string
	model      string
	hotkey     string
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		APIKeyPathOverride: o.apiKeyPath,
		ModelOverride:      o.model,
		HotkeyOverride:     o.hotkey,
	}
}

func main() {
	// Ensure DPI awareness before creating any windows or querying metrics
	enableDPIAwareness()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"screen-reader"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-reader",
		Short:         "Press a hotkey, have the screen described and read aloud",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runResident(cmd.Context(), *opts)
			if err != nil && !opts.headless {
				notification.ShowBlockingError("Screen Reader LLM", err.Error())
			}
			return err
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run without a window, logging to stdout")
	cmd.Flags().BoolVar(&opts.noContext, "no-context", false, "Do not send prior replies as context")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides MODEL)")
	cmd.Flags().StringVar(&opts.hotkey, "hotkey", "", "Hotkey combo, e.g. ctrl+alt+s (overrides HOTKEY)")

	cmd.AddCommand(
		newTriggerCmd(opts),
		newClearCmd(opts),
		newStatusCmd(opts),
		newCheckCmd(opts),
	)
	return cmd
}

func runResident(parent context.Context, opts mainOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions:   opts.loadOptions(),
		SetupLogging:  logutil.Setup,
		RequireAPIKey: opts.headless,
	})
	if err != nil {
		return err
	}
	if opts.noContext {
		cfg.IncludeContext = false
	}

	// Single-instance pre-flight: a resident already answering on the control
	// port owns the hotkey.
	if control.Running(ctx, cfg.ControlPort) {
		return fmt.Errorf("already running on port %d", cfg.ControlPort)
	}

	comps, err := runtimeinit.Build(ctx, cfg, runtimeinit.Collaborators{})
	if err != nil {
		return err
	}
	defer comps.Close()

	log.Printf("Screen reader initialized")
	log.Printf("Using model: %s", cfg.Model)
	log.Printf("Hotkey: %s", cfg.Hotkey)
	log.Printf("Request deadline: %ds", cfg.RequestDeadlineSec)

	srv := control.NewServer(cfg.ControlPort, comps.Controller)
	if opts.headless {
		return runHeadless(ctx, cfg, comps, srv)
	}

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Printf("control server stopped: %v", err)
		}
	}()
	return gui.Run(ctx, gui.Options{
		Controller:     comps.Controller,
		Mailbox:        comps.Mailbox,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		Hotkey:         cfg.Hotkey,
		IncludeContext: cfg.IncludeContext,
		AutoStart:      true,
	})
}

func runHeadless(ctx context.Context, cfg *config.Config, comps *runtimeinit.Components, srv *control.Server) error {
	if err := comps.Controller.StartListening(cfg.APIKey, cfg.Model, cfg.Hotkey); err != nil {
		return err
	}
	fmt.Printf("Listening for %s (Ctrl+C to quit)\n", comps.Controller.Combo())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		comps.Mailbox.Pump(gctx, mailbox.DefaultTick, consoleRenderer(os.Stdout))
		return nil
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// normalizeLegacyArgs maps Go-style single-dash long flags to cobra's
// double-dash form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	longFlags := []string{"headless", "no-context", "api-key-path", "model", "hotkey", "json"}

	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range longFlags {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}
