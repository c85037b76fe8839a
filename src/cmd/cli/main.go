package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-reader-llm/src/config"
	"screen-reader-llm/src/logutil"
	"screen-reader-llm/src/orchestrator"
	"screen-reader-llm/src/runtimeinit"
	"screen-reader-llm/src/screenshot"
	"screen-reader-llm/src/speech"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	filePath   string
	prompt     string
	jsonOutput bool
	verbose    bool
	speak      bool
	apiKeyPath string
	model      string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args), os.Stdin, os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		args = []string{"screen-reader-cli"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-reader-cli",
		Short:         "Describe a PNG screenshot with the configured model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd, *opts)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.prompt, "prompt", orchestrator.AnalysisPrompt, "Instruction sent with the image")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "Read the reply aloud")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides MODEL)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(cmd *cobra.Command, opts cliOptions) error {
	stderr := cmd.ErrOrStderr()
	// Configure logging BEFORE any other operations.
	if opts.verbose {
		logutil.SetupVerbose(stderr)
		fmt.Fprintf(stderr, "[verbose] Starting screen-reader-cli\n")
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := runtimeinit.Bootstrap(cmd.Context(), runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			APIKeyPathOverride: opts.apiKeyPath,
			ModelOverride:      opts.model,
		},
		RequireAPIKey: true,
	})
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Config loaded: Model=%s\n", cfg.Model)
		fmt.Fprintf(stderr, "[verbose] Effective API key path: %s\n", cfg.APIKeyPath)
	}

	imageData, err := readImage(opts.filePath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Read %d bytes, PNG validation passed\n", len(imageData))
	}

	client, err := runtimeinit.NewLLMClient(cfg, cfg.APIKey, cfg.Model)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.RequestDeadlineSec)*time.Second)
	defer cancel()

	startTime := time.Now()
	reply, err := client.Query(ctx, opts.prompt, imageData, nil)
	elapsed := time.Since(startTime)
	if err != nil {
		if opts.verbose {
			fmt.Fprintf(stderr, "[verbose] Query failed after %v: %v\n", elapsed, err)
		}
		return fmt.Errorf("query failed: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Reply received in %v (%d characters)\n", elapsed, len(reply))
	}

	if err := outputResult(cmd.OutOrStdout(), reply, opts.filePath, cfg.Model, elapsed, opts.jsonOutput); err != nil {
		return err
	}

	if opts.speak {
		if err := speech.Say(cmd.Context(), cfg.SpeechCommand, reply); err != nil {
			return fmt.Errorf("speech failed: %w", err)
		}
	}
	return nil
}

func readImage(filePath string, stdin io.Reader) ([]byte, error) {
	var imageData []byte
	var err error

	if filePath == "-" {
		imageData, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		imageData, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(imageData) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(imageData) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if !screenshot.IsPNG(imageData) {
		return nil, fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return imageData, nil
}

type QueryResult struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Model     string  `json:"model"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func outputResult(w io.Writer, text, sourcePath, model string, elapsed time.Duration, jsonOutput bool) error {
	if !jsonOutput {
		_, err := fmt.Fprintln(w, text)
		return err
	}

	result := QueryResult{
		Text:      text,
		Source:    sourcePath,
		Model:     model,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		CharCount: len(text),
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	longFlags := []string{"file", "prompt", "json", "verbose", "speak", "api-key-path", "model"}

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
