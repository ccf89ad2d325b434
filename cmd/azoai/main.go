package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	azureoai "github.com/ucalyptus/azure-oai-agent-sdk-go"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/config"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/session"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/transport"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds all CLI flags.
type options struct {
	// Continue resumes the most recent conversation in the current directory.
	Continue bool
	// Endpoint overrides the configured APIM base URL.
	Endpoint string
	// MaxTokens overrides the configured output limit.
	MaxTokens int
	// Model overrides the configured deployment or model name.
	Model string
	// NoSave disables transcript persistence for this run.
	NoSave bool
	// OutputFormat controls print mode output encoding.
	OutputFormat string
	// Print enables non-interactive mode.
	Print bool
	// Resume resumes a specific conversation id or the interactive picker.
	Resume string
	// Scope overrides the configured OAuth scope.
	Scope string
	// SessionDir overrides the transcript base directory.
	SessionDir string
	// SubscriptionKey overrides the configured APIM subscription key.
	SubscriptionKey string
	// Temperature sets the sampling temperature when the flag is passed.
	Temperature float64
	// Verbose toggles debug logging.
	Verbose bool
	// Version prints the CLI version.
	Version bool
}

// main wires Cobra and executes the CLI.
func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "azoai [prompt]",
		Short: "Streaming chat for Azure OpenAI behind API Management",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Println(version)
				return nil
			}
			return runRoot(cmd, opts, args)
		},
	}
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	applyFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(doctorCommand())
	rootCmd.AddCommand(sessionsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags defines the CLI flag surface.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent conversation in this directory")
	flags.StringVar(&opts.Endpoint, "endpoint", "", "APIM base URL (overrides config)")
	flags.IntVar(&opts.MaxTokens, "max-tokens", 0, "Maximum completion tokens")
	flags.StringVar(&opts.Model, "model", "", "Deployment or model name")
	flags.BoolVar(&opts.NoSave, "no-save", false, "Do not persist this conversation")
	flags.StringVar(&opts.OutputFormat, "output-format", "text", "Output format (text|json|stream-json)")
	flags.BoolVarP(&opts.Print, "print", "p", false, "Print the response and exit")
	flags.StringVarP(&opts.Resume, "resume", "r", "", "Resume a conversation by id")
	flags.Lookup("resume").NoOptDefVal = "picker"
	flags.StringVar(&opts.Scope, "scope", "", "OAuth scope (overrides config)")
	flags.StringVar(&opts.SessionDir, "session-dir", "", "Transcript directory (default ~/.azoai)")
	flags.StringVar(&opts.SubscriptionKey, "subscription-key", "", "APIM subscription key (overrides config)")
	flags.Float64Var(&opts.Temperature, "temperature", 0, "Sampling temperature")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Verbose output")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
}

// runRoot orchestrates config loading, conversation handling, and mode
// dispatch.
func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	level := logging.LevelWarn
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	printing := opts.Print || len(args) > 0 || !term.IsTerminal(int(os.Stdin.Fd()))
	if err := validateFormatOptions(opts, printing); err != nil {
		return err
	}

	queryOpts, err := config.Load("")
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd.Flags(), opts, &queryOpts)
	if err := config.RequireComplete(queryOpts, configPathLabel()); err != nil {
		return err
	}

	store, err := openStore(opts)
	if err != nil {
		return err
	}

	conversationID, replay, err := resolveConversation(store, opts)
	if err != nil {
		return err
	}

	b := newBridge(queryOpts)

	if printing {
		return runPrintMode(opts, b, store, conversationID, args)
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return runInteractiveTUI(opts, b, store, conversationID, replay)
	}
	return runInteractive(opts, b, store, conversationID, replay)
}

// validateFormatOptions rejects flag combinations before any network work.
func validateFormatOptions(opts *options, printing bool) error {
	switch opts.OutputFormat {
	case "text", "json", "stream-json":
	default:
		return fmt.Errorf("invalid output format: %s", opts.OutputFormat)
	}
	if opts.OutputFormat != "text" && !printing {
		return fmt.Errorf("--output-format %s only works with --print", opts.OutputFormat)
	}
	if opts.Continue && opts.Resume != "" {
		return errors.New("--continue and --resume are mutually exclusive")
	}
	return nil
}

// applyFlagOverrides layers explicit flags over the loaded configuration.
func applyFlagOverrides(flags *pflag.FlagSet, opts *options, query *azureoai.Options) {
	if opts.Model != "" {
		query.Model = opts.Model
	}
	if opts.Endpoint != "" {
		query.Endpoint = opts.Endpoint
	}
	if opts.Scope != "" {
		query.Scope = opts.Scope
	}
	if opts.SubscriptionKey != "" {
		query.SubscriptionKey = opts.SubscriptionKey
	}
	if opts.MaxTokens > 0 {
		query.MaxTokens = opts.MaxTokens
	}
	// Zero is a valid temperature, so only an explicit flag overrides.
	if flags != nil && flags.Changed("temperature") {
		temperature := opts.Temperature
		query.Temperature = &temperature
	}
}

// openStore resolves the transcript store, honoring --session-dir.
func openStore(opts *options) (*session.Store, error) {
	if opts.SessionDir != "" {
		return &session.Store{BaseDir: opts.SessionDir}, nil
	}
	return session.NewStore()
}

// resolveConversation determines the conversation id and loads any stored
// transcript to replay.
func resolveConversation(store *session.Store, opts *options) (string, []messages.Message, error) {
	if opts.Resume != "" {
		id := opts.Resume
		if id == "picker" {
			picked, err := pickConversation(store)
			if err != nil {
				return "", nil, err
			}
			id = picked
		}
		replay, err := store.Load(id)
		if err != nil {
			return "", nil, fmt.Errorf("resume conversation %s: %w", id, err)
		}
		return id, replay, nil
	}

	if opts.Continue {
		lastID, err := store.LoadLast(mustCwd())
		if err == nil && lastID != "" {
			if replay, loadErr := store.Load(lastID); loadErr == nil {
				return lastID, replay, nil
			}
		}
	}

	return messages.NewUUID(), nil, nil
}

// pickConversation shows a small chooser for recent conversations.
func pickConversation(store *session.Store) (string, error) {
	ids, err := store.List(10)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", errors.New("no conversations available")
	}
	fmt.Fprintln(os.Stdout, "Select a conversation:")
	for i, id := range ids {
		fmt.Fprintf(os.Stdout, "%d) %s\n", i+1, id)
	}
	fmt.Fprint(os.Stdout, "Enter number: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	var index int
	if _, err := fmt.Sscanf(line, "%d", &index); err != nil {
		return "", errors.New("invalid selection")
	}
	if index < 1 || index > len(ids) {
		return "", errors.New("selection out of range")
	}
	return ids[index-1], nil
}

// runPrintMode handles one-shot requests and prints output to stdout.
func runPrintMode(opts *options, b *bridge, store *session.Store, conversationID string, args []string) error {
	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	ctx, cancel := withInterrupt(context.Background(), nil)
	defer cancel()

	switch opts.OutputFormat {
	case "json":
		return printJSON(ctx, opts, b, store, conversationID, prompt)
	case "stream-json":
		return printStreamJSON(ctx, opts, b, store, conversationID, prompt)
	default:
		return printText(ctx, opts, b, store, conversationID, prompt)
	}
}

// readPrompt joins prompt arguments, falling back to stdin.
func readPrompt(args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(input))
	}
	if prompt == "" {
		return "", errors.New("prompt is required")
	}
	return prompt, nil
}

// printText streams deltas to stdout as they arrive.
func printText(ctx context.Context, opts *options, b *bridge, store *session.Store, conversationID string, prompt string) error {
	printer := newStreamPrinter(os.Stdout, os.Stderr, opts.Verbose)
	err := b.runTurn(ctx, prompt, func(message messages.Message) error {
		if printErr := printer.Print(message); printErr != nil {
			return printErr
		}
		persistMessage(store, opts, conversationID, message)
		return nil
	})
	printer.EnsureNewline()
	if err != nil {
		return err
	}
	saveLast(store, opts, conversationID)
	return nil
}

// printJSON collects the turn into a single JSON document.
func printJSON(ctx context.Context, opts *options, b *bridge, store *session.Store, conversationID string, prompt string) error {
	builder := newReplyBuilder()
	err := b.runTurn(ctx, prompt, func(message messages.Message) error {
		builder.Add(message)
		persistMessage(store, opts, conversationID, message)
		return nil
	})
	if err != nil {
		return err
	}
	saveLast(store, opts, conversationID)

	model := builder.Model()
	if model == "" {
		model = b.displayModel()
	}
	return writeJSON(map[string]any{
		"result":     builder.Text(),
		"session_id": conversationID,
		"model":      model,
	})
}

// printStreamJSON writes every normalized message as one JSON line.
func printStreamJSON(ctx context.Context, opts *options, b *bridge, store *session.Store, conversationID string, prompt string) error {
	writer := messages.NewWriter(os.Stdout)
	err := b.runTurn(ctx, prompt, func(message messages.Message) error {
		if writeErr := writer.Write(message); writeErr != nil {
			return writeErr
		}
		persistMessage(store, opts, conversationID, message)
		return nil
	})
	if err != nil {
		return err
	}
	saveLast(store, opts, conversationID)
	return nil
}

// persistMessage appends one streamed message to the transcript unless
// saving is disabled. Persistence failures never interrupt a live stream.
func persistMessage(store *session.Store, opts *options, conversationID string, message messages.Message) {
	if opts.NoSave {
		return
	}
	if err := store.Append(conversationID, message); err != nil {
		logging.Warn("cli", "persist message: %v", err)
	}
}

// saveLast records the conversation as this directory's most recent.
func saveLast(store *session.Store, opts *options, conversationID string) {
	if opts.NoSave {
		return
	}
	_ = store.SaveLast(mustCwd(), conversationID)
}

// writeJSON writes a single JSON line to stdout.
func writeJSON(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// doctorCommand reports configuration state without printing secret values.
func doctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check azoai configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(os.Stdout)
		},
	}
}

// runDoctor prints the diagnostics report. Field presence is reported, never
// field values; the client secret stays out of every output path.
func runDoctor(out io.Writer) error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config path: %s\n", path)

	if info, statErr := os.Stat(path); statErr == nil {
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			fmt.Fprintf(out, "warning: config permissions too open: %s\n", mode)
		}
	} else {
		fmt.Fprintln(out, "config file: not found (environment variables may still apply)")
	}

	opts, err := config.Load(path)
	if err != nil {
		return err
	}

	missing := map[string]bool{}
	for _, field := range config.MissingRequired(opts) {
		missing[field] = true
	}
	for _, field := range []string{"tenant_id", "client_id", "client_secret", "endpoint"} {
		status := "set"
		if missing[field] {
			status = "missing"
		}
		fmt.Fprintf(out, "%s: %s\n", field, status)
	}
	subscriptionStatus := "set"
	if opts.SubscriptionKey == "" {
		subscriptionStatus = "unset"
	}
	fmt.Fprintf(out, "subscription_key: %s\n", subscriptionStatus)

	if opts.Endpoint != "" {
		fmt.Fprintf(out, "endpoint url: %s\n", opts.Endpoint)
	}
	model := opts.Model
	if model == "" {
		model = transport.DefaultModel
	}
	fmt.Fprintf(out, "model: %s\n", model)

	if store, storeErr := session.NewStore(); storeErr == nil {
		fmt.Fprintf(out, "transcripts: %s\n", filepath.Join(store.BaseDir, "transcripts"))
	}

	if len(missing) > 0 {
		return fmt.Errorf("configuration incomplete: missing %s", strings.Join(config.MissingRequired(opts), ", "))
	}
	fmt.Fprintln(out, "OK")
	return nil
}

// sessionsCommand lists stored conversations, newest first.
func sessionsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.NewStore()
			if err != nil {
				return err
			}
			ids, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(os.Stdout, "No conversations stored.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(os.Stdout, id)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum conversations to list")
	return cmd
}

// configPathLabel returns the default config path or a fallback placeholder
// for error messages.
func configPathLabel() string {
	path, err := config.Path()
	if err != nil {
		return "~/.azoai/config.json"
	}
	return path
}

// mustCwd returns cwd or "." if unavailable.
func mustCwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
