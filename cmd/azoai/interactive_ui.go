package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	azureoai "github.com/ucalyptus/azure-oai-agent-sdk-go"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/session"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/transport"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// streamPrinter renders normalized messages for line-oriented output. It is
// shared by print mode and the plain REPL fallback.
type streamPrinter struct {
	// out is the primary output writer for assistant text.
	out io.Writer
	// errOut is used for warnings or informational messages.
	errOut io.Writer
	// verbose toggles tool input detail in the output.
	verbose bool
	// wroteText tracks whether any text deltas were printed.
	wroteText bool
	// lineOpen tracks whether a streaming line is in progress.
	lineOpen bool
}

// newStreamPrinter constructs a printer for streamed turns.
func newStreamPrinter(out io.Writer, errOut io.Writer, verbose bool) *streamPrinter {
	return &streamPrinter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
	}
}

// Reset clears state before a new streamed turn begins.
func (p *streamPrinter) Reset() {
	p.wroteText = false
	p.lineOpen = false
}

// EnsureNewline terminates a streaming line if one is active.
func (p *streamPrinter) EnsureNewline() {
	if p == nil {
		return
	}
	if !p.lineOpen {
		return
	}
	fmt.Fprintln(p.out)
	p.lineOpen = false
}

// Print renders one normalized message: text blocks stream inline, tool-use
// blocks become short markers, and the terminal result closes the line.
func (p *streamPrinter) Print(message messages.Message) error {
	switch typed := message.(type) {
	case *messages.Assistant:
		for _, block := range typed.Message.Content {
			switch block.Type {
			case messages.BlockText:
				if block.Text == "" {
					continue
				}
				fmt.Fprint(p.out, block.Text)
				p.lineOpen = true
				p.wroteText = true
			case messages.BlockToolUse:
				p.EnsureNewline()
				fmt.Fprintf(p.out, "-> tool %s requested\n", block.Name)
				if p.verbose {
					summary := summarizeToolInput(block.Input, 240)
					if summary != "" {
						fmt.Fprintf(p.out, "   input: %s\n", summary)
					}
				}
			}
		}
	case *messages.Result:
		p.EnsureNewline()
	}
	return nil
}

// slashResult describes how a REPL should respond to a slash command.
type slashResult struct {
	// Quit requests an exit.
	Quit bool
	// Clear requests a fresh conversation.
	Clear bool
	// Message is informational output for unknown commands.
	Message string
}

// parseSlashCommand interprets /quit and /clear. The boolean reports whether
// the line was a slash command at all.
func parseSlashCommand(line string) (slashResult, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return slashResult{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(fields) == 0 {
		return slashResult{}, false
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return slashResult{Quit: true}, true
	case "clear":
		return slashResult{Clear: true}, true
	default:
		return slashResult{Message: fmt.Sprintf("Unknown command: /%s", fields[0])}, true
	}
}

// runInteractive is the line-based REPL used when stdout is not a terminal.
func runInteractive(opts *options, b *bridge, store *session.Store, conversationID string, replay []messages.Message) error {
	printer := newStreamPrinter(os.Stdout, os.Stderr, opts.Verbose)
	replayTranscript(os.Stdout, replay)

	reader := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "\n> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		if result, handled := parseSlashCommand(line); handled {
			if result.Quit {
				return nil
			}
			if result.Clear {
				conversationID = messages.NewUUID()
				fmt.Fprintln(os.Stdout, "Started a new conversation.")
				continue
			}
			fmt.Fprintln(os.Stdout, result.Message)
			continue
		}

		printer.Reset()
		ctx, cancel := withInterrupt(context.Background(), printer.EnsureNewline)
		err := b.runTurn(ctx, line, func(message messages.Message) error {
			if printErr := printer.Print(message); printErr != nil {
				return printErr
			}
			persistMessage(store, opts, conversationID, message)
			return nil
		})
		cancel()
		printer.EnsureNewline()
		if err != nil {
			fmt.Fprintln(os.Stderr, formatInteractiveError(err))
			continue
		}
		saveLast(store, opts, conversationID)
	}
	return nil
}

// replayTranscript reprints a stored conversation, one completed reply per
// line, before the first new prompt.
func replayTranscript(out io.Writer, replay []messages.Message) {
	var builder strings.Builder
	for _, message := range replay {
		switch typed := message.(type) {
		case *messages.Assistant:
			builder.WriteString(messages.ExtractText(typed))
		case *messages.Result:
			if builder.Len() > 0 {
				fmt.Fprintln(out, builder.String())
				builder.Reset()
			}
		}
	}
	if builder.Len() > 0 {
		fmt.Fprintln(out, builder.String())
	}
}

// summarizeToolInput formats parsed tool input for display.
func summarizeToolInput(input any, max int) string {
	if input == nil {
		return ""
	}
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	compact := compactWhitespace(string(data))
	return truncateForDisplay(compact, max)
}

// compactWhitespace collapses internal whitespace into single spaces.
func compactWhitespace(value string) string {
	fields := strings.Fields(value)
	return strings.Join(fields, " ")
}

// truncateForDisplay shortens long strings without breaking runes.
func truncateForDisplay(value string, max int) string {
	if max <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "...(truncated)"
}

// withInterrupt builds a context that is cancelled on SIGINT.
func withInterrupt(parent context.Context, onInterrupt func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-interrupt:
			if onInterrupt != nil {
				onInterrupt()
			}
			cancel()
		case <-done:
			return
		}
	}()

	return ctx, func() {
		close(done)
		signal.Stop(interrupt)
		cancel()
	}
}

// formatInteractiveError normalizes common stream errors for terminal output.
func formatInteractiveError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *transport.APIError
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, azureoai.ErrInvalidTokenResponse):
		return "Authentication failed: unexpected token endpoint response."
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Gateway error (status %d): %s", apiErr.StatusCode, truncateForDisplay(apiErr.Body, 240))
	default:
		return err.Error()
	}
}
