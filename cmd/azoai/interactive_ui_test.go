package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/transport"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// TestParseSlashCommandQuit verifies quit aliases are recognized.
func TestParseSlashCommandQuit(testingHandle *testing.T) {
	for _, line := range []string{"/quit", "/exit", "  /QUIT  "} {
		result, handled := parseSlashCommand(line)
		if !handled {
			testingHandle.Fatalf("expected %q to be handled", line)
		}
		if !result.Quit {
			testingHandle.Fatalf("expected %q to request quit", line)
		}
	}
}

// TestParseSlashCommandClear verifies the clear command.
func TestParseSlashCommandClear(testingHandle *testing.T) {
	result, handled := parseSlashCommand("/clear")
	if !handled || !result.Clear {
		testingHandle.Fatalf("expected /clear to request a fresh conversation")
	}
}

// TestParseSlashCommandUnknown verifies unknown commands still consume the line.
func TestParseSlashCommandUnknown(testingHandle *testing.T) {
	result, handled := parseSlashCommand("/nope")
	if !handled {
		testingHandle.Fatalf("expected unknown slash command to be handled")
	}
	if result.Quit || result.Clear {
		testingHandle.Fatalf("unknown command must not quit or clear")
	}
	if !strings.Contains(result.Message, "/nope") {
		testingHandle.Fatalf("expected the unknown command to be named, got %q", result.Message)
	}
}

// TestParseSlashCommandNonSlash verifies plain prompts pass through.
func TestParseSlashCommandNonSlash(testingHandle *testing.T) {
	if _, handled := parseSlashCommand("hello there"); handled {
		testingHandle.Fatalf("expected non-slash input to be ignored")
	}
}

// TestStreamPrinterConcatenatesDeltas verifies text deltas print inline with
// one trailing newline at the end of the turn.
func TestStreamPrinterConcatenatesDeltas(testingHandle *testing.T) {
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &out, false)

	sessionID := "session-print"
	for _, text := range []string{"Hel", "lo", " world"} {
		message := messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
			messages.TextBlock(text),
		})
		if err := printer.Print(message); err != nil {
			testingHandle.Fatalf("print delta: %v", err)
		}
	}
	if err := printer.Print(messages.NewResult(sessionID)); err != nil {
		testingHandle.Fatalf("print result: %v", err)
	}

	if out.String() != "Hello world\n" {
		testingHandle.Fatalf("unexpected output %q", out.String())
	}
}

// TestStreamPrinterToolMarkerBreaksLine verifies a tool request closes any
// open text line before the marker prints.
func TestStreamPrinterToolMarkerBreaksLine(testingHandle *testing.T) {
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &out, false)

	sessionID := "session-tools"
	text := messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
		messages.TextBlock("Checking"),
	})
	tool := messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{
		messages.ToolUseBlock("call_1", "get_weather", map[string]any{"city": "Paris"}),
	})

	if err := printer.Print(text); err != nil {
		testingHandle.Fatalf("print text: %v", err)
	}
	if err := printer.Print(tool); err != nil {
		testingHandle.Fatalf("print tool: %v", err)
	}
	if err := printer.Print(messages.NewResult(sessionID)); err != nil {
		testingHandle.Fatalf("print result: %v", err)
	}

	if out.String() != "Checking\n-> tool get_weather requested\n" {
		testingHandle.Fatalf("unexpected output %q", out.String())
	}
}

// TestStreamPrinterVerboseToolInput verifies tool input shows under verbose.
func TestStreamPrinterVerboseToolInput(testingHandle *testing.T) {
	var out bytes.Buffer
	printer := newStreamPrinter(&out, &out, true)

	message := messages.NewAssistant("session-verbose", "gpt-4", []messages.ContentBlock{
		messages.ToolUseBlock("call_1", "get_weather", map[string]any{"city": "Paris"}),
	})
	if err := printer.Print(message); err != nil {
		testingHandle.Fatalf("print tool: %v", err)
	}

	if !strings.Contains(out.String(), `"city":"Paris"`) {
		testingHandle.Fatalf("expected tool input in verbose output, got %q", out.String())
	}
}

// TestReplayTranscriptGroupsTurns verifies replay prints one line per
// completed reply rather than one per stored delta.
func TestReplayTranscriptGroupsTurns(testingHandle *testing.T) {
	sessionID := "session-replay"
	transcript := []messages.Message{
		messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{messages.TextBlock("first ")}),
		messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{messages.TextBlock("reply")}),
		messages.NewResult(sessionID),
		messages.NewAssistant(sessionID, "gpt-4", []messages.ContentBlock{messages.TextBlock("second reply")}),
		messages.NewResult(sessionID),
	}

	var out bytes.Buffer
	replayTranscript(&out, transcript)

	if out.String() != "first reply\nsecond reply\n" {
		testingHandle.Fatalf("unexpected replay %q", out.String())
	}
}

// TestFormatInteractiveError maps stream errors onto terminal messages.
func TestFormatInteractiveError(testingHandle *testing.T) {
	if got := formatInteractiveError(context.Canceled); got != "Request cancelled." {
		testingHandle.Fatalf("unexpected cancel message %q", got)
	}

	apiErr := &transport.APIError{StatusCode: 502, Body: "bad gateway"}
	got := formatInteractiveError(apiErr)
	if !strings.Contains(got, "502") || !strings.Contains(got, "bad gateway") {
		testingHandle.Fatalf("expected status and body in %q", got)
	}

	plain := errors.New("something else")
	if got := formatInteractiveError(plain); got != "something else" {
		testingHandle.Fatalf("unexpected passthrough %q", got)
	}
}

// TestTruncateForDisplay verifies rune-safe truncation.
func TestTruncateForDisplay(testingHandle *testing.T) {
	if got := truncateForDisplay("short", 10); got != "short" {
		testingHandle.Fatalf("short strings must pass through, got %q", got)
	}
	long := strings.Repeat("é", 20)
	got := truncateForDisplay(long, 5)
	if got != strings.Repeat("é", 5)+"...(truncated)" {
		testingHandle.Fatalf("unexpected truncation %q", got)
	}
}
