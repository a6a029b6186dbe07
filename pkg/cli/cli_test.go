package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type summary struct {
	Action string `json:"action"`
}

func (s summary) Text() string { return "action: " + s.Action }

func TestFormatters(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		data   any
		want   string
	}{
		{name: "text default", format: "", data: "hello", want: "hello\n"},
		{name: "text texter", format: FormatText, data: summary{Action: "BLOCK"}, want: "action: BLOCK\n"},
		{name: "json", format: "JSON", data: summary{Action: "ALLOW"}, want: "{\n  \"action\": \"ALLOW\"\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if err != nil {
				t.Fatalf("NewFormatter() error = %v", err)
			}
			var buf bytes.Buffer
			if err := f.FormatTo(&buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestJSONFormatter_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).FormatTo(&buf, map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil || got["n"] != 1 {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewFormatter_Unsupported(t *testing.T) {
	_, err := NewFormatter("yaml")
	if ExitCode(err) != ExitUsage {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitUsage)
	}
}

func TestExitCode(t *testing.T) {
	underlying := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain", err: underlying, want: ExitFailure},
		{name: "command", err: NewCommandError("serve", underlying), want: ExitFailure},
		{name: "exit", err: NewExitError(ExitBlocked, nil), want: ExitBlocked},
		{name: "wrapped exit", err: fmt.Errorf("evaluate: %w", NewExitError(ExitUsage, underlying)), want: ExitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewCommandError("serve", underlying)
	if err.Error() != "command serve failed: underlying error" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying error")
	}
}

func TestExitError_Message(t *testing.T) {
	if got := NewExitError(3, nil).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewExitError(2, errors.New("bad flag")).Error(); got != "bad flag" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSignalContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled too early")
	default:
	}

	cancel()
	<-ctx.Done()
}
