package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/rvoc"
)

func TestReadPassword(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		fail  bool
	}{
		{"newline", "hunter2hunter2\n", "hunter2hunter2", false},
		{"crlf", "hunter2hunter2\r\n", "hunter2hunter2", false},
		{"no newline", "hunter2hunter2", "hunter2hunter2", false},
		{"first line only", "first\nsecond\n", "first", false},
		{"inner spaces kept", " pass word \n", " pass word ", false},
		{"empty", "", "", true},
		{"blank line", "\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPassword(strings.NewReader(tt.input))
			if tt.fail {
				if err == nil {
					t.Fatalf("readPassword(%q) succeeded", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("readPassword(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("readPassword(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(rvoc.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := newLogger(rvoc.LogConfig{Level: "loud"}, &buf); !errors.Is(err, rvoc.ErrInvalidConfig) {
		t.Errorf("bad level = %v, want ErrInvalidConfig", err)
	}
	if _, err := newLogger(rvoc.LogConfig{Level: "info", Format: "xml"}, &buf); !errors.Is(err, rvoc.ErrInvalidConfig) {
		t.Errorf("bad format = %v, want ErrInvalidConfig", err)
	}
}

func TestWebRequiresPepper(t *testing.T) {
	t.Setenv(rvoc.EnvPasswordPepper, "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"web"})
	if err := cmd.Execute(); !errors.Is(err, rvoc.ErrInvalidConfig) {
		t.Fatalf("web without pepper = %v, want ErrInvalidConfig", err)
	}
}

func TestArgumentValidation(t *testing.T) {
	for _, args := range [][]string{
		{"run-job"},
		{"set-password"},
		{"list-jobs", "extra"},
	} {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Errorf("%v: expected an argument error", args)
		}
	}
}
