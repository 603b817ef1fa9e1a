package agent

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		agent   string
		want    string
		wantErr bool
	}{
		{name: "shell", agent: "shell", want: "shell"},
		{name: "claude", agent: "claude", want: "claude"},
		{name: "sim", agent: "sim", want: "sim"},
		{name: "case insensitive", agent: "Claude", want: "claude"},
		{name: "unknown", agent: "gpt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := New(tt.agent)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && inv.Name() != tt.want {
				t.Errorf("expected name %s, got %s", tt.want, inv.Name())
			}
		})
	}
}

func TestResultSuccess(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		want bool
	}{
		{"clean exit", &Result{ExitCode: 0}, true},
		{"nonzero exit", &Result{ExitCode: 1}, false},
		{"timed out", &Result{ExitCode: TimeoutExitCode, TimedOut: true}, false},
		{"nil result", nil, false},
	}
	for _, tt := range tests {
		if got := tt.res.Success(); got != tt.want {
			t.Errorf("%s: Success() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestResultOutput(t *testing.T) {
	res := &Result{Stdout: "out\n", Stderr: "err\n"}
	if got := res.Output(); got != "out\nerr\n" {
		t.Errorf("Output() = %q", got)
	}
	var nilRes *Result
	if got := nilRes.Output(); got != "" {
		t.Errorf("nil Output() = %q", got)
	}
}

func TestShellInvoker(t *testing.T) {
	inv := NewShellInvoker(t.TempDir())

	t.Run("captures stdout and exit code", func(t *testing.T) {
		res, err := inv.Invoke(context.Background(), "echo hello", 10*time.Second)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if res.ExitCode != 0 {
			t.Errorf("expected exit 0, got %d", res.ExitCode)
		}
		if res.Stdout != "hello\n" {
			t.Errorf("expected stdout hello, got %q", res.Stdout)
		}
		if res.Duration <= 0 {
			t.Error("expected a positive duration")
		}
	})

	t.Run("captures stderr separately", func(t *testing.T) {
		res, err := inv.Invoke(context.Background(), "echo oops >&2", 10*time.Second)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if res.Stderr != "oops\n" {
			t.Errorf("expected stderr oops, got %q", res.Stderr)
		}
		if res.Stdout != "" {
			t.Errorf("stdout should be empty, got %q", res.Stdout)
		}
	})

	t.Run("nonzero exit is not an error", func(t *testing.T) {
		res, err := inv.Invoke(context.Background(), "exit 7", 10*time.Second)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if res.ExitCode != 7 {
			t.Errorf("expected exit 7, got %d", res.ExitCode)
		}
	})

	t.Run("runs in the configured directory", func(t *testing.T) {
		res, err := inv.Invoke(context.Background(), "pwd", 10*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(res.Stdout, strings.TrimPrefix(inv.Dir, "/private")) {
			t.Errorf("expected pwd under %s, got %q", inv.Dir, res.Stdout)
		}
	})

	t.Run("timeout kills the process", func(t *testing.T) {
		start := time.Now()
		res, err := inv.Invoke(context.Background(), "sleep 30", 200*time.Millisecond)
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if !res.TimedOut {
			t.Error("expected timed-out result")
		}
		if res.ExitCode != TimeoutExitCode {
			t.Errorf("expected sentinel exit code, got %d", res.ExitCode)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("timeout did not terminate the process promptly")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, _ := inv.Invoke(ctx, "echo hi", 10*time.Second)
		if res == nil {
			t.Fatal("expected a result even when cancelled")
		}
		if res.ExitCode == 0 && res.Stdout == "hi\n" {
			t.Error("cancelled invocation should not have run normally")
		}
	})
}

func TestSimInvoker(t *testing.T) {
	inv := NewSimInvoker()

	res, err := inv.Invoke(context.Background(), "rm -rf /", time.Second)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected synthetic success, got exit %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "simulated") {
		t.Errorf("expected simulated marker in stdout, got %q", res.Stdout)
	}

	inv.Invoke(context.Background(), "echo two", time.Second)
	got := inv.Instructions()
	if len(got) != 2 || got[0] != "rm -rf /" || got[1] != "echo two" {
		t.Errorf("unexpected recorded instructions: %v", got)
	}
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"2g", 2 * 1024 * 1024 * 1024, false},
		{"512m", 512 * 1024 * 1024, false},
		{"1024k", 1024 * 1024, false},
		{"", 0, false},
		{"invalid", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMemory(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMemory(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMemory(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseCPUs(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"1", 1, false},
		{"0.5", 0.5, false},
		{"2", 2, false},
		{"", 0, false},
		{"zero", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCPUs(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCPUs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseCPUs(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
