package worker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func requireBin(t *testing.T, bin string) string {
	t.Helper()
	path, err := exec.LookPath(bin)
	if err != nil {
		t.Skipf("%s not available", bin)
	}
	return path
}

// --- ScriptExecutor Tests ---

func TestShellExecutor_Success(t *testing.T) {
	sh := requireBin(t, "sh")
	executor := NewShellExecutor(sh, 10*time.Second)

	result, err := executor.Execute(context.Background(), map[string]any{
		"type":   TypeShellScript,
		"script": "echo hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Logs != "Shell script executed successfully.\nOutput: hello\n" {
		t.Errorf("unexpected logs: %q", result.Logs)
	}
}

func TestShellExecutor_NonZeroExit(t *testing.T) {
	sh := requireBin(t, "sh")
	executor := NewShellExecutor(sh, 10*time.Second)

	_, err := executor.Execute(context.Background(), map[string]any{
		"script": "echo oops >&2; exit 3",
	})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "return code 3") {
		t.Errorf("error should contain exit code, got %q", msg)
	}
	if !strings.Contains(msg, "oops") {
		t.Errorf("error should contain stderr, got %q", msg)
	}
}

func TestShellExecutor_Timeout(t *testing.T) {
	sh := requireBin(t, "sh")
	executor := NewShellExecutor(sh, 100*time.Millisecond)

	start := time.Now()
	_, err := executor.Execute(context.Background(), map[string]any{"script": "sleep 10"})
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 7*time.Second {
		t.Errorf("process should be killed promptly, took %v", elapsed)
	}
}

func TestShellExecutor_Canceled(t *testing.T) {
	sh := requireBin(t, "sh")
	executor := NewShellExecutor(sh, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := executor.Execute(ctx, map[string]any{"script": "sleep 10"})
	if !IsCanceled(err) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestShellExecutor_RemovesWorkDir(t *testing.T) {
	sh := requireBin(t, "sh")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	cases := []struct {
		name    string
		script  string
		timeout time.Duration
	}{
		{"success", "echo hi > out.txt", 10 * time.Second},
		{"non-zero exit", "touch leftover; exit 1", 10 * time.Second},
		{"timeout", "touch leftover; sleep 10", 100 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			executor := NewShellExecutor(sh, tc.timeout)
			_, _ = executor.Execute(context.Background(), map[string]any{"script": tc.script})

			entries, err := os.ReadDir(tmp)
			if err != nil {
				t.Fatalf("read tmp: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("work dir left behind: %v", entries)
			}
		})
	}
}

func TestShellExecutor_MissingScript(t *testing.T) {
	executor := NewShellExecutor("/bin/sh", time.Second)

	_, err := executor.Execute(context.Background(), map[string]any{"script": "   "})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestShellExecutor_MissingInterpreter(t *testing.T) {
	executor := NewShellExecutor("/nonexistent/tempo-shell", time.Second)

	_, err := executor.Execute(context.Background(), map[string]any{"script": "echo hi"})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
}

func TestPythonExecutor_Success(t *testing.T) {
	py := requireBin(t, "python3")
	executor := NewPythonExecutor(py, 10*time.Second)

	result, err := executor.Execute(context.Background(), map[string]any{
		"code": "print(6 * 7)",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Logs, "Output: 42") {
		t.Errorf("unexpected logs: %q", result.Logs)
	}
}

func TestNumberExecutor_CustomCalculation(t *testing.T) {
	py := requireBin(t, "python3")
	executor := &NumberExecutor{Python: NewPythonExecutor(py, 10*time.Second)}

	result, err := executor.Execute(context.Background(), map[string]any{
		"operation": "custom_calculation",
		"code":      "print(sum(range(10)))",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Logs, "45") {
		t.Errorf("unexpected logs: %q", result.Logs)
	}
}

// --- cappedBuffer Tests ---

func TestCappedBuffer_Truncates(t *testing.T) {
	b := &cappedBuffer{limit: 4}

	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v; want 6, nil", n, err)
	}
	if !strings.HasPrefix(b.String(), "abcd") {
		t.Errorf("unexpected content: %q", b.String())
	}
}

// --- truncate Tests ---

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// "привет" — по 2 байта на букву, обрезка по 3 байтам попадает в середину "р"
	got := truncate("привет", 3)
	if got != "п..." {
		t.Errorf("truncate = %q", got)
	}
	if !utf8.ValidString(got) {
		t.Error("result must be valid UTF-8")
	}

	if got := truncate("short", 10); got != "short" {
		t.Errorf("short string changed: %q", got)
	}
}
