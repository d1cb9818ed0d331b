package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// maxCapturedOutput — сколько байт stdout/stderr сохраняется в логах run.
const maxCapturedOutput = 1 << 20

// ScriptExecutor — выполнение кода из payload во внешнем процессе.
//
// Код записывается в файл во временном каталоге, который создаётся на каждый
// запуск и удаляется на любом пути выхода. Процесс запускается в этом каталоге
// с минимальным окружением (PATH, HOME, TMPDIR, LANG) и жёстким таймаутом;
// по таймауту убивается вся группа процессов.
type ScriptExecutor struct {
	// Interpreter — бинарник интерпретатора.
	Interpreter string

	// Field — поле payload с исходным кодом.
	Field string

	// Ext — расширение файла скрипта.
	Ext string

	// Mode — права файла скрипта.
	Mode os.FileMode

	// Label — название для логов ("Python code", "Shell script").
	Label string

	// Timeout — wall-clock таймаут процесса.
	Timeout time.Duration
}

// NewPythonExecutor создаёт executor для python_code.
func NewPythonExecutor(bin string, timeout time.Duration) *ScriptExecutor {
	return &ScriptExecutor{
		Interpreter: bin,
		Field:       "code",
		Ext:         ".py",
		Mode:        0o600,
		Label:       "Python code",
		Timeout:     timeout,
	}
}

// NewShellExecutor создаёт executor для shell_script.
func NewShellExecutor(bin string, timeout time.Duration) *ScriptExecutor {
	return &ScriptExecutor{
		Interpreter: bin,
		Field:       "script",
		Ext:         ".sh",
		Mode:        0o755,
		Label:       "Shell script",
		Timeout:     timeout,
	}
}

// Execute берёт код из поля Field и выполняет его.
func (e *ScriptExecutor) Execute(ctx context.Context, payload map[string]any) (*ExecutionResult, error) {
	source := getString(payload, e.Field, "")
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: no %s provided in payload", ErrInvalidPayload, e.Field)
	}
	return e.Run(ctx, source)
}

// Run выполняет source во внешнем процессе.
func (e *ScriptExecutor) Run(ctx context.Context, source string) (*ExecutionResult, error) {
	dir, err := os.MkdirTemp("", "tempo-run-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", ErrExecutionFailed, err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "job"+e.Ext)
	if err := os.WriteFile(script, []byte(source), e.Mode); err != nil {
		return nil, fmt.Errorf("%w: write script: %v", ErrExecutionFailed, err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}

	cmd := exec.CommandContext(runCtx, e.Interpreter, script)
	cmd.Dir = dir
	cmd.Env = childEnv(dir)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	setProcessGroup(cmd)

	err = cmd.Run()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s exceeded %s.\nError: %s", ErrExecutionTimeout, e.Label, timeout, stderr.String())
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s execution failed with return code %d.\nError: %s",
				ErrExecutionFailed, e.Label, exitErr.ExitCode(), stderr.String())
		}
		return nil, fmt.Errorf("%w: start %s: %v", ErrExecutionFailed, e.Interpreter, err)
	}

	return &ExecutionResult{
		Logs: fmt.Sprintf("%s executed successfully.\nOutput: %s", e.Label, stdout.String()),
		Outputs: map[string]any{
			"stdout": stdout.String(),
			"stderr": stderr.String(),
		},
	}, nil
}

// childEnv — минимальное окружение дочернего процесса.
func childEnv(dir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
}

// cappedBuffer хранит не больше limit байт, остальное отбрасывает.
// Write никогда не возвращает ошибку, чтобы процесс не получил EPIPE.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
