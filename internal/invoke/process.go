package invoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/fnhost/internal/diagnostics"
	"github.com/psantana5/fnhost/pkg/logging"
)

// DefaultInterpreters maps a language to the command that runs its scripts.
var DefaultInterpreters = map[string]string{
	"python":     "python3",
	"node":       "node",
	"bash":       "bash",
	"sh":         "sh",
	"powershell": "pwsh",
}

// ProcessLoader runs script functions as child processes.
type ProcessLoader struct {
	Logs         logging.Provider
	Interpreters map[string]string
}

// Load checks that the script exists and an interpreter is known.
func (p *ProcessLoader) Load(desc Descriptor) (Executor, error) {
	interpreters := p.Interpreters
	if interpreters == nil {
		interpreters = DefaultInterpreters
	}
	interp, ok := interpreters[desc.Language]
	if !ok {
		return nil, fmt.Errorf("no interpreter for language %q (function %q)", desc.Language, desc.Name)
	}
	script := desc.ScriptFile
	if !filepath.IsAbs(script) {
		script = filepath.Join(desc.Directory, script)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("script file for function %q: %w", desc.Name, err)
	}
	return &processExecutor{desc: desc, interpreter: interp, script: script, logs: p.Logs}, nil
}

type processExecutor struct {
	desc        Descriptor
	interpreter string
	script      string
	logs        logging.Provider
}

// maxLineSize bounds one line of script output.
const maxLineSize = 1024 * 1024

// Execute spawns the script in its own process group, writes args as JSON
// to stdin and logs each stdout line to the user category. The whole group
// is killed when ctx is done.
func (e *processExecutor) Execute(ctx context.Context, ec ExecutionContext, args Arguments) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.interpreter, e.script)
	cmd.Dir = e.desc.Directory
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"FNHOST_FUNCTION_NAME="+e.desc.Name,
		"FNHOST_INVOCATION_ID="+ec.InvocationID,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	worker := e.workerLogger(cmd.Process.Pid)
	worker.Debug(fmt.Sprintf("Started %s worker for function '%s' (pid %d)", e.desc.Language, e.desc.Name, cmd.Process.Pid))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := forwardLines(stdout, ec.Logger.Info); err != nil {
			worker.WithError(err).Warn(fmt.Sprintf("Dropped remaining stdout of function '%s': %v", e.desc.Name, err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := forwardLines(stderr, worker.Warn); err != nil {
			worker.WithError(err).Warn(fmt.Sprintf("Dropped remaining stderr of function '%s': %v", e.desc.Name, err))
		}
	}()
	wg.Wait()

	err = cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("function %q exited with code %d", e.desc.Name, exitErr.ExitCode())
		}
		return err
	}
	return nil
}

func (e *processExecutor) workerLogger(pid int) *logging.Logger {
	if e.logs == nil {
		return logging.Nop()
	}
	return e.logs.Logger(diagnostics.WorkerCategory(e.desc.Language, strconv.Itoa(pid)))
}

// forwardLines emits each non-empty line of r. When a line cannot be
// scanned the rest of r is drained unread so the child never blocks on a
// full pipe.
func forwardLines(r io.Reader, emit func(string, ...map[string]interface{})) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			emit(line)
		}
	}
	err := scanner.Err()
	if err != nil {
		io.Copy(io.Discard, r)
	}
	return err
}
