package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"nixmate/pkg/logging"
)

const (
	// maxCaptured bounds how much of standard error is kept in memory. Longer
	// output keeps its tail, which is where Nix reports errors. Standard output
	// is parsed by callers and is always kept in full.
	maxCaptured = 1 << 20
	// waitDelay bounds how long Run waits for pipes after the process exits
	// or is killed.
	waitDelay = 5 * time.Second
)

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// Command describes one invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	Dir string
	// OnStderrLine, if set, receives each line of standard error as it is
	// written.
	OnStderrLine func(line string)
}

func (c Command) String() string {
	var b bytes.Buffer
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

// Result holds the captured outcome of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner runs commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) { return f(ctx, cmd) }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts the command and waits for it. A non-zero exit status is returned
// as an error wrapping *exec.ExitError with Result.ExitCode set. When ctx ends
// first the process group is killed and the context error is returned.
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := execCommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Dir = c.Dir
	configureProcAttr(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: maxCaptured}
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to attach stderr of %s: %w", c.Name, err)
	}

	logging.Debug("Command", "Running %s", c)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	// The pipe must be drained before Wait.
	scanLines(stderrPipe, stderr, c.OnStderrLine)

	waitErr := cmd.Wait()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		logging.Debug("Command", "%s stopped after %s: %v", c.Name, res.Duration, ctxErr)
		return res, ctxErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("%s exited with status %d: %w", c.Name, res.ExitCode, waitErr)
		}
		return res, fmt.Errorf("failed to run %s: %w", c.Name, waitErr)
	}
	return res, nil
}

func scanLines(r io.Reader, sink io.Writer, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCaptured)
	for scanner.Scan() {
		line := scanner.Text()
		_, _ = sink.Write([]byte(line + "\n"))
		if onLine != nil {
			onLine(line)
		}
	}
	// drain anything left after an over-long line
	_, _ = io.Copy(sink, r)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// LookPath reports the absolute path of an executable found in PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
