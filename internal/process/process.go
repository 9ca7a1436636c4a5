// Package process runs an external command whose combined output is consumed line by
// line while it is alive.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// StopGrace is how long Stop waits after closing stdin before killing the process.
const StopGrace = 2 * time.Second

// Process is a running external command.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}

	mu      sync.Mutex
	waitErr error
	stopped bool
}

// Start launches name with args. Output lines from stdout and stderr are delivered on
// Lines until the process exits.
func Start(ctx context.Context, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	slog.Debug("process started", "cmd", name, "pid", cmd.Process.Pid)

	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}

	var readers sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		readers.Add(1)
		go func(r io.Reader) {
			defer readers.Done()
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				p.lines <- scanner.Text()
			}
		}(r)
	}

	go func() {
		// Pipes must be drained before Wait closes them.
		readers.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.lines)
		close(p.done)
	}()

	return p, nil
}

// Lines yields output lines and is closed once the process has exited.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Stop closes stdin and waits up to StopGrace for the process to exit before killing
// it. A process ended by Stop is not reported as an error.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	_ = p.stdin.Close()
	// Unread output would otherwise block the readers and keep the process alive.
	go func() {
		for range p.lines {
		}
	}()

	select {
	case <-p.done:
	case <-time.After(StopGrace):
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill process: %w", err)
		}
		<-p.done
		return nil
	}

	err := p.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
