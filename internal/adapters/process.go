package adapters

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

// Process is the pipe interface the protocol client drives.
type Process interface {
	// WriteLine appends a newline and writes text to the engine's stdin.
	WriteLine(text string) error
	// ReadLine blocks until a full line is available. It returns io.EOF once
	// the stream is closed.
	ReadLine() (string, error)
	Terminate() error
	IsAlive() bool
	// Wait blocks until the process has exited and returns its exit code.
	Wait() (int, error)
}

// EngineProcess is an engine running as a child process.
type EngineProcess struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	stdoutFile *os.File
	log        *zap.SugaredLogger

	writeMu sync.Mutex

	exited   chan struct{}
	exitCode int
	waitErr  error
}

// exitDrainGrace bounds each stdout read after the child exited, in case a
// grandchild still holds the pipe open.
var exitDrainGrace = 2 * time.Second

// Spawn starts commandLine in workDir with stdin/stdout redirected. Stderr
// lines are logged at debug level.
func Spawn(commandLine, workDir string, log *zap.SugaredLogger) (*EngineProcess, error) {
	args, err := shlex.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errs.ErrSpawn, commandLine, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command line", errs.ErrSpawn)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = workDir

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSpawn, err)
	}

	// The child writes into an os.Pipe we own, so cmd.Wait never closes the
	// read side under a pending ReadLine.
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSpawn, err)
	}
	cmd.Stdout = stdoutWrite

	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		closeAll(stdoutRead, stdoutWrite)
		return nil, fmt.Errorf("%w: %v", errs.ErrSpawn, err)
	}
	cmd.Stderr = stderrWrite

	if err := cmd.Start(); err != nil {
		closeAll(stdoutRead, stdoutWrite, stderrRead, stderrWrite)
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrSpawn, args[0], err)
	}
	closeAll(stdoutWrite, stderrWrite)

	p := &EngineProcess{
		cmd:        cmd,
		stdin:      stdinPipe,
		stdout:     bufio.NewReader(stdoutRead),
		stdoutFile: stdoutRead,
		log:        log,
		exited:     make(chan struct{}),
	}

	go p.drainStderr(stderrRead)
	go p.reap()

	log.Debugw("engine spawned", "cmd", commandLine, "dir", workDir, "pid", cmd.Process.Pid)
	return p, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (p *EngineProcess) drainStderr(r *os.File) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.log.Debugw("engine stderr", "line", scanner.Text())
	}
}

func (p *EngineProcess) reap() {
	err := p.cmd.Wait()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		} else {
			exitCode = -1
		}
	}
	p.exitCode = exitCode
	p.waitErr = err
	close(p.exited)
	_ = p.stdoutFile.SetReadDeadline(time.Now().Add(exitDrainGrace))
}

func (p *EngineProcess) WriteLine(text string) error {
	select {
	case <-p.exited:
		return errs.ErrPipeClosed
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPipeClosed, err)
	}
	return nil
}

// ReadLine never blocks for more than exitDrainGrace once the child has
// exited. The deadline is renewed for every read, so output still in the
// pipe is not lost when the caller is slow to come back for it.
func (p *EngineProcess) ReadLine() (string, error) {
	select {
	case <-p.exited:
		_ = p.stdoutFile.SetReadDeadline(time.Now().Add(exitDrainGrace))
	default:
	}
	line, err := readLine(p.stdout)
	if errors.Is(err, io.EOF) {
		_ = p.stdoutFile.Close()
	}
	return line, err
}

func (p *EngineProcess) Terminate() error {
	if !p.IsAlive() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *EngineProcess) IsAlive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *EngineProcess) Wait() (int, error) {
	<-p.exited
	return p.exitCode, p.waitErr
}

// CloseInput closes the engine's stdin.
func (p *EngineProcess) CloseInput() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.stdin.Close()
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if line != "" && errors.Is(err, io.EOF) {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
			return "", io.EOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
