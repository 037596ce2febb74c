package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/adapters"
	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	"github.com/liverex/leela-zero-ui/internal/metrics"
)

const DefaultBoardSize = 19

// Spawner launches an engine for a command line.
type Spawner func(commandLine, workDir string) (adapters.Process, error)

// OutputObserver is called once per engine line, in arrival order.
type OutputObserver func(line string)

type ClientOptions struct {
	// Name identifies the engine in logs and metrics.
	Name string
	// Spawn launches command lines; defaults to adapters.Spawn.
	Spawn Spawner
	// Host is used for the empty and "0" command lines.
	Host Spawner
	// CommandTimeout bounds every SendSync wait after startup. Zero waits forever.
	CommandTimeout time.Duration
	Metrics        *metrics.Metrics
}

// EngineClient speaks GTP to one engine process. At most one SendSync is
// outstanding at a time; a background goroutine reads every engine line,
// fans it out to observers and hands completed responses to the waiter.
type EngineClient struct {
	name string
	log  *zap.SugaredLogger
	opts ClientOptions

	proc adapters.Process
	corr *Correlator

	sendMu  sync.Mutex
	writeMu sync.Mutex
	nextID  uint64

	stateMu   sync.RWMutex
	state     gtp.ProcessState
	version   string
	boardSize int

	observersMu sync.RWMutex
	observers   []OutputObserver

	asyncMu sync.Mutex
	async   map[uint64]string

	quitSent atomic.Bool
	started  chan struct{}
	done     chan struct{}
}

func NewEngineClient(log *zap.SugaredLogger, opts ClientOptions) *EngineClient {
	if opts.Name == "" {
		opts.Name = "engine"
	}
	if opts.Spawn == nil {
		opts.Spawn = func(commandLine, workDir string) (adapters.Process, error) {
			return adapters.Spawn(commandLine, workDir, log.With("engine", opts.Name))
		}
	}
	return &EngineClient{
		name:      opts.Name,
		log:       log,
		opts:      opts,
		corr:      NewCorrelator(),
		boardSize: DefaultBoardSize,
		async:     make(map[uint64]string),
		started:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the engine, starts the reader and asks it for its "version".
// On timeout or early exit the client is left Failed.
func (c *EngineClient) Start(ctx context.Context, commandLine, workDir string, startupTimeout time.Duration) error {
	c.stateMu.Lock()
	if c.state != gtp.StateNotStarted {
		state := c.state
		c.stateMu.Unlock()
		return fmt.Errorf("%w: %s already %s", errs.ErrNotReady, c.name, state)
	}
	c.state = gtp.StateStarting
	c.stateMu.Unlock()

	spawn := c.opts.Spawn
	if commandLine == "" || commandLine == "0" {
		spawn = c.opts.Host
		if spawn == nil {
			c.setState(gtp.StateFailed)
			return fmt.Errorf("%w: %w", errs.ErrSpawn, errs.ErrNoHostEngine)
		}
	}

	proc, err := spawn(commandLine, workDir)
	if err != nil {
		c.setState(gtp.StateFailed)
		c.log.Errorw("failed to launch engine", "engine", c.name, "cmd", commandLine, "error", err)
		return err
	}
	c.proc = proc
	close(c.started)
	go c.readLoop()

	readyCtx := ctx
	if startupTimeout > 0 {
		var cancel context.CancelFunc
		readyCtx, cancel = context.WithTimeout(ctx, startupTimeout)
		defer cancel()
	}

	c.sendMu.Lock()
	resp, err := c.exchange(readyCtx, "version")
	c.sendMu.Unlock()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s after %s", errs.ErrStartupTimeout, c.name, startupTimeout)
		}
		c.abortStart(err)
		return err
	}
	if !resp.OK() {
		err = fmt.Errorf("%s version check: %w", c.name, resp.Err())
		c.abortStart(err)
		return err
	}

	c.stateMu.Lock()
	c.version = resp.Payload
	c.stateMu.Unlock()
	c.setState(gtp.StateReady)
	c.log.Infow("engine ready", "engine", c.name, "version", resp.Payload)
	return nil
}

func (c *EngineClient) abortStart(err error) {
	c.fail("engine failed to start", err)
}

// fail marks the client Failed and kills the engine.
func (c *EngineClient) fail(msg string, err error, keysAndValues ...interface{}) {
	c.setState(gtp.StateFailed)
	c.log.Errorw(msg, append([]interface{}{"engine", c.name, "error", err}, keysAndValues...)...)
	if terr := c.proc.Terminate(); terr != nil {
		c.log.Warnw("failed to terminate engine", "engine", c.name, "error", terr)
	}
}

// SendSync writes command and blocks until its response arrives, ctx is done
// or the configured command timeout elapses. A "?" response is returned as a
// normal result with failure status. Giving up on a response leaves the
// client Failed, since responses can no longer be matched to commands.
func (c *EngineClient) SendSync(ctx context.Context, command string) (gtp.Response, error) {
	command, err := gtp.PrepareCommand(command)
	if err != nil {
		return gtp.Response{}, err
	}
	if err := c.checkAccepting(); err != nil {
		return gtp.Response{}, err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.checkAccepting(); err != nil {
		return gtp.Response{}, err
	}

	waitCtx := ctx
	if c.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.CommandTimeout)
		defer cancel()
	}

	resp, err := c.exchange(waitCtx, command)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s %q after %s", errs.ErrCommandTimeout, c.name, command, c.opts.CommandTimeout)
		}
		return gtp.Response{}, err
	}

	c.setState(gtp.StateRunning)
	if resp.OK() {
		c.track(command)
	} else {
		c.log.Warnw("engine rejected command", "engine", c.name, "cmd", command, "reply", resp.Payload)
	}
	return resp, nil
}

// exchange writes one command and waits for its response. Callers hold sendMu.
func (c *EngineClient) exchange(ctx context.Context, command string) (gtp.Response, error) {
	cmd := gtp.Command{Text: command}
	start := time.Now()

	c.writeMu.Lock()
	cmd.ID = c.nextID
	ch, err := c.corr.Expect(cmd.ID)
	if err != nil {
		c.writeMu.Unlock()
		return gtp.Response{}, err
	}
	if err := c.proc.WriteLine(cmd.Text); err != nil {
		c.corr.Abandon(cmd.ID)
		c.writeMu.Unlock()
		return gtp.Response{}, fmt.Errorf("%w: %w", errs.ErrProcessTerminated, err)
	}
	c.nextID++
	c.writeMu.Unlock()

	c.log.Debugw("gtp command", "engine", c.name, "id", cmd.ID, "cmd", cmd.Text)

	select {
	case r := <-ch:
		if r.err != nil {
			return gtp.Response{}, r.err
		}
		c.opts.Metrics.ObserveCommand(c.name, cmd.Name(), r.resp.Status.String(), time.Since(start))
		return r.resp, nil
	case <-ctx.Done():
		c.corr.Abandon(cmd.ID)
		select {
		case r := <-ch:
			if r.err != nil {
				return gtp.Response{}, r.err
			}
			return r.resp, nil
		default:
		}
		c.fail("gave up waiting for engine", ctx.Err(), "id", cmd.ID, "cmd", cmd.Text)
		return gtp.Response{}, ctx.Err()
	}
}

// SendAsync writes command without waiting. Its response only reaches the
// output observers.
func (c *EngineClient) SendAsync(command string) error {
	text, err := gtp.PrepareCommand(command)
	if err != nil {
		return err
	}
	state := c.State()
	if !state.Accepting() {
		return fmt.Errorf("%w: %s is %s", errs.ErrNotReady, c.name, state)
	}
	if (gtp.Command{Text: text}).Name() == "quit" {
		c.quitSent.Store(true)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	id := c.nextID
	c.asyncMu.Lock()
	c.async[id] = text
	c.asyncMu.Unlock()
	if err := c.proc.WriteLine(text); err != nil {
		c.takeAsync(id)
		return fmt.Errorf("%w: %w", errs.ErrProcessTerminated, err)
	}
	c.nextID++

	c.log.Debugw("gtp command (async)", "engine", c.name, "cmd", text)
	return nil
}

func (c *EngineClient) readLoop() {
	defer close(c.done)

	var parser gtp.BlockParser
	for {
		line, err := c.proc.ReadLine()
		if err != nil {
			c.streamEnded(err)
			return
		}
		c.opts.Metrics.ObserveLine(c.name)
		c.publish(line)

		resp, inBlock, complete := parser.Feed(line)
		if !inBlock {
			c.log.Debugw("engine output", "engine", c.name, "line", line)
			continue
		}
		if !complete {
			continue
		}

		numbered, delivered := c.corr.Deliver(resp)
		if !delivered {
			c.log.Debugw("discarding response without waiter",
				"engine", c.name,
				"id", numbered.ID,
				"cmd", c.takeAsync(numbered.ID),
				"status", numbered.Status.String(),
				"payload", numbered.Payload)
		}
	}
}

func (c *EngineClient) streamEnded(err error) {
	if c.quitSent.Load() {
		c.setState(gtp.StateExited)
		c.log.Infow("engine exited", "engine", c.name)
	} else {
		c.setState(gtp.StateFailed)
		c.log.Errorw("engine output closed unexpectedly", "engine", c.name, "error", err)
	}
	c.corr.Close(fmt.Errorf("%w: %s", errs.ErrProcessTerminated, c.name))
}

func (c *EngineClient) takeAsync(id uint64) string {
	c.asyncMu.Lock()
	defer c.asyncMu.Unlock()
	text := c.async[id]
	delete(c.async, id)
	return text
}

func (c *EngineClient) publish(line string) {
	c.observersMu.RLock()
	observers := c.observers
	c.observersMu.RUnlock()
	for _, observer := range observers {
		observer(line)
	}
}

// SubscribeOutput registers observer for every line the engine emits.
func (c *EngineClient) SubscribeOutput(observer OutputObserver) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	observers := make([]OutputObserver, 0, len(c.observers)+1)
	observers = append(observers, c.observers...)
	c.observers = append(observers, observer)
}

// track keeps the introspection fields in step with accepted commands.
func (c *EngineClient) track(command string) {
	fields := strings.Fields(command)
	if len(fields) != 2 || fields[0] != "boardsize" {
		return
	}
	size, err := strconv.Atoi(fields[1])
	if err != nil {
		return
	}
	c.stateMu.Lock()
	c.boardSize = size
	c.stateMu.Unlock()
}

func (c *EngineClient) checkAccepting() error {
	state := c.State()
	if state.Accepting() {
		return nil
	}
	if state == gtp.StateFailed {
		return fmt.Errorf("%w: %w: %s is %s", errs.ErrNotReady, errs.ErrProcessTerminated, c.name, state)
	}
	return fmt.Errorf("%w: %s is %s", errs.ErrNotReady, c.name, state)
}

// setState only moves forward; terminal states are final.
func (c *EngineClient) setState(next gtp.ProcessState) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state.Terminal() || next <= c.state {
		return
	}
	c.state = next
}

func (c *EngineClient) State() gtp.ProcessState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *EngineClient) IsReady() bool {
	return c.State().Accepting()
}

func (c *EngineClient) Name() string {
	return c.name
}

func (c *EngineClient) Version() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.version
}

func (c *EngineClient) BoardSize() int {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.boardSize
}

// Join blocks until the reader goroutine has seen the end of the engine output.
func (c *EngineClient) Join() {
	select {
	case <-c.started:
	default:
		return
	}
	<-c.done
}

// WaitQuit sends "quit" unless it was already sent, then blocks until the
// engine process has exited and returns its exit code.
func (c *EngineClient) WaitQuit() (int, error) {
	select {
	case <-c.started:
	default:
		return 0, nil
	}
	if !c.quitSent.Load() && c.IsReady() {
		if err := c.SendAsync("quit"); err != nil {
			c.log.Warnw("failed to send quit", "engine", c.name, "error", err)
		}
	}
	<-c.done
	code, err := c.proc.Wait()
	c.log.Debugw("engine process reaped", "engine", c.name, "exit_code", code)
	return code, err
}

// Terminate kills the engine process.
func (c *EngineClient) Terminate() error {
	select {
	case <-c.started:
	default:
		return nil
	}
	return c.proc.Terminate()
}
