package relay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

type Engine interface {
	SendSync(ctx context.Context, command string) (gtp.Response, error)
	SendAsync(command string) error
}

// LineHandler consumes one input line and reports whether input should stop.
type LineHandler func(ctx context.Context, line string) (bool, error)

// ReadInput feeds every line of r to handle until it asks to stop, r ends or
// the engine becomes unusable. Comment lines are skipped; other handler
// errors are logged.
func ReadInput(ctx context.Context, log *zap.SugaredLogger, r io.Reader, handle LineHandler) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		done, err := handle(ctx, line)
		if err != nil {
			if errors.Is(err, errs.ErrNotReady) || errors.Is(err, errs.ErrProcessTerminated) {
				return err
			}
			log.Warnf("input %q: %v", scanner.Text(), err)
		}
		if done {
			return nil
		}
	}
	return scanner.Err()
}

// Console passes terminal input straight to one engine. The engine's output
// reaches the terminal through its output subscription.
type Console struct {
	engine   Engine
	log      *zap.SugaredLogger
	toggleUI func()
}

func NewConsole(log *zap.SugaredLogger, engine Engine, toggleUI func()) *Console {
	if toggleUI == nil {
		toggleUI = func() {}
	}
	return &Console{engine: engine, log: log, toggleUI: toggleUI}
}

func (c *Console) HandleLine(ctx context.Context, line string) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "ui":
		c.toggleUI()
		return false, nil
	case "quit":
		return true, c.engine.SendAsync("quit")
	}

	resp, err := c.engine.SendSync(ctx, line)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		c.log.Debugf("engine refused %q: %s", line, resp.Payload)
	}
	return false, nil
}

// Run reads commands from r until "quit" or end of input.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	return ReadInput(ctx, c.log, r, c.HandleLine)
}
