package advisor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	"github.com/liverex/leela-zero-ui/internal/usecase/relay"
)

var DefaultInitCommands = []string{"time_settings 1800 15 1"}

type Engine interface {
	SendSync(ctx context.Context, command string) (gtp.Response, error)
	SendAsync(command string) error
	BoardSize() int
}

type Options struct {
	InitCommands []string
	// Simulate only indicates the computer's moves instead of playing them.
	Simulate bool
	Observer game.BoardObserver
	ToggleUI func()
}

// Advisor plays one color against a human and suggests moves on request.
type Advisor struct {
	engine Engine
	log    *zap.SugaredLogger
	opts   Options

	mu       sync.Mutex
	computer game.Color
	moves    []game.Move
}

func New(log *zap.SugaredLogger, engine Engine, opts Options) *Advisor {
	if opts.InitCommands == nil {
		opts.InitCommands = DefaultInitCommands
	}
	if opts.Observer == nil {
		opts.Observer = game.NopObserver{}
	}
	if opts.ToggleUI == nil {
		opts.ToggleUI = func() {}
	}
	return &Advisor{engine: engine, log: log, opts: opts}
}

// Init sends the configured setup commands.
func (a *Advisor) Init(ctx context.Context) error {
	for _, command := range a.opts.InitCommands {
		if err := a.send(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (a *Advisor) send(ctx context.Context, command string) error {
	resp, err := a.engine.SendSync(ctx, command)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%s: %w", command, resp.Err())
	}
	return nil
}

// Reset starts a new game with the computer playing black or white. When the
// computer plays black it moves at once.
func (a *Advisor) Reset(ctx context.Context, computerBlack bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.send(ctx, "clear_board"); err != nil {
		return err
	}
	a.moves = nil
	a.computer = game.White
	if computerBlack {
		a.computer = game.Black
	}
	a.opts.Observer.Reset(a.engine.BoardSize())

	if a.nextColor() == a.computer {
		_, err := a.think(ctx)
		return err
	}
	return nil
}

func (a *Advisor) nextColor() game.Color {
	if len(a.moves) == 0 {
		return game.Black
	}
	return a.moves[len(a.moves)-1].Color.Opposite()
}

// NextColor is the side to move.
func (a *Advisor) NextColor() game.Color {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextColor()
}

// Place plays a human move, then lets the computer answer when it is its turn.
func (a *Advisor) Place(ctx context.Context, color game.Color, pos int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	vertex := game.MoveToText(pos, a.engine.BoardSize())
	if err := a.send(ctx, "play "+color.GTP()+" "+vertex); err != nil {
		return err
	}
	move := game.Move{Color: color, Pos: pos}
	a.moves = append(a.moves, move)
	a.opts.Observer.Update(move)

	if color != a.computer && a.nextColor() == a.computer {
		_, err := a.think(ctx)
		return err
	}
	return nil
}

// think has the computer move. In simulate mode the move is taken back and
// only indicated.
func (a *Advisor) think(ctx context.Context) (game.Move, error) {
	move, err := a.genmove(ctx, a.computer)
	if err != nil {
		return move, err
	}
	if a.opts.Simulate {
		if !move.IsResign() {
			if err := a.send(ctx, "undo"); err != nil {
				return move, err
			}
		}
		a.opts.Observer.Indicate(move)
		return move, nil
	}

	a.moves = append(a.moves, move)
	if move.IsResign() {
		a.opts.Observer.Output(a.computer.String() + " resigns")
		return move, nil
	}
	a.opts.Observer.Update(move)
	return move, nil
}

func (a *Advisor) genmove(ctx context.Context, color game.Color) (game.Move, error) {
	resp, err := a.engine.SendSync(ctx, "genmove "+color.GTP())
	if err != nil {
		return game.Move{}, err
	}
	if !resp.OK() {
		return game.Move{}, fmt.Errorf("genmove %s: %w", color.GTP(), resp.Err())
	}
	pos, err := game.TextToMove(resp.Payload, a.engine.BoardSize())
	if err != nil {
		return game.Move{}, err
	}
	return game.Move{Color: color, Pos: pos}, nil
}

// Hint asks the engine what the side to move should play without committing
// the move.
func (a *Advisor) Hint(ctx context.Context) (game.Move, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	move, err := a.genmove(ctx, a.nextColor())
	if err != nil {
		return move, err
	}
	if !move.IsResign() {
		if err := a.send(ctx, "undo"); err != nil {
			return move, err
		}
	}
	a.opts.Observer.Indicate(move)
	return move, nil
}

func (a *Advisor) Moves() []game.Move {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]game.Move, len(a.moves))
	copy(out, a.moves)
	return out
}

// HandleLine interprets one terminal line: a vertex is played for the side
// to move, "hint", "ui" and "quit" are commands, anything else goes to the
// engine as is.
func (a *Advisor) HandleLine(ctx context.Context, line string) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "ui":
		a.opts.ToggleUI()
		return false, nil
	case "hint":
		_, err := a.Hint(ctx)
		return false, err
	case "quit":
		return true, a.engine.SendAsync("quit")
	}

	if pos, err := game.TextToMove(line, a.engine.BoardSize()); err == nil && pos >= 0 {
		return false, a.Place(ctx, a.NextColor(), pos)
	}

	resp, err := a.engine.SendSync(ctx, line)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, fmt.Errorf("%w: %s", errs.ErrProtocolFailure, resp.Payload)
	}
	return false, nil
}

// Run reads terminal input until "quit" or end of input.
func (a *Advisor) Run(ctx context.Context, r io.Reader) error {
	return relay.ReadInput(ctx, a.log, r, a.HandleLine)
}
