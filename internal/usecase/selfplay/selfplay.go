package selfplay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	"github.com/liverex/leela-zero-ui/internal/metrics"
)

const (
	DefaultBoardSize = 19
	DefaultKomi      = 7.5
)

// Engine is the part of a protocol client a game needs.
type Engine interface {
	Name() string
	SendSync(ctx context.Context, command string) (gtp.Response, error)
}

type RecordSink interface {
	Save(ctx context.Context, rec *game.Record) error
}

type Options struct {
	BoardSize int
	Komi      float64
	Observer  game.BoardObserver
	Sink      RecordSink
	Metrics   *metrics.Metrics
	Now       func() time.Time
	NewID     func() string
}

// Orchestrator plays games between two engines, or one engine against
// itself when white is nil.
type Orchestrator struct {
	log   *zap.SugaredLogger
	black Engine
	white Engine
	opts  Options
}

func NewOrchestrator(log *zap.SugaredLogger, black, white Engine, opts Options) *Orchestrator {
	if opts.BoardSize == 0 {
		opts.BoardSize = DefaultBoardSize
	}
	if opts.Komi == 0 {
		opts.Komi = DefaultKomi
	}
	if opts.Observer == nil {
		opts.Observer = game.NopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Orchestrator{log: log, black: black, white: white, opts: opts}
}

func (o *Orchestrator) engines() []Engine {
	if o.white == nil {
		return []Engine{o.black}
	}
	return []Engine{o.black, o.white}
}

// Setup sizes and clears every board. The size is only sent when it differs
// from the engine default.
func (o *Orchestrator) Setup(ctx context.Context) error {
	size := o.opts.BoardSize
	if size != DefaultBoardSize {
		for _, e := range o.engines() {
			resp, err := e.SendSync(ctx, "boardsize "+strconv.Itoa(size))
			if err != nil {
				return fmt.Errorf("boardsize on %s: %w", e.Name(), err)
			}
			if !resp.OK() {
				return fmt.Errorf("%w: %s does not support size %d", errs.ErrBoardSizeRejected, e.Name(), size)
			}
		}
	}

	for _, e := range o.engines() {
		resp, err := e.SendSync(ctx, "clear_board")
		if err != nil {
			return fmt.Errorf("clear_board on %s: %w", e.Name(), err)
		}
		if !resp.OK() {
			return fmt.Errorf("clear_board on %s: %w", e.Name(), resp.Err())
		}
	}

	o.opts.Observer.Reset(size)
	return nil
}

// PlayGame sets the boards up and plays one game to its end. The returned
// record holds every ply played, even when an error cut the game short.
func (o *Orchestrator) PlayGame(ctx context.Context) (*game.Record, error) {
	if err := o.Setup(ctx); err != nil {
		return nil, err
	}

	size := o.opts.BoardSize
	rec := game.NewRecord(o.opts.NewID(), size, o.opts.Komi, o.opts.Now())
	me, other := o.black, o.white
	color := game.Black
	lastPass := false

	for ply := 0; ply < game.MoveCap(size); ply++ {
		resp, err := me.SendSync(ctx, "genmove "+color.GTP())
		if err != nil {
			return rec, fmt.Errorf("genmove %s on %s: %w", color.GTP(), me.Name(), err)
		}
		if !resp.OK() {
			return rec, fmt.Errorf("genmove %s on %s: %w", color.GTP(), me.Name(), resp.Err())
		}

		vertex := resp.Payload
		pos, err := game.TextToMove(vertex, size)
		if err != nil {
			return rec, err
		}
		move := game.Move{Color: color, Pos: pos}
		rec.Append(move)

		if move.IsResign() {
			o.finish(rec, game.ResignationResult(color))
			return rec, nil
		}
		if move.IsPass() {
			if lastPass {
				return rec, o.score(ctx, rec, game.CauseDoublePass)
			}
			lastPass = true
		} else {
			lastPass = false
		}

		o.opts.Observer.Update(move)

		if other != nil {
			play := "play " + color.GTP() + " " + vertex
			resp, err := other.SendSync(ctx, play)
			if err != nil {
				return rec, fmt.Errorf("%s on %s: %w", play, other.Name(), err)
			}
			if !resp.OK() {
				return rec, fmt.Errorf("%s on %s: %w", play, other.Name(), resp.Err())
			}
			me, other = other, me
		}
		color = color.Opposite()
	}

	o.log.Warnf("game %s stopped after %d plies", rec.ID, rec.Plies())
	return rec, o.score(ctx, rec, game.CauseMoveCap)
}

func (o *Orchestrator) score(ctx context.Context, rec *game.Record, cause game.Cause) error {
	resp, err := o.black.SendSync(ctx, "final_score")
	if err != nil {
		return fmt.Errorf("final_score: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("final_score: %w", resp.Err())
	}
	o.finish(rec, game.MatchResult{
		Winner: game.WinnerFromScore(resp.Payload),
		Cause:  cause,
		Score:  resp.Payload,
	})
	return nil
}

func (o *Orchestrator) finish(rec *game.Record, result game.MatchResult) {
	rec.Finish(result)
	o.opts.Metrics.ObserveGame(string(result.Cause), string(result.Winner))
	o.log.Infow("game over",
		"id", rec.ID,
		"result", result.Score,
		"winner", result.Winner,
		"cause", result.Cause,
		"plies", rec.Plies())
}

// Run plays games in sequence and hands every finished record to the sink.
// It stops early once an engine can no longer be used.
func (o *Orchestrator) Run(ctx context.Context, games int) ([]*game.Record, error) {
	if games < 1 {
		games = 1
	}
	records := make([]*game.Record, 0, games)
	for i := 0; i < games; i++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		rec, err := o.PlayGame(ctx)
		if err != nil {
			if errors.Is(err, errs.ErrProcessTerminated) || errors.Is(err, errs.ErrNotReady) ||
				errors.Is(err, errs.ErrBoardSizeRejected) || ctx.Err() != nil {
				return records, err
			}
			o.log.Errorf("game %d failed: %v", i+1, err)
			continue
		}

		records = append(records, rec)
		if o.opts.Sink != nil {
			if err := o.opts.Sink.Save(ctx, rec); err != nil {
				o.log.Errorf("failed to save game %s: %v", rec.ID, err)
			}
		}
	}
	return records, nil
}
