package tournament

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

// Opponent supplies the moves of the side the engine does not play.
type Opponent interface {
	NextMove(ctx context.Context, color game.Color) (string, error)
}

// LineOpponent reads one vertex per line. Blank lines and "#" comments are
// skipped.
type LineOpponent struct {
	scanner *bufio.Scanner
}

func NewLineOpponent(r io.Reader) *LineOpponent {
	return &LineOpponent{scanner: bufio.NewScanner(r)}
}

func (o *LineOpponent) NextMove(ctx context.Context, _ game.Color) (string, error) {
	for o.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line := strings.TrimSpace(o.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := o.scanner.Err(); err != nil {
		return "", err
	}
	return "", errs.ErrOpponentExhausted
}

// Match plays a Game against an Opponent until the game ends.
type Match struct {
	log         *zap.SugaredLogger
	game        *Game
	opponent    Opponent
	engineColor game.Color
	observer    game.BoardObserver
	record      *game.Record
}

func NewMatch(log *zap.SugaredLogger, g *Game, opponent Opponent, engineColor game.Color, observer game.BoardObserver) *Match {
	if observer == nil {
		observer = game.NopObserver{}
	}
	return &Match{
		log:         log,
		game:        g,
		opponent:    opponent,
		engineColor: engineColor,
		observer:    observer,
	}
}

// Play runs the match to its end and settles the score.
func (m *Match) Play(ctx context.Context, komi float64) (*game.Record, error) {
	size := m.game.client.BoardSize()
	m.record = game.NewRecord(uuid.New().String(), size, komi, time.Now())
	m.observer.Reset(size)

	for !m.game.CheckGameEnd() {
		color := m.game.SideToMove()
		if color == m.engineColor {
			vertex, err := m.game.Move(ctx)
			if err != nil {
				return m.record, err
			}
			if err := m.commit(color, vertex); err != nil {
				return m.record, err
			}
			if !m.game.NextMove() {
				break
			}
			continue
		}

		vertex, err := m.opponent.NextMove(ctx, color)
		if err != nil {
			return m.record, fmt.Errorf("opponent move: %w", err)
		}
		command := "play " + color.String() + " " + vertex
		ok, err := m.game.SetMove(ctx, command)
		if err != nil {
			return m.record, err
		}
		if !ok {
			return m.record, fmt.Errorf("%w: %s", errs.ErrProtocolFailure, command)
		}
		if err := m.commit(color, vertex); err != nil {
			return m.record, err
		}
	}

	result, err := m.game.GetScore(ctx)
	if err != nil {
		return m.record, err
	}
	m.record.Finish(result)
	return m.record, nil
}

func (m *Match) commit(color game.Color, vertex string) error {
	pos, err := game.TextToMove(vertex, m.record.BoardSize)
	if err != nil {
		return err
	}
	move := game.Move{Color: color, Pos: pos}
	m.record.Append(move)
	if !move.IsResign() {
		m.observer.Update(move)
	}
	m.log.Debugw("move", "color", color.String(), "vertex", vertex, "ply", m.record.Plies())
	return nil
}
