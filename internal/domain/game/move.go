package game

import (
	"fmt"
	"strconv"
	"strings"

	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

type Color int

const (
	Black Color = iota
	White
)

func (c Color) Opposite() Color {
	if c == Black {
		return White
	}
	return Black
}

// GTP returns the protocol spelling used in "genmove b" / "play w D4".
func (c Color) GTP() string {
	if c == White {
		return "w"
	}
	return "b"
}

func (c Color) SGF() string {
	if c == White {
		return "W"
	}
	return "B"
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "black":
		return Black, true
	case "w", "white":
		return White, true
	}
	return Black, false
}

// Sentinel positions. Any negative position is a non-board move.
const (
	Pass   = -1
	Resign = -2
)

// Move is a board position (row-major, row 0 is the engine's row 1) played by a color.
type Move struct {
	Color Color `json:"color" bson:"color"`
	Pos   int   `json:"pos" bson:"pos"`
}

func (m Move) IsPass() bool   { return m.Pos == Pass }
func (m Move) IsResign() bool { return m.Pos == Resign }

// GTP column letters skip "I".
const columnLetters = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

const MaxBoardSize = len(columnLetters)

// TextToMove parses a GTP vertex such as "D4", "pass" or "resign".
func TextToMove(text string, boardSize int) (int, error) {
	vertex := strings.ToUpper(strings.TrimSpace(text))
	switch vertex {
	case "PASS":
		return Pass, nil
	case "RESIGN":
		return Resign, nil
	}
	if len(vertex) < 2 || boardSize <= 0 || boardSize > MaxBoardSize {
		return 0, fmt.Errorf("%w: %q", errs.ErrMalformedMove, text)
	}
	column := strings.IndexByte(columnLetters, vertex[0])
	if column < 0 || column >= boardSize {
		return 0, fmt.Errorf("%w: %q", errs.ErrMalformedMove, text)
	}
	row, err := strconv.Atoi(vertex[1:])
	if err != nil || row < 1 || row > boardSize {
		return 0, fmt.Errorf("%w: %q", errs.ErrMalformedMove, text)
	}
	return (row-1)*boardSize + column, nil
}

// MoveToText renders a position back into a GTP vertex.
func MoveToText(pos, boardSize int) string {
	switch {
	case pos == Resign:
		return "resign"
	case pos < 0:
		return "pass"
	}
	column := pos % boardSize
	row := pos / boardSize
	return fmt.Sprintf("%c%d", columnLetters[column], row+1)
}

// MoveCap is the ply limit after which a game is stopped as abnormal.
func MoveCap(boardSize int) int {
	return 2 * boardSize * boardSize
}
