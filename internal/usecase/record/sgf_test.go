package record

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
)

func TestMoveToSGFText(t *testing.T) {
	assert.Equal(t, "as", MoveToSGFText(0, 19))
	assert.Equal(t, "sa", MoveToSGFText(19*19-1, 19))
	assert.Equal(t, "dp", MoveToSGFText(3*19+3, 19))
	assert.Equal(t, "ai", MoveToSGFText(0, 9))
	assert.Equal(t, "tt", MoveToSGFText(game.Pass, 19))
	assert.Equal(t, "tt", MoveToSGFText(game.Resign, 19))
	assert.Equal(t, "tt", MoveToSGFText(-7, 9))
}

func TestEncode(t *testing.T) {
	rec := game.NewRecord("g1", 19, 7.5, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	rec.Append(game.Move{Color: game.Black, Pos: 0})
	rec.Append(game.Move{Color: game.White, Pos: game.Pass})
	rec.Append(game.Move{Color: game.Black, Pos: game.Resign})
	rec.Finish(game.ResignationResult(game.Black))

	want := "(;GM[1]FF[4]RU[Chinese]DT[2024-03-01]SZ[19]KM[7.5]RE[W+Resign]\n" +
		";B[as]\n;W[tt];B[tt])\n"
	assert.Equal(t, want, Encode(rec))
}

func TestEncodeWrapsEveryTenMoves(t *testing.T) {
	rec := game.NewRecord("g2", 9, 7.5, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	color := game.Black
	for i := 0; i < 22; i++ {
		rec.Append(game.Move{Color: color, Pos: i})
		color = color.Opposite()
	}
	rec.Finish(game.MatchResult{Winner: game.WinnerBlack, Cause: game.CauseScore, Score: "B+4.5"})

	out := Encode(rec)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	// header, move 1, moves 2-11, moves 12-21, move 22 and the closing paren
	assert.Len(t, lines, 5)
	assert.Equal(t, ";B[ai]", lines[1])
	assert.Equal(t, 10, strings.Count(lines[2], ";"))
	assert.Equal(t, 10, strings.Count(lines[3], ";"))
	assert.True(t, strings.HasSuffix(lines[4], ")"))
	assert.True(t, strings.HasPrefix(out, "(;GM[1]FF[4]RU[Chinese]DT[2024-03-01]SZ[9]KM[7.5]RE[B+4.5]\n"))
}
