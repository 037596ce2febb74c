package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordIsFrozenWhenFinished(t *testing.T) {
	rec := NewRecord("g1", 19, 7.5, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, rec.Append(Move{Color: Black, Pos: 60}))
	assert.True(t, rec.Append(Move{Color: White, Pos: Resign}))

	rec.Finish(ResignationResult(White))
	assert.True(t, rec.Finished())
	assert.False(t, rec.Append(Move{Color: Black, Pos: 1}))
	assert.Equal(t, 2, rec.Plies())

	rec.Finish(MatchResult{Winner: WinnerWhite, Cause: CauseScore, Score: "W+3.5"})
	assert.Equal(t, "B+Resign", rec.Result.Score)
	assert.Equal(t, WinnerBlack, rec.Result.Winner)
	assert.Equal(t, CauseResignation, rec.Result.Cause)
}

func TestWinnerFromScore(t *testing.T) {
	assert.Equal(t, WinnerBlack, WinnerFromScore("B+12.5"))
	assert.Equal(t, WinnerWhite, WinnerFromScore("W+0.5"))
	assert.Equal(t, WinnerNone, WinnerFromScore("0"))
	assert.Equal(t, WinnerNone, WinnerFromScore(""))
}
