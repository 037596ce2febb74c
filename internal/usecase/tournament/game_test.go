package tournament

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	"github.com/liverex/leela-zero-ui/internal/gtptest"
	"github.com/liverex/leela-zero-ui/internal/repository"
)

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		min     string
		wantErr error
	}{
		{name: "older patch train", version: "1.1.9", min: "1.2.0", wantErr: errs.ErrVersionTooOld},
		{name: "equal", version: "1.2.0", min: "1.2.0"},
		{name: "newer", version: "1.3", min: "1.2.0"},
		{name: "major wins", version: "2.0.0", min: "1.99.99"},
		{name: "short min", version: "0.17", min: "0.16"},
		{name: "older short", version: "0.16", min: "0.17.1", wantErr: errs.ErrVersionTooOld},
		{name: "garbage", version: "Leela Zero", min: "0.17", wantErr: errs.ErrInvalidVersionText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersion(tt.version, tt.min)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("0.17")
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 17, 0}, v)
}

type session struct {
	game   *Game
	engine *gtptest.Engine
	client *repository.EngineClient
}

func newSession(t *testing.T, handler gtptest.Handler) *session {
	t.Helper()
	engine := gtptest.NewEngine(handler)
	client := repository.NewEngineClient(zap.NewNop().Sugar(), repository.ClientOptions{
		Name:  "leelaz",
		Spawn: engine.Spawner(),
	})
	t.Cleanup(func() {
		_ = client.Terminate()
		client.Join()
	})
	return &session{
		game:   NewGame(zap.NewNop().Sugar(), client, "./leelaz -g -w net.txt", "match-1"),
		engine: engine,
		client: client,
	}
}

func TestGameStart(t *testing.T) {
	t.Run("new enough", func(t *testing.T) {
		s := newSession(t, gtptest.Leela("0.17.0", nil, ""))
		require.NoError(t, s.game.GameStart(context.Background(), "0.16"))
		assert.Equal(t, []string{"version", "time_settings 0 1 0"}, s.engine.Commands())
	})

	t.Run("too old", func(t *testing.T) {
		s := newSession(t, gtptest.Leela("0.15", nil, ""))
		err := s.game.GameStart(context.Background(), "0.16")
		assert.ErrorIs(t, err, errs.ErrVersionTooOld)
		assert.Equal(t, []string{"version"}, s.engine.Commands())
	})
}

func TestSetMove(t *testing.T) {
	handler := func(command string) gtptest.Reply {
		if strings.Contains(command, "Z19") {
			return gtptest.Reply{Fail: true, Payload: "illegal move"}
		}
		return gtptest.Leela("0.17", nil, "")(command)
	}
	s := newSession(t, handler)
	require.NoError(t, s.game.GameStart(context.Background(), "0.17"))
	ctx := context.Background()

	ok, err := s.game.SetMove(ctx, "play black Z19")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.game.MoveNum())
	assert.Equal(t, game.Black, s.game.SideToMove())

	ok, err = s.game.SetMove(ctx, "play black pass")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, game.White, s.game.SideToMove())
	assert.False(t, s.game.CheckGameEnd())

	ok, err = s.game.SetMove(ctx, "play white D4")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.game.SetMove(ctx, "play black pass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, s.game.CheckGameEnd(), "a move between passes resets the count")

	ok, err = s.game.SetMove(ctx, "play white pass")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.game.CheckGameEnd())
	assert.Equal(t, 4, s.game.MoveNum())
}

func TestResignationScore(t *testing.T) {
	s := newSession(t, gtptest.Leela("0.17", nil, "B+3.5"))
	require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

	ok, err := s.game.SetMove(context.Background(), "play black resign")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.game.CheckGameEnd())

	result, err := s.game.GetScore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, game.WinnerWhite, result.Winner)
	assert.Equal(t, "W+Resign", result.Score)
	assert.Equal(t, game.WinnerWhite, s.game.Winner())
	assert.NotContains(t, s.engine.Commands(), "final_score")
}

func TestGetScore(t *testing.T) {
	t.Run("counted", func(t *testing.T) {
		s := newSession(t, gtptest.Leela("0.17", nil, "W+12.5"))
		require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

		result, err := s.game.GetScore(context.Background())
		require.NoError(t, err)
		assert.Equal(t, game.WinnerWhite, result.Winner)
		assert.Equal(t, game.CauseScore, result.Cause)
		assert.Equal(t, "W+12.5", s.game.Result())
	})

	t.Run("final_score fails", func(t *testing.T) {
		handler := func(command string) gtptest.Reply {
			if command == "final_score" {
				return gtptest.Reply{Fail: true, Payload: "cannot score"}
			}
			return gtptest.Leela("0.17", nil, "")(command)
		}
		s := newSession(t, handler)
		require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

		_, err := s.game.GetScore(context.Background())
		assert.ErrorIs(t, err, errs.ErrProtocolFailure)
	})
}

func TestSetMovesCountAndMoveCap(t *testing.T) {
	s := newSession(t, gtptest.Leela("0.17", nil, ""))
	require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

	s.game.SetMovesCount(3)
	assert.Equal(t, game.White, s.game.SideToMove())
	s.game.SetMovesCount(722)
	assert.Equal(t, game.Black, s.game.SideToMove())
	assert.False(t, s.game.CheckGameEnd())
	s.game.SetMovesCount(723)
	assert.True(t, s.game.CheckGameEnd())
	assert.False(t, s.game.NextMove())
}

func TestFileCommands(t *testing.T) {
	s := newSession(t, gtptest.Leela("0.17", nil, "B+1.5"))
	ctx := context.Background()
	require.NoError(t, s.game.GameStart(ctx, "0.17"))

	// the scripted engine rejects commands it does not know
	assert.ErrorIs(t, s.game.LoadSgf(ctx, "opening"), errs.ErrProtocolFailure)
	_ = s.game.LoadTraining(ctx, "opening")
	_ = s.game.SaveTraining(ctx)
	_ = s.game.WriteSgf(ctx)
	_, err := s.game.GetScore(ctx)
	require.NoError(t, err)
	_ = s.game.DumpTraining(ctx)
	_ = s.game.DumpDebug(ctx)

	assert.Equal(t, []string{
		"version",
		"time_settings 0 1 0",
		"loadsgf opening.sgf",
		"load_training opening.train",
		"save_training match-1.train",
		"printsgf match-1.sgf",
		"final_score",
		"dump_training black match-1.txt",
		"dump_debug match-1.debug.txt",
	}, s.engine.Commands())
}

func TestGameQuit(t *testing.T) {
	s := newSession(t, gtptest.Leela("0.17", nil, ""))
	require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

	require.NoError(t, s.game.GameQuit())
	assert.False(t, s.client.IsReady())
	commands := s.engine.Commands()
	assert.Equal(t, "quit", commands[len(commands)-1])
}

func TestMatch(t *testing.T) {
	engineMoves := []string{"D4", "Q16", "pass"}
	s := newSession(t, gtptest.Leela("0.17", engineMoves, "B+5.5"))
	require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

	opponent := NewLineOpponent(strings.NewReader("# white\nQ4\n\nD16\npass\n"))
	match := NewMatch(zap.NewNop().Sugar(), s.game, opponent, game.Black, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := match.Play(ctx, 7.5)
	require.NoError(t, err)

	assert.Equal(t, 6, rec.Plies())
	assert.True(t, rec.Finished())
	assert.Equal(t, game.CauseDoublePass, rec.Result.Cause)
	assert.Equal(t, game.WinnerBlack, rec.Result.Winner)
	assert.Contains(t, s.engine.Commands(), "play white Q4")
	assert.Contains(t, s.engine.Commands(), "genmove b")
}

func TestMatch_OpponentExhausted(t *testing.T) {
	s := newSession(t, gtptest.Leela("0.17", []string{"D4"}, ""))
	require.NoError(t, s.game.GameStart(context.Background(), "0.17"))

	match := NewMatch(zap.NewNop().Sugar(), s.game, NewLineOpponent(strings.NewReader("")), game.Black, nil)
	rec, err := match.Play(context.Background(), 7.5)
	assert.ErrorIs(t, err, errs.ErrOpponentExhausted)
	assert.Equal(t, 1, rec.Plies())
}
