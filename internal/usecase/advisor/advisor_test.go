package advisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	"github.com/liverex/leela-zero-ui/internal/gtptest"
	"github.com/liverex/leela-zero-ui/internal/repository"
)

type boardRecorder struct {
	game.NopObserver
	mu        sync.Mutex
	updates   []game.Move
	indicated []game.Move
}

func (b *boardRecorder) Update(m game.Move) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, m)
}

func (b *boardRecorder) Indicate(m game.Move) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indicated = append(b.indicated, m)
}

func newAdvisor(t *testing.T, moves []string, opts Options) (*Advisor, *gtptest.Engine) {
	t.Helper()
	engine := gtptest.NewEngine(gtptest.Leela("0.17", moves, ""))
	client := repository.NewEngineClient(zap.NewNop().Sugar(), repository.ClientOptions{Spawn: engine.Spawner()})
	require.NoError(t, client.Start(context.Background(), "leelaz", "", time.Second))
	t.Cleanup(func() {
		_ = client.Terminate()
		client.Join()
	})
	return New(zap.NewNop().Sugar(), client, opts), engine
}

func TestAdvisor_ComputerAnswersHumanMoves(t *testing.T) {
	board := &boardRecorder{}
	a, engine := newAdvisor(t, []string{"D4", "Q16"}, Options{Observer: board})
	ctx := context.Background()

	require.NoError(t, a.Init(ctx))
	require.NoError(t, a.Reset(ctx, true))
	assert.Equal(t, game.White, a.NextColor())

	require.NoError(t, a.Place(ctx, game.White, 15*19+3))
	assert.Equal(t, game.White, a.NextColor())

	moves := a.Moves()
	require.Len(t, moves, 3)
	assert.Equal(t, game.Move{Color: game.Black, Pos: 3*19 + 3}, moves[0])
	assert.Equal(t, game.Move{Color: game.White, Pos: 15*19 + 3}, moves[1])
	assert.Equal(t, game.Move{Color: game.Black, Pos: 15*19 + 15}, moves[2])
	assert.Len(t, board.updates, 3)

	assert.Equal(t, []string{
		"version", "time_settings 1800 15 1", "clear_board", "genmove b", "play w D16", "genmove b",
	}, engine.Commands())
}

func TestAdvisor_HintDoesNotCommit(t *testing.T) {
	board := &boardRecorder{}
	a, engine := newAdvisor(t, []string{"C3"}, Options{Observer: board})
	ctx := context.Background()
	require.NoError(t, a.Reset(ctx, false))

	move, err := a.Hint(ctx)
	require.NoError(t, err)
	assert.Equal(t, game.Move{Color: game.Black, Pos: 2*19 + 2}, move)
	assert.Empty(t, a.Moves())
	assert.Equal(t, []game.Move{move}, board.indicated)
	assert.Equal(t, []string{"version", "clear_board", "genmove b", "undo"}, engine.Commands())
}

func TestAdvisor_SimulateOnlyIndicates(t *testing.T) {
	board := &boardRecorder{}
	a, engine := newAdvisor(t, []string{"D4"}, Options{Observer: board, Simulate: true})
	require.NoError(t, a.Reset(context.Background(), true))

	assert.Empty(t, a.Moves())
	assert.Empty(t, board.updates)
	require.Len(t, board.indicated, 1)
	assert.Equal(t, []string{"version", "clear_board", "genmove b", "undo"}, engine.Commands())
}

func TestAdvisor_HandleLine(t *testing.T) {
	toggled := false
	a, engine := newAdvisor(t, []string{"Q4", "R4"}, Options{ToggleUI: func() { toggled = true }})
	ctx := context.Background()
	require.NoError(t, a.Reset(ctx, false))

	input := strings.NewReader("D4\nui\nhint\nshowboard\nquit\n")
	require.NoError(t, a.Run(ctx, input))

	assert.True(t, toggled)
	moves := a.Moves()
	require.Len(t, moves, 2)
	assert.Equal(t, game.Black, moves[0].Color)
	assert.Equal(t, "Q4", game.MoveToText(moves[1].Pos, 19))

	commands := engine.Commands()
	assert.Equal(t, []string{"version", "clear_board", "play b D4", "genmove w", "genmove b", "undo", "showboard", "quit"}, commands)
}
