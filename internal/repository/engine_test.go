package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
	"github.com/liverex/leela-zero-ui/internal/gtptest"
	"github.com/liverex/leela-zero-ui/internal/metrics"
)

// echo answers every command with its own text, except the hooks in special.
func echo(special map[string]gtptest.Reply) gtptest.Handler {
	return func(command string) gtptest.Reply {
		if reply, ok := special[command]; ok {
			return reply
		}
		if command == "version" {
			return gtptest.Reply{Payload: "0.17"}
		}
		return gtptest.Reply{Payload: command}
	}
}

func startClient(t *testing.T, engine *gtptest.Engine, opts ClientOptions) *EngineClient {
	t.Helper()
	opts.Spawn = engine.Spawner()
	client := NewEngineClient(zap.NewNop().Sugar(), opts)
	require.NoError(t, client.Start(context.Background(), "leelaz -g", "", time.Second))
	t.Cleanup(func() {
		_ = client.Terminate()
		client.Join()
	})
	return client
}

func TestEngineClient_StartQueriesVersion(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := startClient(t, engine, ClientOptions{Name: "black"})

	assert.Equal(t, gtp.StateReady, client.State())
	assert.True(t, client.IsReady())
	assert.Equal(t, "0.17", client.Version())
	assert.Equal(t, DefaultBoardSize, client.BoardSize())
	assert.Equal(t, []string{"version"}, engine.Commands())
}

func TestEngineClient_SendSync(t *testing.T) {
	engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{
		"bogus": {Fail: true, Payload: "unknown command"},
	}))
	client := startClient(t, engine, ClientOptions{})

	t.Run("success moves to running", func(t *testing.T) {
		resp, err := client.SendSync(context.Background(), "boardsize 9")
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.Equal(t, "boardsize 9", resp.Payload)
		assert.Equal(t, gtp.StateRunning, client.State())
		assert.Equal(t, 9, client.BoardSize())
	})

	t.Run("failure is a normal result", func(t *testing.T) {
		resp, err := client.SendSync(context.Background(), "bogus")
		require.NoError(t, err)
		assert.Equal(t, gtp.StatusFailure, resp.Status)
		assert.Equal(t, "unknown command", resp.Payload)
		assert.ErrorIs(t, resp.Err(), errs.ErrProtocolFailure)
		assert.True(t, client.IsReady())
	})
}

func TestEngineClient_ResponsesMatchTheirCommands(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := startClient(t, engine, ClientOptions{})

	const workers, perWorker = 4, 25
	var wg sync.WaitGroup
	mismatches := make(chan string, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				command := fmt.Sprintf("play b %d-%d", w, i)
				resp, err := client.SendSync(context.Background(), command)
				if err != nil || resp.Payload != command {
					mismatches <- fmt.Sprintf("%s -> %q (%v)", command, resp.Payload, err)
				}
			}
		}(w)
	}
	wg.Wait()
	close(mismatches)

	for m := range mismatches {
		t.Errorf("misattributed response: %s", m)
	}
	assert.Len(t, engine.Commands(), 1+workers*perWorker)
}

func TestEngineClient_OneCommandOutstanding(t *testing.T) {
	const delay = 50 * time.Millisecond
	engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{
		"genmove b": {Payload: "D4", Delay: delay},
	}))
	client := startClient(t, engine, ClientOptions{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := client.SendSync(context.Background(), "genmove b")
		assert.NoError(t, err)
		assert.Equal(t, "D4", resp.Payload)
	}()

	// let the slow command reach the engine first
	require.Eventually(t, func() bool { return len(engine.Commands()) == 2 }, time.Second, time.Millisecond)
	resp, err := client.SendSync(context.Background(), "clear_board")
	require.NoError(t, err)
	assert.Equal(t, "clear_board", resp.Payload)
	wg.Wait()

	received := engine.Received()
	require.Len(t, received, 3)
	assert.Equal(t, "genmove b", received[1].Text)
	assert.Equal(t, "clear_board", received[2].Text)
	assert.GreaterOrEqual(t, received[2].At.Sub(received[1].At), delay)
}

func TestEngineClient_ObserversSeeEveryLineInOrder(t *testing.T) {
	engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{
		"genmove w": {Payload: "Q16", Before: []string{"Thinking at most 10.0 seconds...", "NN eval=0.48"}},
	}))
	client := startClient(t, engine, ClientOptions{})

	var mu sync.Mutex
	var lines []string
	client.SubscribeOutput(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})

	resp, err := client.SendSync(context.Background(), "genmove w")
	require.NoError(t, err)
	assert.Equal(t, "Q16", resp.Payload)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Thinking at most 10.0 seconds...", "NN eval=0.48", "= Q16", ""}, lines)
}

func TestEngineClient_EngineCrash(t *testing.T) {
	engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{
		"genmove b": {Crash: true},
	}))
	client := startClient(t, engine, ClientOptions{})

	_, err := client.SendSync(context.Background(), "genmove b")
	require.ErrorIs(t, err, errs.ErrProcessTerminated)

	client.Join()
	assert.Equal(t, gtp.StateFailed, client.State())

	_, err = client.SendSync(context.Background(), "clear_board")
	assert.ErrorIs(t, err, errs.ErrNotReady)
	assert.ErrorIs(t, err, errs.ErrProcessTerminated)
	assert.ErrorIs(t, client.SendAsync("clear_board"), errs.ErrNotReady)
}

func TestEngineClient_StartFailures(t *testing.T) {
	t.Run("version check times out", func(t *testing.T) {
		engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{"version": {Silent: true}}))
		client := NewEngineClient(zap.NewNop().Sugar(), ClientOptions{Spawn: engine.Spawner()})

		err := client.Start(context.Background(), "leelaz", "", 50*time.Millisecond)
		require.ErrorIs(t, err, errs.ErrStartupTimeout)
		assert.Equal(t, gtp.StateFailed, client.State())
		client.Join()
	})

	t.Run("engine exits before answering", func(t *testing.T) {
		engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{"version": {Crash: true}}))
		client := NewEngineClient(zap.NewNop().Sugar(), ClientOptions{Spawn: engine.Spawner()})

		err := client.Start(context.Background(), "leelaz", "", time.Second)
		require.ErrorIs(t, err, errs.ErrProcessTerminated)
		client.Join()
		assert.Equal(t, gtp.StateFailed, client.State())
	})

	t.Run("no host engine", func(t *testing.T) {
		client := NewEngineClient(zap.NewNop().Sugar(), ClientOptions{})
		err := client.Start(context.Background(), "0", "", time.Second)
		require.ErrorIs(t, err, errs.ErrSpawn)
		assert.ErrorIs(t, err, errs.ErrNoHostEngine)
		assert.Equal(t, gtp.StateFailed, client.State())
	})

	t.Run("started twice", func(t *testing.T) {
		engine := gtptest.NewEngine(echo(nil))
		client := startClient(t, engine, ClientOptions{})
		err := client.Start(context.Background(), "leelaz", "", time.Second)
		assert.ErrorIs(t, err, errs.ErrNotReady)
	})
}

func TestEngineClient_HostEngine(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := NewEngineClient(zap.NewNop().Sugar(), ClientOptions{Host: engine.Spawner()})

	require.NoError(t, client.Start(context.Background(), "", "", time.Second))
	defer client.Join()
	defer client.Terminate()
	assert.True(t, client.IsReady())
}

func TestEngineClient_TimeoutFailsClient(t *testing.T) {
	engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{
		"genmove b": {Payload: "D4", Delay: 150 * time.Millisecond},
	}))
	client := startClient(t, engine, ClientOptions{CommandTimeout: 30 * time.Millisecond})

	_, err := client.SendSync(context.Background(), "genmove b")
	require.ErrorIs(t, err, errs.ErrCommandTimeout)
	assert.Equal(t, gtp.StateFailed, client.State())

	_, err = client.SendSync(context.Background(), "play w Q16")
	assert.ErrorIs(t, err, errs.ErrNotReady)
	assert.ErrorIs(t, err, errs.ErrProcessTerminated)
	assert.ErrorIs(t, client.SendAsync("name"), errs.ErrNotReady)

	client.Join()
	assert.NotContains(t, engine.Commands(), "play w Q16")
}

func TestEngineClient_ContextCancel(t *testing.T) {
	engine := gtptest.NewEngine(echo(map[string]gtptest.Reply{
		"genmove b": {Payload: "D4", Delay: 100 * time.Millisecond},
	}))
	client := startClient(t, engine, ClientOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.SendSync(ctx, "genmove b")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errs.ErrCommandTimeout)
	assert.Equal(t, gtp.StateFailed, client.State())

	_, err = client.SendSync(context.Background(), "showboard")
	assert.ErrorIs(t, err, errs.ErrNotReady)
}

func TestEngineClient_RejectsMalformedCommands(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := startClient(t, engine, ClientOptions{})

	for _, command := range []string{"name\nboardsize 9", "boardsize 9\r\n", "", "# just a note", "  # komi 6.5"} {
		_, err := client.SendSync(context.Background(), command)
		assert.ErrorIs(t, err, errs.ErrMalformedCommand, "%q", command)
	}
	assert.ErrorIs(t, client.SendAsync("quit\nname"), errs.ErrMalformedCommand)
	assert.ErrorIs(t, client.SendAsync("# bye"), errs.ErrMalformedCommand)

	resp, err := client.SendSync(context.Background(), "genmove b")
	require.NoError(t, err)
	assert.Equal(t, "genmove b", resp.Payload)
	assert.Equal(t, DefaultBoardSize, client.BoardSize())
	assert.True(t, client.IsReady())
	assert.Equal(t, []string{"version", "genmove b"}, engine.Commands())
}

func TestEngineClient_StripsComments(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := startClient(t, engine, ClientOptions{CommandTimeout: time.Second})

	resp, err := client.SendSync(context.Background(), "boardsize 13 # small board")
	require.NoError(t, err)
	assert.Equal(t, "boardsize 13", resp.Payload)
	assert.Equal(t, 13, client.BoardSize())

	resp, err = client.SendSync(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "name", resp.Payload)
	assert.Equal(t, []string{"version", "boardsize 13", "name"}, engine.Commands())
}

func TestEngineClient_WaitQuit(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := NewEngineClient(zap.NewNop().Sugar(), ClientOptions{Spawn: engine.Spawner()})
	require.NoError(t, client.Start(context.Background(), "leelaz", "", time.Second))

	code, err := client.WaitQuit()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, gtp.StateExited, client.State())
	assert.Equal(t, "quit", engine.Commands()[len(engine.Commands())-1])

	_, err = client.SendSync(context.Background(), "clear_board")
	assert.ErrorIs(t, err, errs.ErrNotReady)
	assert.NotErrorIs(t, err, errs.ErrProcessTerminated)
}

func TestEngineClient_AsyncResponsesReachObserversOnly(t *testing.T) {
	engine := gtptest.NewEngine(echo(nil))
	client := startClient(t, engine, ClientOptions{})

	var mu sync.Mutex
	var lines []string
	client.SubscribeOutput(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})

	require.NoError(t, client.SendAsync("time_left b 10 0"))
	resp, err := client.SendSync(context.Background(), "genmove b")
	require.NoError(t, err)
	assert.Equal(t, "genmove b", resp.Payload)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "= time_left b 10 0", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "= genmove b"))
}

func TestEngineClient_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	engine := gtptest.NewEngine(echo(nil))
	client := startClient(t, engine, ClientOptions{Name: "white", Metrics: m})

	_, err := client.SendSync(context.Background(), "genmove w")
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["lzui_gtp_commands_total"])
	assert.True(t, names["lzui_engine_lines_total"])
}

func TestEngineClient_LogsDiscardedResponses(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	engine := gtptest.NewEngine(echo(nil))
	client := NewEngineClient(zap.New(core).Sugar(), ClientOptions{Name: "white", Spawn: engine.Spawner()})
	require.NoError(t, client.Start(context.Background(), "leelaz", "", time.Second))
	t.Cleanup(func() {
		_ = client.Terminate()
		client.Join()
	})

	require.NoError(t, client.SendAsync("komi 6.5"))
	_, err := client.SendSync(context.Background(), "clear_board")
	require.NoError(t, err)

	discarded := logs.FilterMessage("discarding response without waiter").All()
	require.Len(t, discarded, 1)
	fields := discarded[0].ContextMap()
	assert.Equal(t, "white", fields["engine"])
	assert.Equal(t, "komi 6.5", fields["cmd"])
	assert.Equal(t, "komi 6.5", fields["payload"])
}
