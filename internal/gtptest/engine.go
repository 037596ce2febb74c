// Package gtptest provides a scripted in-memory GTP engine for tests.
package gtptest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/liverex/leela-zero-ui/internal/adapters"
)

// Reply is how the engine answers one command.
type Reply struct {
	Payload string
	Fail    bool
	// Before lines are written ahead of the response block.
	Before []string
	Delay  time.Duration
	// Silent drops the command without any response.
	Silent bool
	// Crash closes the engine output instead of answering.
	Crash bool
}

type Handler func(command string) Reply

// Received is one command seen by the engine.
type Received struct {
	Text string
	At   time.Time
}

type Engine struct {
	handler Handler

	mu       sync.Mutex
	received []Received
}

func NewEngine(handler Handler) *Engine {
	return &Engine{handler: handler}
}

// Spawner launches a fresh scripted engine on each call.
func (e *Engine) Spawner() func(commandLine, workDir string) (adapters.Process, error) {
	return func(string, string) (adapters.Process, error) {
		return e.Process(), nil
	}
}

// Process starts the engine loop and returns the client side of its pipes.
func (e *Engine) Process() *adapters.StreamProcess {
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	go e.serve(cmdR, outW)
	return adapters.Attach(outR, cmdW, outR)
}

func (e *Engine) serve(in *io.PipeReader, out *io.PipeWriter) {
	defer out.Close()
	defer in.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		e.mu.Lock()
		e.received = append(e.received, Received{Text: text, At: time.Now()})
		e.mu.Unlock()

		if text == "quit" {
			_, _ = io.WriteString(out, "=\n\n")
			return
		}

		reply := e.handler(text)
		if reply.Delay > 0 {
			time.Sleep(reply.Delay)
		}
		for _, line := range reply.Before {
			if _, err := io.WriteString(out, line+"\n"); err != nil {
				return
			}
		}
		if reply.Crash {
			return
		}
		if reply.Silent {
			continue
		}
		marker := "="
		if reply.Fail {
			marker = "?"
		}
		if _, err := fmt.Fprintf(out, "%s %s\n\n", marker, reply.Payload); err != nil {
			return
		}
	}
}

// Received returns the commands seen so far, in order.
func (e *Engine) Received() []Received {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Received, len(e.received))
	copy(out, e.received)
	return out
}

// Commands returns the text of the commands seen so far.
func (e *Engine) Commands() []string {
	received := e.Received()
	out := make([]string, len(received))
	for i, r := range received {
		out[i] = r.Text
	}
	return out
}

// Leela answers the commands a self-play or tournament session sends. Moves
// are served from moves in order; "pass" once they run out. final_score
// returns score.
func Leela(version string, moves []string, score string) Handler {
	var mu sync.Mutex
	next := 0
	return func(command string) Reply {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return Reply{Fail: true, Payload: "empty command"}
		}
		switch fields[0] {
		case "version":
			return Reply{Payload: version}
		case "genmove":
			mu.Lock()
			defer mu.Unlock()
			if next >= len(moves) {
				return Reply{Payload: "pass"}
			}
			move := moves[next]
			next++
			return Reply{Payload: move}
		case "final_score":
			return Reply{Payload: score}
		case "boardsize", "clear_board", "komi", "play", "undo", "time_settings", "time_left":
			return Reply{}
		default:
			return Reply{Fail: true, Payload: "unknown command"}
		}
	}
}
