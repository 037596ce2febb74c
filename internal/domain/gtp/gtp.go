package gtp

import (
	"fmt"
	"strings"

	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusFailure {
		return "failure"
	}
	return "success"
}

// Command is one outgoing request line. ID is assigned by the client when the
// command is written and matches the Response it produces.
type Command struct {
	ID   uint64
	Text string
}

// Name returns the command verb, e.g. "genmove" for "genmove b".
func (c Command) Name() string {
	fields := strings.Fields(c.Text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// PrepareCommand cleans text into exactly one command line: tabs become
// spaces, other control characters are dropped and a "#" comment is cut off.
// Text spanning several lines, or with nothing left to send, is rejected,
// since an engine answers neither.
func PrepareCommand(text string) (string, error) {
	if strings.ContainsAny(text, "\r\n") {
		return "", fmt.Errorf("%w: %q spans several lines", errs.ErrMalformedCommand, text)
	}
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, text)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q has no command", errs.ErrMalformedCommand, text)
	}
	return cleaned, nil
}

type Response struct {
	ID      uint64
	Status  Status
	Payload string
}

func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Err turns a failure response into an error for callers that treat it as fatal.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", errs.ErrProtocolFailure, r.Payload)
}

type ProcessState int

const (
	StateNotStarted ProcessState = iota
	StateStarting
	StateReady
	StateRunning
	StateExited
	StateFailed
)

var stateNames = map[ProcessState]string{
	StateNotStarted: "not_started",
	StateStarting:   "starting",
	StateReady:      "ready",
	StateRunning:    "running",
	StateExited:     "exited",
	StateFailed:     "failed",
}

func (s ProcessState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Accepting reports whether commands may be sent in this state.
func (s ProcessState) Accepting() bool {
	return s == StateReady || s == StateRunning
}

// Terminal reports whether the state can never change again.
func (s ProcessState) Terminal() bool {
	return s == StateExited || s == StateFailed
}
