package errors

import "errors"

var (
	ErrSpawn              = errors.New("engine could not be launched")
	ErrPipeClosed         = errors.New("engine pipe is closed")
	ErrStartupTimeout     = errors.New("engine did not answer the readiness check in time")
	ErrProtocolFailure    = errors.New("engine rejected the command")
	ErrProcessTerminated  = errors.New("engine process terminated")
	ErrVersionTooOld      = errors.New("engine version is too old")
	ErrMalformedMove      = errors.New("malformed move")
	ErrNotReady           = errors.New("engine is not ready")
	ErrCommandTimeout     = errors.New("engine did not answer in time")
	ErrBoardSizeRejected  = errors.New("engine does not support board size")
	ErrCorrelatorBusy     = errors.New("a command is already waiting for its response")
	ErrNoHostEngine       = errors.New("no embedded engine is configured")
	ErrUnknownMode        = errors.New("unknown run mode")
	ErrOpponentExhausted  = errors.New("opponent has no more moves")
	ErrInvalidVersionText = errors.New("invalid version string")
	ErrMalformedCommand   = errors.New("malformed command")
	ErrRecordNotFound     = errors.New("record not found")
)
