package tournament

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liverex/leela-zero-ui/internal/domain/game"
	"github.com/liverex/leela-zero-ui/internal/domain/gtp"
	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

const (
	StartupTimeout      = 50 * time.Second
	DefaultTimeSettings = "time_settings 0 1 0"
)

// Client is the protocol client a tournament session drives.
type Client interface {
	Name() string
	Start(ctx context.Context, commandLine, workDir string, startupTimeout time.Duration) error
	SendSync(ctx context.Context, command string) (gtp.Response, error)
	SendAsync(command string) error
	Version() string
	IsReady() bool
	BoardSize() int
	WaitQuit() (int, error)
}

// Game is one engine session inside a tournament game. It tracks whose turn
// it is and how the game ends; the moves themselves live in the engine.
type Game struct {
	client       Client
	log          *zap.SugaredLogger
	commandLine  string
	fileName     string
	timeSettings string

	winner        game.Winner
	result        string
	resigned      bool
	resignedColor game.Color
	blackToMove   bool
	passes        int
	moveNum       int
}

func NewGame(log *zap.SugaredLogger, client Client, commandLine, fileName string) *Game {
	return &Game{
		client:       client,
		log:          log,
		commandLine:  commandLine,
		fileName:     fileName,
		timeSettings: DefaultTimeSettings,
		winner:       game.WinnerNone,
		blackToMove:  true,
	}
}

// GameStart launches the engine, checks it is at least minVersion and gives
// it unlimited thinking time.
func (g *Game) GameStart(ctx context.Context, minVersion string) error {
	if err := g.client.Start(ctx, g.commandLine, "", StartupTimeout); err != nil {
		return fmt.Errorf("cannot start engine: %w", err)
	}
	if !g.client.IsReady() {
		return fmt.Errorf("%w: %s", errs.ErrNotReady, g.client.Name())
	}
	if err := CheckVersion(g.client.Version(), minVersion); err != nil {
		return err
	}
	g.log.Infof("engine %s has started", g.client.Version())

	if err := g.send(ctx, g.timeSettings); err != nil {
		return err
	}
	g.log.Info("infinite thinking time set")
	return nil
}

// ParseVersion reads "major.minor.patch"; missing components are zero.
func ParseVersion(version string) ([3]int, error) {
	var parts [3]int
	fields := strings.Split(strings.TrimSpace(version), ".")
	if len(fields) > 3 {
		fields = fields[:3]
	}
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return parts, fmt.Errorf("%w: %q", errs.ErrInvalidVersionText, version)
		}
		parts[i] = n
	}
	return parts, nil
}

// CheckVersion fails with ErrVersionTooOld when version is below minVersion.
func CheckVersion(version, minVersion string) error {
	have, err := ParseVersion(version)
	if err != nil {
		return err
	}
	want, err := ParseVersion(minVersion)
	if err != nil {
		return err
	}
	diff := (have[0]-want[0])*10000 + (have[1]-want[1])*100 + have[2] - want[2]
	if diff < 0 {
		return fmt.Errorf("%w: saw %s but expected %s", errs.ErrVersionTooOld, version, minVersion)
	}
	return nil
}

func (g *Game) send(ctx context.Context, command string) error {
	resp, err := g.client.SendSync(ctx, command)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%s: %w", command, resp.Err())
	}
	return nil
}

func (g *Game) LoadSgf(ctx context.Context, name string) error {
	g.log.Infof("loading %s.sgf", name)
	return g.send(ctx, "loadsgf "+name+".sgf")
}

func (g *Game) LoadTraining(ctx context.Context, name string) error {
	g.log.Infof("loading %s.train", name)
	return g.send(ctx, "load_training "+name+".train")
}

func (g *Game) SaveTraining(ctx context.Context) error {
	g.log.Infof("saving %s.train", g.fileName)
	return g.send(ctx, "save_training "+g.fileName+".train")
}

func (g *Game) WriteSgf(ctx context.Context) error {
	return g.send(ctx, "printsgf "+g.fileName+".sgf")
}

func (g *Game) DumpTraining(ctx context.Context) error {
	return g.send(ctx, "dump_training "+string(g.winner)+" "+g.fileName+".txt")
}

func (g *Game) DumpDebug(ctx context.Context) error {
	return g.send(ctx, "dump_debug "+g.fileName+".debug.txt")
}

// Move asks the engine for the side to move and returns the vertex. The turn
// does not pass until NextMove.
func (g *Game) Move(ctx context.Context) (string, error) {
	g.moveNum++
	color := g.SideToMove()
	resp, err := g.client.SendSync(ctx, "genmove "+color.GTP())
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("genmove %s: %w", color.GTP(), resp.Err())
	}

	switch strings.ToLower(resp.Payload) {
	case "pass":
		g.passes++
	case "resign":
		g.resigned = true
		g.resignedColor = color
	default:
		g.passes = 0
	}
	return resp.Payload, nil
}

// SetMove sends a move command such as "play black D4". It reports false
// without changing any state when the engine rejects it.
func (g *Game) SetMove(ctx context.Context, command string) (bool, error) {
	resp, err := g.client.SendSync(ctx, command)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		g.log.Warnf("engine refused %q: %s", command, resp.Payload)
		return false, nil
	}

	g.moveNum++
	switch {
	case strings.Contains(command, "pass"):
		g.passes++
	case strings.Contains(command, "resign"):
		g.resigned = true
		g.resignedColor = game.White
		if fields := strings.Fields(command); len(fields) > 1 {
			if c, ok := game.ParseColor(fields[1]); ok {
				g.resignedColor = c
			}
		}
	default:
		g.passes = 0
	}
	g.blackToMove = !g.blackToMove
	return true, nil
}

// CheckGameEnd reports a resignation, two passes in a row or an overlong game.
func (g *Game) CheckGameEnd() bool {
	return g.resigned || g.passes > 1 || g.moveNum > game.MoveCap(g.client.BoardSize())
}

// NextMove hands the turn over unless the game has ended.
func (g *Game) NextMove() bool {
	if g.CheckGameEnd() {
		return false
	}
	g.blackToMove = !g.blackToMove
	return true
}

// SetMovesCount is used after loading a game with n moves already played.
func (g *Game) SetMovesCount(n int) {
	g.moveNum = n
	g.blackToMove = n%2 == 0
}

func (g *Game) SideToMove() game.Color {
	if g.blackToMove {
		return game.Black
	}
	return game.White
}

func (g *Game) MoveNum() int {
	return g.moveNum
}

// GetScore settles the result, asking the engine to count unless somebody
// resigned.
func (g *Game) GetScore(ctx context.Context) (game.MatchResult, error) {
	var result game.MatchResult
	if g.resigned {
		result = game.ResignationResult(g.resignedColor)
	} else {
		resp, err := g.client.SendSync(ctx, "final_score")
		if err != nil {
			return game.MatchResult{}, err
		}
		if !resp.OK() {
			return game.MatchResult{}, fmt.Errorf("final_score: %w", resp.Err())
		}
		cause := game.CauseScore
		switch {
		case g.passes > 1:
			cause = game.CauseDoublePass
		case g.moveNum > game.MoveCap(g.client.BoardSize()):
			cause = game.CauseMoveCap
		}
		result = game.MatchResult{
			Winner: game.WinnerFromScore(resp.Payload),
			Cause:  cause,
			Score:  resp.Payload,
		}
	}

	g.winner = result.Winner
	g.result = result.Score
	if g.winner == game.WinnerNone {
		g.log.Warnf("no winner found in score %q", result.Score)
	} else {
		g.log.Infof("score: %s, winner: %s", result.Score, result.Winner)
	}
	return result, nil
}

func (g *Game) Winner() game.Winner {
	return g.winner
}

func (g *Game) Result() string {
	return g.result
}

// GameQuit sends quit and waits for the engine to exit.
func (g *Game) GameQuit() error {
	if g.client.IsReady() {
		if err := g.client.SendAsync("quit"); err != nil {
			g.log.Warnf("failed to send quit: %v", err)
		}
	}
	_, err := g.client.WaitQuit()
	return err
}
