package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liverex/leela-zero-ui/internal/bootstrap"
	"github.com/liverex/leela-zero-ui/internal/domain/game"
	"github.com/liverex/leela-zero-ui/internal/repository"
	"github.com/liverex/leela-zero-ui/internal/usecase/record"
	"github.com/liverex/leela-zero-ui/internal/usecase/tournament"
)

var (
	matchColor    string
	matchMoves    string
	matchName     string
	matchTraining bool
)

var matchCmd = &cobra.Command{
	Use:   "match <engine command line>",
	Short: "Play one engine against scripted opponent moves",
	Long: `match starts an engine as a tournament client and plays it against a list
of opponent vertices, one per line, read from --moves or stdin. Blank lines and
lines starting with # are skipped. The finished game is written to --record,
replacing what the file held.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMatch,
}

func init() {
	flags := matchCmd.Flags()
	flags.StringVar(&matchColor, "color", "b", "color the engine plays")
	flags.StringVar(&matchMoves, "moves", "-", "file with the opponent's moves, - for stdin")
	flags.StringVar(&matchName, "name", "match", "base name of the files the engine writes")
	flags.BoolVar(&matchTraining, "training", false, "have the engine dump training data after the game")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap.Load(v, cfgPath)
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg.Debug)
	defer logger.Sync()

	engineColor, ok := game.ParseColor(matchColor)
	if !ok {
		return fmt.Errorf("unknown color %q", matchColor)
	}
	var moves io.Reader = os.Stdin
	if matchMoves != "-" {
		f, err := os.Open(matchMoves)
		if err != nil {
			return err
		}
		defer f.Close()
		moves = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, logger)

	app := &application{cfg: cfg, log: logger}
	client := app.newClient("match")
	g := tournament.NewGame(logger, client, args[0], matchName)
	if err := g.GameStart(ctx, cfg.MinVersion); err != nil {
		_ = client.Terminate()
		return err
	}
	defer func() {
		if err := g.GameQuit(); err != nil {
			logger.Warnf("engine did not exit cleanly: %v", err)
		}
	}()

	for _, command := range []string{fmt.Sprintf("boardsize %d", cfg.BoardSize), "clear_board", fmt.Sprintf("komi %.1f", cfg.Komi)} {
		resp, err := client.SendSync(ctx, command)
		if err != nil {
			return err
		}
		if !resp.OK() {
			return fmt.Errorf("%s: %w", command, resp.Err())
		}
	}

	match := tournament.NewMatch(logger, g, tournament.NewLineOpponent(moves), engineColor, nil)
	rec, err := match.Play(ctx, cfg.Komi)
	if err != nil {
		return ignoreShutdown(err)
	}
	logger.Infof("game over: %s", g.Result())

	if matchTraining {
		if err := g.DumpTraining(ctx); err != nil {
			logger.Warnf("dump training: %v", err)
		}
	}
	return repository.NewFileRecordStore(cfg.RecordFile, record.Encode, logger).Save(ctx, rec)
}
