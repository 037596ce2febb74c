package selfplay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Player is a protocol client that can be launched and shut down.
type Player interface {
	Engine
	Start(ctx context.Context, commandLine, workDir string, startupTimeout time.Duration) error
	WaitQuit() (int, error)
}

// StartPlayers launches every player with its command line in parallel.
func StartPlayers(ctx context.Context, players []Player, commandLines []string, workDir string, startupTimeout time.Duration) error {
	if len(commandLines) < len(players) {
		return fmt.Errorf("%d players but %d command lines", len(players), len(commandLines))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range players {
		i, p := i, p
		g.Go(func() error {
			if err := p.Start(gctx, commandLines[i], workDir, startupTimeout); err != nil {
				return fmt.Errorf("cannot start player %d (%s): %w", i+1, commandLines[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}

// QuitPlayers asks every player to quit and waits for the processes to exit.
func QuitPlayers(log *zap.SugaredLogger, players []Player) {
	for _, p := range players {
		code, err := p.WaitQuit()
		if err != nil {
			log.Warnf("%s did not exit cleanly: %v", p.Name(), err)
			continue
		}
		log.Debugf("%s exited with code %d", p.Name(), code)
	}
}
