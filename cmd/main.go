package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/liverex/leela-zero-ui/internal/adapters"
	"github.com/liverex/leela-zero-ui/internal/bootstrap"
	"github.com/liverex/leela-zero-ui/internal/delivery/board"
	"github.com/liverex/leela-zero-ui/internal/metrics"
	"github.com/liverex/leela-zero-ui/internal/repository"
	"github.com/liverex/leela-zero-ui/internal/usecase/advisor"
	"github.com/liverex/leela-zero-ui/internal/usecase/record"
	"github.com/liverex/leela-zero-ui/internal/usecase/relay"
	"github.com/liverex/leela-zero-ui/internal/usecase/selfplay"
	relayRPC "github.com/liverex/leela-zero-ui/microservices/proto"
	"github.com/liverex/leela-zero-ui/microservices/usecase"
)

var (
	cfgPath string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "leelaz-ui [player1] [player2] [-- engine options]",
	Short: "Terminal and web front end for GTP Go engines",
	Long: `leelaz-ui drives GTP engines such as Leela Zero.

With no player it runs the embedded engine as an advisor, with one player it
relays the terminal to that engine and with two players (or --selfplay) the
engines play each other and the games are written as SGF.

A player is a full command line, a weights file ending in .txt, or 0 for the
embedded engine.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgPath, "config", ".env", "config file")
	flags.Int("size", 19, "board size")
	flags.Float64("komi", 7.5, "komi")
	flags.Bool("selfplay", false, "let the engine play itself")
	flags.Bool("advisor", false, "run the advisor against the embedded engine")
	flags.Bool("advisor-sim", false, "advisor only indicates its moves")
	flags.Bool("computer-black", true, "advisor plays black")
	flags.StringArray("player", nil, "player command line, may be repeated")
	flags.Int("games", 1, "number of self-play games")
	flags.String("min-version", "0.0.0", "oldest engine version a match accepts")
	flags.StringP("weights", "w", "", "weights file for the embedded engine")
	flags.String("workdir", "", "working directory for launched engines")
	flags.String("record", "selfplay.sgf", "SGF file self-play games are written to")
	flags.Duration("startup-timeout", 40*time.Second, "time an engine has to answer version")
	flags.Duration("command-timeout", 0, "time an engine has to answer a command, 0 waits forever")
	flags.String("redis", "", "redis URL self-play records are also stored in")
	flags.String("mongo", "", "mongodb URI self-play records are archived in")
	flags.String("http", "", "address of the board server, empty disables it")
	flags.String("grpc", "", "address of the relay gRPC server, empty disables it")
	flags.Bool("debug", false, "development logging")

	bindings := map[string]string{
		"BOARD_SIZE":      "size",
		"KOMI":            "komi",
		"SELFPLAY":        "selfplay",
		"ADVISOR":         "advisor",
		"ADVISOR_SIM":     "advisor-sim",
		"COMPUTER_BLACK":  "computer-black",
		"GAMES":           "games",
		"MIN_VERSION":     "min-version",
		"REDIS_URL":       "redis",
		"MONGO_URI":       "mongo",
		"WEIGHTS":         "weights",
		"WORK_DIR":        "workdir",
		"RECORD_FILE":     "record",
		"STARTUP_TIMEOUT": "startup-timeout",
		"COMMAND_TIMEOUT": "command-timeout",
		"HTTP_ADDR":       "http",
		"GRPC_ADDR":       "grpc",
		"DEBUG":           "debug",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(matchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type application struct {
	cfg     *bootstrap.Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	hub     *board.Hub
}

// loadConfig turns positional arguments into players; everything after "--"
// is passed to every launched engine.
func loadConfig(cmd *cobra.Command, args []string) (*bootstrap.Config, error) {
	players, extra := args, []string(nil)
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		players, extra = args[:dash], args[dash:]
	}
	flagged, err := cmd.Flags().GetStringArray("player")
	if err != nil {
		return nil, err
	}
	players = append(flagged, players...)
	if len(players) > 0 {
		v.Set("PLAYERS", players)
	}
	if len(extra) > 0 {
		v.Set("PLAYER_ARGS", extra)
	}
	return bootstrap.Load(v, cfgPath)
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg.Debug)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, logger)

	app := &application{
		cfg:     cfg,
		log:     logger,
		metrics: metrics.New(),
		hub:     board.NewHub(logger),
	}

	mode := cfg.Mode()
	logger.Infow("starting", "mode", mode, "players", cfg.Players)
	switch mode {
	case bootstrap.ModeSelfPlay:
		return app.runSelfPlay(ctx)
	case bootstrap.ModeAdvisor:
		return app.runAdvisor(ctx)
	default:
		return app.runRelay(ctx)
	}
}

func (a *application) newClient(name string) *repository.EngineClient {
	return repository.NewEngineClient(a.log, repository.ClientOptions{
		Name: name,
		Host: func(_, workDir string) (adapters.Process, error) {
			return adapters.Spawn(a.cfg.EmbeddedCommandLine(), workDir, a.log.With("engine", name))
		},
		CommandTimeout: a.cfg.CommandTimeout,
		Metrics:        a.metrics,
	})
}

func (a *application) startClient(ctx context.Context, name string) (*repository.EngineClient, error) {
	client := a.newClient(name)
	client.SubscribeOutput(func(line string) {
		fmt.Println(line)
		a.hub.Output(line)
	})
	if err := client.Start(ctx, a.cfg.Player(0), a.cfg.WorkDir, a.cfg.StartupTimeout); err != nil {
		return nil, fmt.Errorf("cannot start engine: %w", err)
	}
	if a.cfg.BoardSize != repository.DefaultBoardSize {
		resp, err := client.SendSync(ctx, fmt.Sprintf("boardsize %d", a.cfg.BoardSize))
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			return nil, fmt.Errorf("boardsize %d: %w", a.cfg.BoardSize, resp.Err())
		}
	}
	return client, nil
}

func (a *application) runRelay(ctx context.Context) error {
	client, err := a.startClient(ctx, "engine")
	if err != nil {
		return err
	}

	stopHTTP := a.serveBoard(nil, client.BoardSize, nil)
	defer stopHTTP()
	stopGRPC, err := a.serveRelay(client)
	if err != nil {
		return err
	}
	defer stopGRPC()

	console := relay.NewConsole(a.log, client, a.hub.Toggle)
	runErr := untilDone(ctx, func() error { return console.Run(ctx, os.Stdin) })
	a.quit(client)
	return ignoreShutdown(runErr)
}

func (a *application) runAdvisor(ctx context.Context) error {
	client, err := a.startClient(ctx, "advisor")
	if err != nil {
		return err
	}

	adv := advisor.New(a.log, client, advisor.Options{
		InitCommands: a.cfg.AdvisorInit,
		Simulate:     a.cfg.AdvisorSim,
		Observer:     a.hub,
		ToggleUI:     a.hub.Toggle,
	})
	stopHTTP := a.serveBoard(adv, client.BoardSize, nil)
	defer stopHTTP()

	if err := adv.Init(ctx); err != nil {
		a.quit(client)
		return err
	}
	if err := adv.Reset(ctx, a.cfg.ComputerBlack); err != nil {
		a.quit(client)
		return err
	}
	runErr := untilDone(ctx, func() error { return adv.Run(ctx, os.Stdin) })
	a.quit(client)
	return ignoreShutdown(runErr)
}

func (a *application) runSelfPlay(ctx context.Context) error {
	commandLines := append([]string{}, a.cfg.Players...)
	if len(commandLines) == 0 {
		commandLines = []string{""}
	}

	players := make([]selfplay.Player, 0, len(commandLines))
	clients := make([]*repository.EngineClient, 0, len(commandLines))
	for i := range commandLines {
		client := a.newClient(fmt.Sprintf("player%d", i+1))
		client.SubscribeOutput(a.hub.Output)
		clients = append(clients, client)
		players = append(players, client)
	}
	if err := selfplay.StartPlayers(ctx, players, commandLines, a.cfg.WorkDir, a.cfg.StartupTimeout); err != nil {
		for _, c := range clients {
			_ = c.Terminate()
		}
		return err
	}
	defer selfplay.QuitPlayers(a.log, players)

	stores := a.openRecordStores(ctx)
	defer stores.Close()

	stopHTTP := a.serveBoard(nil, clients[0].BoardSize, stores)
	defer stopHTTP()

	var white selfplay.Engine
	if len(clients) > 1 {
		white = clients[1]
	}
	orchestrator := selfplay.NewOrchestrator(a.log, clients[0], white, selfplay.Options{
		BoardSize: a.cfg.BoardSize,
		Komi:      a.cfg.Komi,
		Observer:  a.hub,
		Sink:      stores.sinks,
		Metrics:   a.metrics,
	})
	records, err := orchestrator.Run(ctx, a.cfg.Games)
	a.log.Infof("played %d of %d games", len(records), a.cfg.Games)
	return ignoreShutdown(err)
}

type recordStores struct {
	sinks   repository.RecordSinks
	archive board.RecordArchive
	loader  board.RecordLoader
	closers []func()
}

func (s *recordStores) Close() {
	for _, c := range s.closers {
		c()
	}
}

// openRecordStores always writes the SGF file and adds redis and mongo stores
// when they are configured. The board serves archived games from them.
func (a *application) openRecordStores(ctx context.Context) *recordStores {
	stores := &recordStores{
		sinks: repository.RecordSinks{repository.NewFileRecordStore(a.cfg.RecordFile, record.Encode, a.log)},
	}

	if a.cfg.RedisUrl != "" {
		redisAdapter := adapters.NewAdapterRedis(a.cfg, a.log)
		if err := redisAdapter.Init(ctx); err != nil {
			a.log.Warnf("records will not be stored in redis: %v", err)
		} else {
			store := repository.NewRedisRecordStore(redisAdapter.GetClient(), record.Encode, a.cfg.RecordTTL, a.log)
			stores.sinks = append(stores.sinks, store)
			stores.loader = store
			stores.closers = append(stores.closers, func() { _ = redisAdapter.Close(context.Background()) })
		}
	}
	if a.cfg.MongoUri != "" {
		mongoAdapter := adapters.NewAdapterMongo(a.cfg, a.log)
		if err := mongoAdapter.Init(ctx); err != nil {
			a.log.Warnf("records will not be stored in mongodb: %v", err)
		} else {
			store := repository.NewMongoRecordStore(mongoAdapter.Database, record.Encode, a.log)
			stores.sinks = append(stores.sinks, store)
			stores.archive = store
			stores.closers = append(stores.closers, func() { _ = mongoAdapter.Close(context.Background()) })
		}
	}
	return stores
}

// serveBoard starts the board server when an address is configured.
func (a *application) serveBoard(controller board.Controller, boardSize func() int, stores *recordStores) func() {
	if a.cfg.HttpAddr == "" {
		return func() {}
	}
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	handler := board.NewBoardHandler(a.log, a.hub, controller, boardSize, a.metrics.Handler())
	if stores != nil {
		handler.WithRecords(stores.archive, stores.loader)
	}
	handler.Router(r)

	srv := &http.Server{Addr: a.cfg.HttpAddr, Handler: r}
	go func() {
		a.log.Infof("board server is running on %s", a.cfg.HttpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("board server stopped: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// serveRelay exposes the engine over gRPC when an address is configured.
func (a *application) serveRelay(client *repository.EngineClient) (func(), error) {
	if a.cfg.GrpcAddr == "" {
		return func() {}, nil
	}
	lis, err := net.Listen("tcp", a.cfg.GrpcAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", a.cfg.GrpcAddr, err)
	}
	server := grpc.NewServer()
	relayRPC.RegisterRelayServiceServer(server, usecase.NewRelayUseCase(client, a.log))
	go func() {
		a.log.Infof("relay server is running on %s", a.cfg.GrpcAddr)
		if err := server.Serve(lis); err != nil {
			a.log.Errorf("relay server stopped: %v", err)
		}
	}()
	return server.GracefulStop, nil
}

func (a *application) quit(client *repository.EngineClient) {
	code, err := client.WaitQuit()
	if err != nil {
		a.log.Warnf("%s did not exit cleanly: %v", client.Name(), err)
		return
	}
	a.log.Debugf("%s exited with code %d", client.Name(), code)
}

// untilDone returns when run does or ctx is cancelled, whichever comes
// first. A terminal read cannot be interrupted.
func untilDone(ctx context.Context, run func() error) error {
	errc := make(chan error, 1)
	go func() { errc <- run() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
}
