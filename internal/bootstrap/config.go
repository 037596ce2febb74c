package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

type Mode string

const (
	ModeAdvisor  Mode = "advisor"
	ModeRelay    Mode = "gtp"
	ModeSelfPlay Mode = "selfplay"
)

// Config is built once at startup and handed to each component.
type Config struct {
	BoardSize      int      `mapstructure:"BOARD_SIZE"`
	Komi           float64  `mapstructure:"KOMI"`
	Players        []string `mapstructure:"PLAYERS"`
	PlayerArgs     []string `mapstructure:"PLAYER_ARGS"`
	SelfPlay       bool     `mapstructure:"SELFPLAY"`
	Advisor        bool     `mapstructure:"ADVISOR"`
	AdvisorSim     bool     `mapstructure:"ADVISOR_SIM"`
	ComputerBlack  bool     `mapstructure:"COMPUTER_BLACK"`
	AdvisorInit    []string `mapstructure:"ADVISOR_INIT"`
	Games          int      `mapstructure:"GAMES"`
	MinVersion     string   `mapstructure:"MIN_VERSION"`
	WorkDir        string   `mapstructure:"WORK_DIR"`
	EmbeddedEngine string   `mapstructure:"EMBEDDED_ENGINE"`
	Weights        string   `mapstructure:"WEIGHTS"`
	EngineArgs     []string `mapstructure:"ENGINE_ARGS"`

	StartupTimeout time.Duration `mapstructure:"STARTUP_TIMEOUT"`
	CommandTimeout time.Duration `mapstructure:"COMMAND_TIMEOUT"`

	RecordFile    string        `mapstructure:"RECORD_FILE"`
	RedisUrl      string        `mapstructure:"REDIS_URL"`
	RecordTTL     time.Duration `mapstructure:"RECORD_TTL"`
	MongoUri      string        `mapstructure:"MONGO_URI"`
	MongoDatabase string        `mapstructure:"MONGO_DATABASE"`

	HttpAddr string `mapstructure:"HTTP_ADDR"`
	GrpcAddr string `mapstructure:"GRPC_ADDR"`
	Debug    bool   `mapstructure:"DEBUG"`
}

const EnvPrefix = "LZUI"

func setDefaults(v *viper.Viper) {
	v.SetDefault("BOARD_SIZE", 19)
	v.SetDefault("KOMI", 7.5)
	v.SetDefault("PLAYERS", []string{})
	v.SetDefault("PLAYER_ARGS", []string{})
	v.SetDefault("ADVISOR_INIT", []string{"time_settings 1800 15 1"})
	v.SetDefault("COMPUTER_BLACK", true)
	v.SetDefault("GAMES", 1)
	v.SetDefault("MIN_VERSION", "0.0.0")
	v.SetDefault("EMBEDDED_ENGINE", "./leelaz -g")
	v.SetDefault("ENGINE_ARGS", []string{})
	v.SetDefault("STARTUP_TIMEOUT", 40*time.Second)
	v.SetDefault("COMMAND_TIMEOUT", time.Duration(0))
	v.SetDefault("RECORD_FILE", "selfplay.sgf")
	v.SetDefault("MONGO_DATABASE", "leelaz_ui")
}

// Setup reads cfgPath (when it exists) and LZUI_* environment variables.
func Setup(cfgPath string) (*Config, error) {
	return Load(viper.New(), cfgPath)
}

// Load is Setup on a caller-provided viper, so command line flags bound to it
// take precedence.
func Load(v *viper.Viper, cfgPath string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Players = NormalizePlayers(cfg.Players, cfg.Weights, cfg.PlayerArgs)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NormalizePlayers expands weights-file shorthands, treats a lone weights
// option as the embedded engine and appends the passthrough arguments to every
// launched player.
func NormalizePlayers(players []string, weights string, extra []string) []string {
	out := make([]string, 0, len(players)+1)
	for _, p := range players {
		p = strings.TrimSpace(p)
		if !strings.Contains(p, " ") && strings.Contains(p, ".txt") {
			p = "./leelaz -g -w " + p
		}
		out = append(out, p)
	}
	if len(out) == 0 && weights != "" {
		out = append(out, "0")
	}
	if len(extra) > 0 {
		suffix := " " + strings.Join(extra, " ")
		for i, p := range out {
			if p != "0" {
				out[i] = p + suffix
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.BoardSize < 2 || c.BoardSize > 25 {
		return fmt.Errorf("board size %d out of range", c.BoardSize)
	}
	if c.Games < 1 {
		return fmt.Errorf("games must be positive, got %d", c.Games)
	}
	if len(c.Players) > 2 {
		return fmt.Errorf("%w: at most two players, got %d", errs.ErrUnknownMode, len(c.Players))
	}
	return nil
}

// Mode picks the run mode: two players or --selfplay play each other, an
// explicit advisor flag or no player at all runs the advisor, and a single
// player is relayed to the terminal.
func (c *Config) Mode() Mode {
	switch {
	case len(c.Players) > 1 || c.SelfPlay:
		return ModeSelfPlay
	case c.Advisor || c.AdvisorSim || len(c.Players) == 0:
		return ModeAdvisor
	default:
		return ModeRelay
	}
}

// EmbeddedCommandLine is what the "0" player launches.
func (c *Config) EmbeddedCommandLine() string {
	parts := []string{c.EmbeddedEngine}
	if c.Weights != "" {
		parts = append(parts, "-w", c.Weights)
	}
	parts = append(parts, c.EngineArgs...)
	return strings.Join(parts, " ")
}

// Player returns the command line of player i, or "" for the embedded engine.
func (c *Config) Player(i int) string {
	if i >= len(c.Players) {
		return ""
	}
	return c.Players[i]
}
