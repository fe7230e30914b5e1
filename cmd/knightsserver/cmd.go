package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sdthompson1/knights-go/internal/config"
)

const releaseVersion = "0.1.0"

// defaultConfigPath matches spec.md §6's "-c <config> ... default
// knights_config.txt".
const defaultConfigPath = "knights_config.txt"

// cliConfig holds every flag the knightsserver binary accepts, bound
// through viper the same way Seednode-partybox's newCmd does, so every
// flag also has a KNIGHTS_-prefixed environment override.
type cliConfig struct {
	addr         string
	password     string
	motd         string
	description  string
	dataDir      string
	logFile      string
	maxGames     int
	maxPlayers   int
	configPath   string
	discoverable bool
	pingInterval int
	verbose      bool
	splitScreen  bool

	roomLookupAddr string
	roomCode       string

	// configPathExplicit distinguishes "-c was passed" from "using the
	// knights_config.txt default", so a missing default file is not
	// fatal but a missing explicitly-named one is.
	configPathExplicit bool
}

func (c *cliConfig) validate() error {
	if c.maxGames < 1 {
		return fmt.Errorf("invalid --max-games (must be >= 1): %d", c.maxGames)
	}
	if c.maxPlayers != 0 && c.maxPlayers < 2 {
		return fmt.Errorf("invalid --max-players (must be >= 2, or 0 for unlimited): %d", c.maxPlayers)
	}
	if c.pingInterval < 1 {
		return fmt.Errorf("invalid --ping-interval-seconds (must be >= 1): %d", c.pingInterval)
	}
	return nil
}

func newCmd(cfg *cliConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KNIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "knightsserver",
		Short:         "Dedicated Knights multiplayer dungeon-crawl server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.configPathExplicit = cmd.Flags().Changed("config")
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.addr, "addr", "a", ":16399", "address to listen on (env: KNIGHTS_ADDR)")
	fs.StringVar(&cfg.password, "password", "", "server join password, empty disables the check (env: KNIGHTS_PASSWORD)")
	fs.StringVar(&cfg.motd, "motd", "", "message of the day shown on join (env: KNIGHTS_MOTD)")
	fs.StringVar(&cfg.description, "description", "", "server description shown in LAN discovery (env: KNIGHTS_DESCRIPTION)")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "knights data directory handed to the resource loader (env: KNIGHTS_DATA_DIR)")
	fs.StringVar(&cfg.logFile, "log-file", "", "file to append log output to, instead of stderr (env: KNIGHTS_LOG_FILE)")
	fs.IntVar(&cfg.maxGames, "max-games", 8, "maximum number of concurrent games (env: KNIGHTS_MAX_GAMES)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 0, "maximum simultaneous connections, 0 for unlimited (env: KNIGHTS_MAX_PLAYERS)")
	fs.StringVarP(&cfg.configPath, "config", "c", defaultConfigPath, "path to knights_config.txt (env: KNIGHTS_CONFIG)")
	fs.BoolVar(&cfg.discoverable, "discoverable", true, "advertise this server on the LAN via mDNS (env: KNIGHTS_DISCOVERABLE)")
	fs.IntVar(&cfg.pingInterval, "ping-interval-seconds", 3, "ping sample cadence in seconds; checked to be >= 1 but not passed on, the host-migration cadence is migration.PingInterval (3s) (env: KNIGHTS_PING_INTERVAL_SECONDS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging (env: KNIGHTS_VERBOSE)")
	fs.BoolVar(&cfg.splitScreen, "allow-split-screen", true, "allow join-game-split-screen requests (spec.md §8 S3) (env: KNIGHTS_ALLOW_SPLIT_SCREEN)")
	fs.StringVar(&cfg.roomLookupAddr, "room-lookup-addr", "", "address:port of a cmd/roomlookup directory to self-register with, empty disables (env: KNIGHTS_ROOM_LOOKUP_ADDR)")
	fs.StringVar(&cfg.roomCode, "room-code", "", "short room code to register under, defaults to --description (env: KNIGHTS_ROOM_CODE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("knightsserver v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// configSchema lists the knights_config.txt keys spec.md §6 recognises;
// any other key is a fatal "unknown key at line N" error, per
// internal/config's strict-schema parsing.
func configSchema() config.Schema {
	return config.Schema{
		"Port":           {},
		"Description":    {},
		"MOTDFile":       {},
		"OldMOTDFile":    {},
		"MaxPlayers":     {},
		"MaxGames":       {},
		"UseBroadcast":   {},
		"KnightsDataDir": {},
		"LogFile":        {},
	}
}

// loadFileConfig reads knights_config.txt (spec.md §6's recognised key
// set) and applies it on top of the CLI flags. Description,
// KnightsDataDir, LogFile and the MOTD files only fill in values the
// flags left empty; Port, MaxPlayers, MaxGames and UseBroadcast, when
// present in the file, replace the flag values even if those flags were
// set explicitly. A missing default path is not an error; a missing
// explicitly-named one is.
func loadFileConfig(cfg *cliConfig) error {
	f, err := os.Open(cfg.configPath)
	if err != nil {
		if os.IsNotExist(err) && !cfg.configPathExplicit {
			return nil
		}
		return fmt.Errorf("opening %s: %w", cfg.configPath, err)
	}
	defer f.Close()

	parsed, err := config.Parse(f, configSchema())
	if err != nil {
		return err
	}

	if port, err := parsed.Int("Port"); err == nil {
		if err := applyPort(cfg, port); err != nil {
			return err
		}
	}
	if v, ok := parsed.String("Description"); ok && cfg.description == "" {
		cfg.description = v
	}
	if v, ok := parsed.String("KnightsDataDir"); ok && cfg.dataDir == "" {
		cfg.dataDir = v
	}
	if v, ok := parsed.String("LogFile"); ok && cfg.logFile == "" {
		cfg.logFile = v
	}
	if cfg.motd == "" {
		if v, ok := parsed.String("MOTDFile"); ok {
			if text, err := os.ReadFile(v); err == nil {
				cfg.motd = strings.TrimSpace(string(text))
			}
		} else if v, ok := parsed.String("OldMOTDFile"); ok {
			if text, err := os.ReadFile(v); err == nil {
				cfg.motd = strings.TrimSpace(string(text))
			}
		}
	}

	if n, err := parsed.Int("MaxPlayers"); err == nil {
		if n < 2 {
			return fmt.Errorf("%s: MaxPlayers must be >= 2, got %d", cfg.configPath, n)
		}
		cfg.maxPlayers = n
	}
	if n, err := parsed.Int("MaxGames"); err == nil {
		if n < 1 {
			return fmt.Errorf("%s: MaxGames must be >= 1, got %d", cfg.configPath, n)
		}
		cfg.maxGames = n
	}
	cfg.discoverable = parsed.BoolDefault("UseBroadcast", cfg.discoverable)
	return nil
}

// applyPort rewrites the host:port pair in cfg.addr to use port, since
// spec.md §6's Port key configures only the numeric port and the CLI's
// own --addr already carries an optional host.
func applyPort(cfg *cliConfig, port int) error {
	host, _, err := net.SplitHostPort(cfg.addr)
	if err != nil {
		host = ""
	}
	cfg.addr = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}
