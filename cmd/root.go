package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/Mohsinsiddi/txscan/internal/discover"
	"github.com/Mohsinsiddi/txscan/internal/logger"
	"github.com/Mohsinsiddi/txscan/internal/secrets"
	"github.com/Mohsinsiddi/txscan/internal/ui"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/txscan/cmd.Version=1.2.3" .
var Version = "0.1.0"

var (
	cfgDir   string
	cfg      *config.Config
	envCfg   config.Env // set by loadRegistry
	verbose  bool
	logLevel string
)

// openStore returns the endpoint keychain. Tests swap it for an in-memory ring.
var openStore = func(dir string) *secrets.Store {
	return secrets.DefaultStore(dir)
}

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "txscan",
	Short: "Recent wallet transactions across EVM chains",
	Long: `txscan finds the most recent transactions of a wallet on one or more
EVM chains by scanning the latest blocks of each chain's RPC endpoint.

Endpoints come from the environment (TXSCAN_ETHEREUM_RPC_URL,
TXSCAN_POLYGON_RPC_URL, TXSCAN_ARBITRUM_RPC_URL, TXSCAN_RPC_URLS), an
optional .env file, or the OS keychain (txscan config set-rpc).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := initLogging(cmd); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Debug("config loaded", "dir", cfg.Dir(), "selected_chain", cfg.SelectedChain)
		return nil
	},
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(chain.UserMessage(err)))
		stop()
		os.Exit(1)
	}
}

func init() {
	// TXSCAN_CONFIG_DIR env var overrides the default of --config.
	if envDir := os.Getenv(config.EnvConfigDir); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.txscan)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		txsCmd,
		chainsCmd,
		rpcCmd,
		configCmd,
		checksumCmd,
		serveCmd,
	)
}

// initLogging sends logs to stderr: warn by default, info for serve, debug with -v.
func initLogging(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if cmd == serveCmd {
		level = slog.LevelInfo
	}
	if logLevel != "" {
		l, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		level = l
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger.Init(logger.Options{Level: level})
	return nil
}

// loadRegistry builds the chain registry: built-in chains, the chains file,
// then endpoint URLs from the keychain overridden by the environment.
func loadRegistry() (*chain.Registry, error) {
	reg, err := chain.LoadRegistryFile(chain.NewRegistry(), cfg.ChainsPath())
	if err != nil {
		return nil, err
	}

	stored, err := openStore(cfg.Dir()).Endpoints()
	if err != nil {
		logger.Warn("keychain endpoints unavailable", "err", err)
		stored = nil
	}

	envCfg, err = config.LoadEnv(envFile())
	if err != nil {
		return nil, err
	}
	fromEnv, err := envCfg.Endpoints()
	if err != nil {
		return nil, err
	}

	endpoints := secrets.Merge(stored, fromEnv)
	logger.Debug("endpoints resolved", "keychain", len(stored), "env", len(fromEnv))
	return reg.WithEndpoints(endpoints), nil
}

// envFile prefers ./.env and falls back to the one in the config dir.
func envFile() string {
	if _, err := os.Stat(config.EnvFile); err == nil {
		return config.EnvFile
	}
	return filepath.Join(cfg.Dir(), config.EnvFile)
}

func newService(reg *chain.Registry) *discover.Service {
	return discover.NewService(reg, []chain.Option{chain.WithRateLimit(cfg.RPCRateLimit)})
}

// selectedChain returns the persisted chain if it is registered, else Ethereum.
func selectedChain(reg *chain.Registry) chain.Descriptor {
	if d, ok := reg.Describe(cfg.SelectedChain); ok {
		return d
	}
	d, _ := reg.Describe(1)
	return d
}

// resolveChains turns --chain values (slugs, ids, comma lists or "all") into
// chain ids. No values means the selected chain.
func resolveChains(reg *chain.Registry, names []string) ([]int64, error) {
	if len(names) == 0 {
		return []int64{selectedChain(reg).ID}, nil
	}
	var ids []int64
	for _, name := range splitList(names) {
		if name == "all" {
			ids = append(ids, reg.List()...)
			continue
		}
		d, err := reg.GetByName(name)
		if err != nil {
			if errors.Is(err, chain.ErrChainNotFound) {
				return nil, fmt.Errorf("unknown chain %q, run `txscan chains list` to see all chains", name)
			}
			return nil, err
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}
