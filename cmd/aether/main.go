package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aether/internal/config"
	"aether/internal/core"
	"aether/internal/index"
	"aether/internal/logging"
	"aether/internal/parse"
	"aether/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aether",
	Short: "aether - incremental symbol indexer",
	Long: `aether extracts symbols, call edges and test intents from Python, Rust,
TypeScript and Go sources, assigns them stable identities, and keeps a
SQLite index current as files change.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			workspace = cwd
		}
		absolute, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("failed to resolve workspace path: %w", err)
		}
		workspace = absolute

		cfg, err = config.Load(workspace)
		if err != nil {
			return err
		}

		if err := logging.Initialize(workspace, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// parseCmd extracts one file and prints the result as JSON.
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract symbols, edges and test intents from a single file",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

// indexCmd seeds the workspace index once.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the workspace and persist the symbol index",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

// watchCmd seeds the index, then keeps it current.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index the workspace and watch for changes, printing change events as JSON lines",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var searchLimit int

// searchCmd queries indexed symbols.
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed symbols by name or qualified name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

// callersCmd resolves who calls a qualified name.
var callersCmd = &cobra.Command{
	Use:   "callers [qualified-name]",
	Short: "List the symbols that call a qualified name",
	Args:  cobra.ExactArgs(1),
	RunE:  runCallers,
}

var depsDepth int

// depsCmd resolves what a symbol calls.
var depsCmd = &cobra.Command{
	Use:   "deps [symbol-id]",
	Short: "List the symbols a symbol calls, optionally following the chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeps,
}

func runParse(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	extracted, err := parse.DefaultRegistry().ExtractFile(path, content)
	if err != nil {
		return err
	}
	logger.Debug("Parsed file",
		zap.String("path", path),
		zap.Int("symbols", len(extracted.Symbols)),
		zap.Int("edges", len(extracted.Edges)))

	return printJSON(cmd, extracted)
}

func runIndex(cmd *cobra.Command, args []string) error {
	watcher, db, err := seedWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := watcher.PersistSeed()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files into %s\n", count, db.Path())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, db, err := seedWorkspace(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := watcher.PersistSeed()
	if err != nil {
		return err
	}
	logger.Info("Initial scan complete", zap.Int("files", count))

	out := cmd.OutOrStdout()
	encoder := json.NewEncoder(out)
	watcher.OnEvent = func(event core.SymbolChangeEvent) {
		if err := encoder.Encode(event); err != nil {
			logger.Error("Failed to serialize change event", zap.Error(err))
		}
	}

	err = watcher.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("Received shutdown signal")
		return nil
	}
	return err
}

func runSearch(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.SearchSymbols(args[0], searchLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd, records)
}

func runCallers(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.Callers(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, records)
}

func runDeps(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if depsDepth > 1 {
		levels, err := db.CallChain(args[0], depsDepth)
		if err != nil {
			return err
		}
		return printJSON(cmd, levels)
	}

	records, err := db.Dependencies(args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, records)
}

// seedWorkspace builds the observer/store/watcher trio and runs the seed
// scan. Callers own closing the store.
func seedWorkspace(ctx context.Context) (*index.Watcher, *store.Store, error) {
	observer := index.NewObserver(workspace, parse.DefaultRegistry(), index.Options{
		MaxConcurrency: cfg.Scanner.MaxConcurrency,
		IgnorePatterns: cfg.Scanner.IgnorePatterns,
		MaxFileBytes:   cfg.Scanner.MaxFileBytes,
	})
	if err := observer.SeedFromDisk(ctx); err != nil {
		return nil, nil, err
	}

	db, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	watcher := index.NewWatcher(workspace, observer, db, cfg.DebounceWindow(), cfg.PollInterval())
	return watcher, db, nil
}

// openStore honors the configured database path when one is set.
func openStore() (*store.Store, error) {
	if cfg.Storage.DatabasePath != "" {
		return store.OpenAt(cfg.Storage.DatabasePath)
	}
	return store.Open(workspace)
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (default: current directory)")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	depsCmd.Flags().IntVar(&depsDepth, "depth", 1, "Follow the call chain this many hops")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(callersCmd)
	rootCmd.AddCommand(depsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
