// Command screener runs the quote screening engine and its tools:
//   - serve: ingestion + screening sessions + HTTP API
//   - scan: one-shot scan over a catalog with mock ticks
//   - presets, search: catalog and preset inspection
//   - migrate, import-catalog: database setup
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"quote-screener/internal/catalog"
	"quote-screener/internal/config"
	"quote-screener/internal/criteria"
)

var (
	configPath string
	envFile    string
	catalogArg string
	presetArg  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "screener",
		Short:         "Real-time quote screener",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&catalogArg, "catalog", "", "instrument catalog (.csv or .yaml), overrides config")
	rootCmd.PersistentFlags().StringVar(&presetArg, "preset-file", "", "extra presets YAML, overrides config")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCatalogCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, then applies
// the persistent flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if catalogArg != "" {
		cfg.Catalog = catalogArg
	}
	if presetArg != "" {
		cfg.PresetFile = presetArg
	}
	return cfg, nil
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}

func loadPresets(cfg *config.Config) (*criteria.Registry, error) {
	if cfg.PresetFile == "" {
		return criteria.NewRegistry(criteria.BuiltinPresets()), nil
	}
	extra, err := criteria.LoadPresetFile(cfg.PresetFile)
	if err != nil {
		return nil, err
	}
	return criteria.NewRegistry(criteria.BuiltinPresets(), extra), nil
}

func loadCatalogFile(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return nil, fmt.Errorf("no catalog: pass --catalog or set catalog in the config")
	}
	return catalog.LoadFile(cfg.Catalog)
}
