package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	serverrun "github.com/PortoLucas1/zerobus-station/internal/cmd/server"
	cfgpkg "github.com/PortoLucas1/zerobus-station/internal/config"
	"github.com/PortoLucas1/zerobus-station/internal/schema"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

func main() {
	// Respect ZEROBUS_LOG_LEVEL for CLI output
	level := os.Getenv("ZEROBUS_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(logpkg.WithLevel(parsed))
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "zerobus-station",
		Short: "Zerobus ingestion gateway",
		Long:  "zerobus-station accepts JSON records over HTTP and appends them onto per-table Zerobus streams.",
	}

	// serve
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the ingestion gateway",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			httpAddr, _ := cmd.Flags().GetString("http")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			if logLevel != "" {
				_ = os.Setenv("ZEROBUS_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("ZEROBUS_LOG_FORMAT", logFormat)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				ConfigPath: configPath,
				HTTPAddr:   httpAddr,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serveCmd.Flags().String("config", os.Getenv("ZEROBUS_CONFIG"), "Path to the tables config file (json or yaml)")
	serveCmd.Flags().String("http", ":8080", "HTTP listen address")
	serveCmd.Flags().String("log-level", os.Getenv("ZEROBUS_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serveCmd.Flags().String("log-format", os.Getenv("ZEROBUS_LOG_FORMAT"), "Log format: text|json (default text)")
	rootCmd.AddCommand(serveCmd)

	// config check
	configCmd := &cobra.Command{Use: "config", Short: "Configuration operations"}
	configCheckCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file and resolve its table schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if err := cfgpkg.Validate(&cfg); err != nil {
				return err
			}
			reg, err := schema.NewRegistry(cfg)
			if err != nil {
				return err
			}
			for _, key := range reg.Keys() {
				entry, _ := reg.Lookup(key)
				fmt.Printf("%s -> %s (%d fields, filter=%v)\n",
					key, entry.Table.TableName, len(entry.Table.Fields), entry.Filter.Enabled())
			}
			fmt.Println("config ok")
			return nil
		},
	}
	configCheckCmd.Flags().String("config", os.Getenv("ZEROBUS_CONFIG"), "Path to the tables config file (json or yaml)")
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
