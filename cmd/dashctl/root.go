package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dashrpc/config"
	"dashrpc/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath string
	Endpoint   string // overrides config endpoint
	Verbose    bool
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      *zap.Logger
	current     *app // created lazily by commands that talk to the backend
)

var rootCmd = &cobra.Command{
	Use:   "dashctl",
	Short: "Dashboard backend client",
	Long: `dashctl runs dashboard operations against the backend over one multiplexed
WebSocket connection.

Examples:
  dashctl serve-demo                         # in-memory backend on :7000
  dashctl login ada@example.com correct-horse
  dashctl messages c-1 --follow
  dashctl boq proj-123456 --out boq.pdf`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(globalFlags.ConfigPath)
		if err != nil {
			return err
		}
		if globalFlags.Endpoint != "" {
			cfg.Endpoint = globalFlags.Endpoint
			cfg.Discovery.Enable = false
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		if globalFlags.Verbose {
			cfg.Log.Level = "debug"
		}
		logger, err = observability.SetupLogger(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			current.Close()
			current = nil
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "config file (default: ./dashrpc.yaml, $DASHRPC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Endpoint, "endpoint", "", "backend WebSocket URL, disables discovery")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(factorCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(boqCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(serveDemoCmd)
}

// getApp 获取（或创建）后端连接
func getApp() (*app, error) {
	if current != nil {
		return current, nil
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	current = a
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
