package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atomhq/hive/pkg/api"
	"github.com/atomhq/hive/pkg/dispatch"
	"github.com/atomhq/hive/pkg/events"
	"github.com/atomhq/hive/pkg/health"
	"github.com/atomhq/hive/pkg/log"
	"github.com/atomhq/hive/pkg/metrics"
	"github.com/atomhq/hive/pkg/orchestrator"
	"github.com/atomhq/hive/pkg/prompt"
	"github.com/atomhq/hive/pkg/storage"
)

// ServerConfig is the YAML configuration for hive serve. Flags override
// file values.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	BaseURL   string `yaml:"base_url"`
	DataDir   string `yaml:"data_dir"`
	AuthToken string `yaml:"auth_token"`

	Agent struct {
		Bin   string `yaml:"bin"`
		Model string `yaml:"model"`
	} `yaml:"agent"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	RateLimit struct {
		Enabled           *bool   `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

func defaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.Listen = "127.0.0.1:8700"
	cfg.DataDir = "./hive-data"
	cfg.Agent.Bin = "openclaw"
	cfg.Agent.Model = "default"
	cfg.Log.Level = "info"
	return cfg
}

func loadServerConfig(path string) (ServerConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Hive server",
	Long: `Start the Hive server: opens the task database, wires the
orchestrator to the agent runtime, and serves the HTTP API.

Examples:
  # Defaults (listens on 127.0.0.1:8700, data in ./hive-data)
  hive serve

  # With a config file
  hive serve --config hive.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "YAML config file")
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().String("base-url", "", "Public base URL for agent callbacks (overrides config)")
	serveCmd.Flags().String("agent-bin", "", "Agent CLI binary (overrides config)")
	serveCmd.Flags().String("agent-model", "", "Agent model name (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("agent-bin"); v != "" {
		cfg.Agent.Bin = v
	}
	if v, _ := cmd.Flags().GetString("agent-model"); v != "" {
		cfg.Agent.Model = v
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Listen
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("HIVE_TOKEN")
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	orch := orchestrator.New(orchestrator.Config{
		Store:      store,
		Dispatcher: dispatch.NewAgentClient(cfg.Agent.Bin, cfg.Agent.Model),
		Builder:    prompt.NewBuilder(cfg.BaseURL),
		Broker:     broker,
	})

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	rlConfig := api.DefaultRateLimitConfig()
	if cfg.RateLimit.Enabled != nil {
		rlConfig.Enabled = *cfg.RateLimit.Enabled
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		rlConfig.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
	}
	if cfg.RateLimit.Burst > 0 {
		rlConfig.Burst = cfg.RateLimit.Burst
	}

	server := api.New(orch, broker, health.NewAgentChecker(cfg.Agent.Bin), api.Config{
		Addr:      cfg.Listen,
		AuthToken: cfg.AuthToken,
		RateLimit: rlConfig,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("Hive server listening on %s\n", cfg.Listen)
	fmt.Printf("  Data directory: %s\n", cfg.DataDir)
	fmt.Printf("  Callback base URL: %s\n", cfg.BaseURL)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
