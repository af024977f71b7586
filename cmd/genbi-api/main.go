package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/genbi/config"
	"github.com/malbeclabs/genbi/internal/server"
	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/logger"
	"github.com/malbeclabs/genbi/pkg/pipeline"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFlag := flag.String("env", config.EnvLocal, "environment to use (local, dev, prod)")
	listenAddrFlag := flag.String("listen-addr", ":8000", "Address to listen on for API requests")
	metricsAddrFlag := flag.String("metrics-addr", ":2112", "Address to listen on for prometheus metrics")
	profilesFlag := flag.String("profiles", "", "Path to the profiles YAML file (defaults to the environment's path)")

	// Elasticsearch configuration
	esUsernameFlag := flag.String("elasticsearch-username", "", "Elasticsearch username (or set ELASTICSEARCH_USERNAME env var)")
	esPasswordFlag := flag.String("elasticsearch-password", "", "Elasticsearch password (or set ELASTICSEARCH_PASSWORD env var)")

	// LLM configuration
	anthropicAPIKeyFlag := flag.String("anthropic-api-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
	maxTokensFlag := flag.Int64("max-tokens", 4096, "Maximum tokens per model response")
	agentPoolSizeFlag := flag.Int("agent-pool-size", 8, "Maximum concurrent agent sub-tasks")
	maxRowsFlag := flag.Int("max-rows", 1000, "Maximum rows returned per query")

	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override flags with environment variables if set
	if v := os.Getenv("ELASTICSEARCH_USERNAME"); v != "" {
		*esUsernameFlag = v
	}
	if v := os.Getenv("ELASTICSEARCH_PASSWORD"); v != "" {
		*esPasswordFlag = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		*anthropicAPIKeyFlag = v
	}
	if *anthropicAPIKeyFlag == "" {
		return fmt.Errorf("--anthropic-api-key is required")
	}

	envConfig, err := config.EnvironmentConfigForEnv(*envFlag)
	if err != nil {
		return fmt.Errorf("failed to get environment config: %w", err)
	}
	profilesPath := envConfig.ProfilesPath
	if *profilesFlag != "" {
		profilesPath = *profilesFlag
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Set up prometheus metrics server if enabled.
	if *metricsAddrFlag != "" {
		server.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	registry, err := profile.Load(profilesPath)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	log.Info("loaded profiles", "path", profilesPath, "profiles", registry.List())

	esClient, err := retrieval.NewElasticsearchClient(strings.Split(envConfig.ElasticsearchURL, ","), *esUsernameFlag, *esPasswordFlag)
	if err != nil {
		return err
	}
	store, err := retrieval.NewElasticsearchStore(retrieval.ElasticsearchConfig{
		Logger:           log,
		Client:           esClient,
		IndexPrefix:      envConfig.RetrievalIndex,
		EmbeddingModelID: envConfig.EmbeddingModelID,
	})
	if err != nil {
		return fmt.Errorf("failed to create retrieval store: %w", err)
	}

	backends, err := newBackends(log, envConfig, *anthropicAPIKeyFlag, *maxTokensFlag)
	if err != nil {
		return err
	}

	prompts, err := llm.LoadPrompts()
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	exec, err := executor.New(executor.Config{Logger: log, MaxRows: *maxRowsFlag})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}
	defer exec.Close()

	modelIDs := registry.Models()
	if len(modelIDs) == 0 {
		modelIDs = config.DefaultModelIDs
	}

	p, err := pipeline.New(pipeline.Config{
		Logger:        log,
		Profiles:      registry,
		Resolver:      profile.NewResolver(log, registry),
		Retrieval:     store,
		Recorder:      store,
		Backends:      backends,
		Prompts:       prompts,
		Executor:      exec,
		ModelIDs:      modelIDs,
		AgentPoolSize: *agentPoolSizeFlag,
		MaxTokens:     *maxTokensFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	srv, err := server.New(log, server.Config{
		Asker:    p,
		Profiles: registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", *listenAddrFlag)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", *listenAddrFlag, err)
	}
	log.Info("API server listening", "address", listener.Addr().String(), "env", envConfig.Moniker)

	errCh := srv.Start(ctx, cancel, listener)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func newBackends(log *slog.Logger, envConfig *config.EnvironmentConfig, apiKey string, maxTokens int64) (llm.Backends, error) {
	backends := llm.Backends{
		Chat: llm.NewAnthropicClient(log, maxTokens, option.WithAPIKey(apiKey)),
	}
	if envConfig.SQLEndpointURL != "" {
		endpoint, err := llm.NewEndpointClient(llm.EndpointConfig{Logger: log, URL: envConfig.SQLEndpointURL})
		if err != nil {
			return llm.Backends{}, fmt.Errorf("failed to create SQL endpoint client: %w", err)
		}
		backends.SQL = endpoint
		log.Info("using specialized SQL endpoint", "url", envConfig.SQLEndpointURL)
	}
	if envConfig.ExplainEndpointURL != "" {
		endpoint, err := llm.NewEndpointClient(llm.EndpointConfig{Logger: log, URL: envConfig.ExplainEndpointURL})
		if err != nil {
			return llm.Backends{}, fmt.Errorf("failed to create explain endpoint client: %w", err)
		}
		backends.Explain = endpoint
	}
	return backends, nil
}
