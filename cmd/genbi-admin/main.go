package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/genbi/config"
	"github.com/malbeclabs/genbi/internal/admin"
	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/logger"
	"github.com/malbeclabs/genbi/pkg/pipeline"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	verbose  bool
	env      string
	profiles string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	rootCmd := &cobra.Command{
		Use:   "genbi-admin",
		Short: "Admin CLI for the genbi query assistant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "set debug logging level")
	rootCmd.PersistentFlags().StringVarP(&flags.env, "env", "e", config.EnvLocal, "environment to use (local, dev, prod)")
	rootCmd.PersistentFlags().StringVar(&flags.profiles, "profiles", "", "path to the profiles YAML file (defaults to the environment's path)")

	rootCmd.AddCommand(
		newInitIndexCmd(&flags),
		newSeedCmd(&flags),
		newProfilesCmd(&flags),
		newAskCmd(&flags),
	)
	return rootCmd
}

func (f *globalFlags) environment() (*config.EnvironmentConfig, error) {
	envConfig, err := config.EnvironmentConfigForEnv(f.env)
	if err != nil {
		return nil, err
	}
	if f.profiles != "" {
		envConfig.ProfilesPath = f.profiles
	}
	return envConfig, nil
}

func newStore(log *slog.Logger, envConfig *config.EnvironmentConfig) (*retrieval.ElasticsearchStore, error) {
	client, err := retrieval.NewElasticsearchClient(
		strings.Split(envConfig.ElasticsearchURL, ","),
		os.Getenv("ELASTICSEARCH_USERNAME"),
		os.Getenv("ELASTICSEARCH_PASSWORD"),
	)
	if err != nil {
		return nil, err
	}
	return retrieval.NewElasticsearchStore(retrieval.ElasticsearchConfig{
		Logger:           log,
		Client:           client,
		IndexPrefix:      envConfig.RetrievalIndex,
		EmbeddingModelID: envConfig.EmbeddingModelID,
	})
}

func newInitIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-index",
		Short: "Create the retrieval indices and embedding pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(flags.verbose)
			envConfig, err := flags.environment()
			if err != nil {
				return err
			}
			store, err := newStore(log, envConfig)
			if err != nil {
				return err
			}
			if err := store.EnsureIndices(cmd.Context()); err != nil {
				return fmt.Errorf("failed to create indices: %w", err)
			}
			log.Info("indices ready", "prefix", envConfig.RetrievalIndex)
			return nil
		},
	}
}

func newSeedCmd(flags *globalFlags) *cobra.Command {
	var (
		profileName string
		samplesPath string
		kind        string
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed question/SQL samples into the retrieval index",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(flags.verbose)
			envConfig, err := flags.environment()
			if err != nil {
				return err
			}
			samples, err := admin.LoadSamples(samplesPath)
			if err != nil {
				return err
			}
			store, err := newStore(log, envConfig)
			if err != nil {
				return err
			}
			if !dryRun {
				if err := store.EnsureIndices(cmd.Context()); err != nil {
					return fmt.Errorf("failed to create indices: %w", err)
				}
			}
			_, err = admin.Seed(cmd.Context(), log, store, admin.SeedConfig{
				Profile: profileName,
				Kind:    retrieval.Kind(kind),
				Samples: samples,
				DryRun:  dryRun,
			})
			return err
		},
	}
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "profile the samples belong to")
	cmd.Flags().StringVar(&samplesPath, "samples", "", "YAML file of samples (defaults to the built-in retail samples)")
	cmd.Flags().StringVar(&kind, "kind", string(retrieval.KindQuery), "index kind to seed (query, ner, agent)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be seeded without writing")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newProfilesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the configured data profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			envConfig, err := flags.environment()
			if err != nil {
				return err
			}
			registry, err := profile.Load(envConfig.ProfilesPath)
			if err != nil {
				return fmt.Errorf("failed to load profiles: %w", err)
			}
			return admin.PrintProfiles(cmd.OutOrStdout(), registry)
		},
	}
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var (
		q       pipeline.Question
		asJSON  bool
		stream  bool
		noStore bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(flags.verbose)
			q.Query = args[0]

			apiKey := os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required")
			}
			envConfig, err := flags.environment()
			if err != nil {
				return err
			}
			registry, err := profile.Load(envConfig.ProfilesPath)
			if err != nil {
				return fmt.Errorf("failed to load profiles: %w", err)
			}

			var store retrieval.Store = noopStore{}
			if !noStore {
				store, err = newStore(log, envConfig)
				if err != nil {
					return err
				}
			}
			prompts, err := llm.LoadPrompts()
			if err != nil {
				return err
			}
			exec, err := executor.New(executor.Config{Logger: log})
			if err != nil {
				return err
			}
			defer exec.Close()

			modelIDs := registry.Models()
			if len(modelIDs) == 0 {
				modelIDs = config.DefaultModelIDs
			}
			if q.ModelID == "" {
				q.ModelID = modelIDs[0]
			}

			p, err := pipeline.New(pipeline.Config{
				Logger:    log,
				Profiles:  registry,
				Resolver:  profile.NewResolver(log, registry),
				Retrieval: store,
				Recorder:  store,
				Backends:  llm.Backends{Chat: llm.NewAnthropicClient(log, 0, option.WithAPIKey(apiKey))},
				Prompts:   prompts,
				Executor:  exec,
				ModelIDs:  modelIDs,
			})
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			if stream {
				err := p.AskStream(ctx, q, pipeline.SinkFunc(func(content string) error {
					_, err := fmt.Fprint(out, content)
					return err
				}))
				fmt.Fprintln(out)
				return err
			}

			answer, err := p.Ask(ctx, q)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			admin.PrintAnswer(out, answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&q.ProfileName, "profile", "p", "", "profile to query")
	cmd.Flags().StringVarP(&q.ModelID, "model", "m", "", "model id (defaults to the first configured model)")
	cmd.Flags().BoolVar(&q.UseRAG, "rag", true, "retrieve similar examples")
	cmd.Flags().BoolVar(&q.IntentNER, "intent", true, "classify the question before answering")
	cmd.Flags().BoolVar(&q.AgentCOT, "agent", false, "allow multi-step agent answers")
	cmd.Flags().BoolVar(&q.ExplainGenProcess, "explain", false, "explain how the SQL was generated")
	cmd.Flags().BoolVar(&q.GenSuggestedQuestion, "suggest", false, "suggest follow-up questions")
	cmd.Flags().BoolVar(&q.QueryResult, "query-result", true, "execute the SQL when streaming")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the answer as it is generated")
	cmd.Flags().BoolVar(&noStore, "no-index", false, "run without the retrieval index")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

// noopStore stands in for the retrieval index when it is not available.
type noopStore struct{}

func (noopStore) Search(ctx context.Context, q retrieval.Query) ([]retrieval.Example, error) {
	return []retrieval.Example{}, nil
}

func (noopStore) AddSample(ctx context.Context, profile, question, sql string) error { return nil }

func (noopStore) AddAgentCOTSample(ctx context.Context, profile, question, plan string) error {
	return nil
}
