package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/convoguard/convoguard/internal/config"
	"github.com/convoguard/convoguard/internal/embeddings"
	"github.com/convoguard/convoguard/internal/evaluator"
	"github.com/convoguard/convoguard/internal/generator"
	"github.com/convoguard/convoguard/internal/persona"
	"github.com/convoguard/convoguard/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the convoguard orchestration server",
	Long:  `Starts the HTTP server: conversation orchestration, alert triage API, safety config, metrics and the websocket event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Port = servePort
		}

		apiKey := os.Getenv(config.APIKeyEnvVar)
		if apiKey == "" {
			return fmt.Errorf("%s is not set", config.APIKeyEnvVar)
		}

		gen := generator.NewWithRetry(generator.NewOpenAIGenerator(apiKey, cfg.Model))
		eval := evaluator.NewBounded(
			evaluator.NewOpenAIEvaluator(apiKey, cfg.EvaluatorModel),
			time.Duration(cfg.EvaluatorTimeoutSeconds)*time.Second,
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Semantic intent classification is optional; without it the
		// router falls back to keyword trigger matching only.
		var classifier persona.Classifier
		if cfg.SemanticRouting {
			embedder := embeddings.NewOpenAIEmbedder(apiKey, cfg.EmbeddingModel)
			intents, err := persona.NewIntentClassifier(embedder)
			if err != nil {
				return fmt.Errorf("creating intent classifier: %w", err)
			}
			if err := intents.SeedDefaults(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not seed intent examples: %v\n", err)
				fmt.Fprintln(os.Stderr, "Continuing with keyword trigger matching only.")
			} else {
				classifier = intents
			}
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		srv, err := server.New(ctx, server.Config{
			Port:            cfg.Port,
			AllowAll:        cfg.AllowAllOrigins,
			Fallback:        cfg.FallbackMessage,
			WebhookURLs:     cfg.Webhooks.URLs,
			WebhookSeverity: cfg.Webhooks.MinSeverity,
		}, database, gen, eval, classifier)
		if err != nil {
			return fmt.Errorf("assembling server: %w", err)
		}

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "convoguard v%s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Model: %s (evaluator %s)\n", cfg.Model, cfg.EvaluatorModel)
		fmt.Fprintf(os.Stderr, "  Semantic routing: %v\n", classifier != nil)
		fmt.Fprintf(os.Stderr, "  Webhooks: %d\n", len(cfg.Webhooks.URLs))

		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured port")
	rootCmd.AddCommand(serveCmd)
}
