package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/agentpad/agentpad/agent"
	"github.com/agentpad/agentpad/plugin/storage"
	"github.com/agentpad/agentpad/plugin/vectorstore"
	"github.com/agentpad/agentpad/sandbox"
	"github.com/agentpad/agentpad/server"
	"github.com/agentpad/agentpad/server/auth"
	"github.com/agentpad/agentpad/server/profile"
	v1 "github.com/agentpad/agentpad/server/router/api/v1"
	"github.com/agentpad/agentpad/server/skills"
	"github.com/agentpad/agentpad/server/version"
	"github.com/agentpad/agentpad/store"
	"github.com/agentpad/agentpad/store/db/mysql"
	"github.com/agentpad/agentpad/store/db/postgres"
	"github.com/agentpad/agentpad/store/db/sqlite"
)

func main() {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "agentpad",
		Short: "Web agent that executes tasks in an isolated sandbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prof := profile.FromViper(v)
			prof.Version = version.GetCurrentVersion(prof.Mode)
			if err := prof.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), prof)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `run mode, "dev" or "prod"`)
	flags.String("addr", "", "bind address")
	flags.Int("port", 8081, "http port")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "store driver: sqlite | mysql | postgres")
	flags.String("dsn", "", "database connection string")
	flags.String("access-secret", "", "api access secret, empty disables auth")
	flags.String("llm-api-key", "", "api key for the llm endpoint")
	flags.String("llm-base-url", "https://openrouter.ai/api/v1", "openai-compatible llm endpoint")
	flags.String("llm-model", "anthropic/claude-sonnet-4", "model for agent runs")
	flags.String("embedding-model", "openai/text-embedding-3-small", "model for skill embeddings")
	flags.String("sandbox-backend", "local", "sandbox backend: local | docker")
	flags.String("sandbox-image", "", "container image for the docker backend")
	flags.String("storage-backend", "local", "skill file storage: local | s3")
	flags.String("s3-access-key-id", "", "s3 access key id")
	flags.String("s3-secret-key", "", "s3 secret access key")
	flags.String("s3-endpoint", "", "s3 endpoint for s3-compatible services")
	flags.String("s3-region", "us-east-1", "s3 region")
	flags.String("s3-bucket", "", "s3 bucket")

	if err := v.BindPFlags(flags); err != nil {
		slog.Error("bind flags failed", "err", err)
		os.Exit(1)
	}
	v.SetEnvPrefix("agentpad")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, prof *profile.Profile) error {
	level := slog.LevelInfo
	if prof.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	driver, err := newStoreDriver(prof)
	if err != nil {
		return err
	}
	st := store.New(driver)
	if err := st.EnsureTables(ctx); err != nil {
		return errors.Wrap(err, "ensure tables")
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	}()

	var vectors *vectorstore.Store
	if prof.LLMAPIKey != "" {
		embedFn := chromem.NewEmbeddingFuncOpenAICompat(
			prof.LLMBaseURL, prof.LLMAPIKey, prof.EmbeddingModel, nil,
		)
		vectors, err = vectorstore.New(prof.Data, embedFn)
		if err != nil {
			return errors.Wrap(err, "open vectorstore")
		}
	} else {
		slog.Warn("no llm api key; semantic skill search disabled")
	}

	files, err := newStorageDriver(ctx, prof)
	if err != nil {
		return err
	}

	model, err := openai.New(
		openai.WithToken(prof.LLMAPIKey),
		openai.WithBaseURL(prof.LLMBaseURL),
		openai.WithModel(prof.LLMModel),
	)
	if err != nil {
		return errors.Wrap(err, "create llm client")
	}

	authenticator, err := auth.NewAuthenticator(prof.AccessSecret)
	if err != nil {
		return err
	}

	api := &v1.APIV1Service{
		Store:     st,
		Skills:    skills.NewService(st, vectors, files),
		Sandboxes: sandbox.NewRegistry(newSandboxFactory(prof)),
		LLM:       agent.NewLangchainLLM(model, agent.SkillToolDefs()...),
		Auth:      authenticator,
		Profile:   prof,
	}
	return server.New(prof, api).Run(ctx)
}

func newStoreDriver(prof *profile.Profile) (store.Driver, error) {
	switch prof.Driver {
	case "sqlite":
		return sqlite.New(prof.DSN)
	case "mysql":
		return mysql.New(prof.DSN)
	case "postgres":
		return postgres.New(prof.DSN)
	default:
		return nil, errors.Errorf("unknown driver %q", prof.Driver)
	}
}

func newStorageDriver(ctx context.Context, prof *profile.Profile) (storage.Driver, error) {
	switch prof.StorageBackend {
	case "s3":
		return storage.NewS3Driver(ctx, storage.S3Config{
			AccessKeyID:     prof.S3AccessKeyID,
			SecretAccessKey: prof.S3SecretKey,
			Endpoint:        prof.S3Endpoint,
			Region:          prof.S3Region,
			Bucket:          prof.S3Bucket,
			UsePathStyle:    prof.S3Endpoint != "",
		})
	default:
		return storage.NewLocalDriver(prof.Data)
	}
}

func newSandboxFactory(prof *profile.Profile) sandbox.Factory {
	if prof.SandboxBackend == "docker" {
		return func(sandboxID string) (sandbox.Executor, error) {
			return sandbox.NewDockerExecutor(sandbox.DockerOptions{
				Image:       prof.SandboxImage,
				ContainerID: sandboxID,
			})
		}
	}
	return func(string) (sandbox.Executor, error) {
		return sandbox.NewLocalExecutor(sandbox.LocalOptions{}), nil
	}
}
