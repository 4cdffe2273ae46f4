package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/timmy/topicmodel/internal/app"
	"github.com/timmy/topicmodel/internal/config"
	"github.com/timmy/topicmodel/internal/logger"
	"github.com/timmy/topicmodel/internal/service"
)

var (
	configPath   string
	modelID      string
	description  string
	dataFile     string
	numTopics    int
	language     string
	useLemma     bool
	minDF        float64
	maxDF        float64
	chunkSize    int
	numPasses    int
	assignTopics bool
)

var rootCmd = &cobra.Command{
	Use:   "compute",
	Short: "Train a topic model synchronously",
	Long: `Registers a model and trains it in the foreground against the configured
stores, skipping the scheduling delay. The input file is a JSON array of
{"id", "content"} objects.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCompute,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")
	f.StringVar(&modelID, "model-id", "", "id of the model to create")
	f.StringVar(&description, "description", "", "model description")
	f.StringVarP(&dataFile, "file", "f", "", "JSON documents file")
	f.IntVarP(&numTopics, "topics", "k", 0, "number of topics")
	f.StringVar(&language, "language", "", "corpus language (en, it)")
	f.BoolVar(&useLemma, "lemma", true, "lemmatize tokens")
	f.Float64Var(&minDF, "min-df", 0, "minimum document frequency (fraction below 1, count otherwise)")
	f.Float64Var(&maxDF, "max-df", 0, "maximum document frequency (fraction up to 1, count otherwise)")
	f.IntVar(&chunkSize, "chunk-size", 0, "documents per training batch")
	f.IntVar(&numPasses, "passes", 0, "training passes")
	f.BoolVar(&assignTopics, "assign", true, "assign topics to the training documents")
	_ = rootCmd.MarkFlagRequired("model-id")
	_ = rootCmd.MarkFlagRequired("file")
	_ = rootCmd.MarkFlagRequired("topics")
}

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		appLogger.WithError(err).Error("Compute failed")
		os.Exit(1)
	}
}

func runCompute(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The file is read relative to its own directory.
	absFile, err := filepath.Abs(dataFile)
	if err != nil {
		return err
	}
	cfg.Training.DataPath = filepath.Dir(absFile)
	cfg.Training.WaitingSeconds = 0

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.SetComponent(logger.GetDefault().WithContext(ctx), "compute")

	components, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := components.Close(closeCtx); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to close components")
		}
	}()

	req := &service.CreateModelRequest{
		ModelID:        modelID,
		Description:    description,
		NumberOfTopics: numTopics,
		Language:       language,
		ChunkSize:      chunkSize,
		NumPasses:      numPasses,
		AssignTopics:   &assignTopics,
		DataFilename:   filepath.Base(absFile),
	}
	flags := cmd.Flags()
	if flags.Changed("lemma") {
		req.UseLemmer = &useLemma
	}
	if flags.Changed("min-df") {
		req.MinDF = &minDF
	}
	if flags.Changed("max-df") {
		req.MaxDF = &maxDF
	}

	job, err := components.Models.BuildJob(req)
	if err != nil {
		return err
	}
	if _, err := components.Registry.Create(ctx, job.ModelID, description, job.Params); err != nil {
		return err
	}

	handle := uuid.New().String()
	ctx = logger.SetJobID(logger.SetModelID(ctx, job.ModelID), handle)
	start := time.Now()
	if err := components.Runner.Run(ctx, job, handle); err != nil {
		// Nothing resumes an interrupted foreground run.
		if ctx.Err() != nil {
			components.Runner.Fail(context.WithoutCancel(ctx), job.ModelID, err)
		}
		return err
	}

	m, err := components.Registry.Get(ctx, job.ModelID)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).WithField(logger.FieldDurationMs, time.Since(start).Milliseconds()).Info("Model computed")

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
