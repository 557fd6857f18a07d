package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrPrayat/DA235X/internal/config"
	"github.com/MrPrayat/DA235X/internal/ingest"
	"github.com/MrPrayat/DA235X/internal/output"
	"github.com/MrPrayat/DA235X/internal/pipeline"
	"github.com/MrPrayat/DA235X/internal/providers"
	"github.com/MrPrayat/DA235X/internal/records"
	"github.com/MrPrayat/DA235X/internal/schema"
	"github.com/MrPrayat/DA235X/internal/svcctx"
	"github.com/MrPrayat/DA235X/internal/usage"
)

var (
	extractInput        string
	extractLimit        int
	extractSkipExisting bool
	extractIDs          []string
	extractWorkers      int
	extractStrategy     string
	extractProvider     string
	extractModel        string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract records from a CSV of inspection reports",
	Long: `Extract runs the pipeline over every report listed in a CSV file with
"id" and "url" columns. URLs may be http(s), file:// or local paths.

Each report is fetched into <home>/raw_pdfs, rendered page by page until the
appendix, and its record is written to <home>/records/<id>.json. A report
that is unreachable, too short or a text PDF is skipped; one whose pages all
failed to parse is reported as failed and gets no record.

Examples:
  besiktning extract --input inspections.csv
  besiktning extract --input inspections.csv --limit 10 --skip-existing
  besiktning extract --input inspections.csv --ids 1043,1187 --strategy llm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svcs := services(cmd)
		cfg := svcs.Config.Get()
		logger := svcs.Logger

		srcs, err := ingest.ReadSourcesFile(extractInput)
		if err != nil {
			return err
		}

		batch, err := buildBatch(ctx, svcs, cfg)
		if err != nil {
			return err
		}

		logger.Info("starting extraction", "documents", len(srcs), "input", extractInput)
		tally, runErr := batch.Run(ctx, srcs)
		if tally != nil {
			var out any = tally
			if output.IsText() {
				out = tallyView{tally}
			}
			if err := output.Print(out); err != nil {
				return err
			}
		}
		if runErr != nil {
			return fmt.Errorf("extraction interrupted: %w", runErr)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractInput, "input", "", "CSV file with id,url columns")
	extractCmd.Flags().IntVar(&extractLimit, "limit", 0, "stop after this many successful extractions (0 = all)")
	extractCmd.Flags().BoolVar(&extractSkipExisting, "skip-existing", false, "skip documents that already have a record")
	extractCmd.Flags().StringSliceVar(&extractIDs, "ids", nil, "only (re-)extract these document ids")
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "documents processed concurrently (default: extraction.workers)")
	extractCmd.Flags().StringVar(&extractStrategy, "strategy", "", "synthesis strategy: first or llm (default: extraction.strategy)")
	extractCmd.Flags().StringVar(&extractProvider, "provider", "", "provider for every stage (default: extraction.provider)")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "model for every stage (default: the provider's model)")
	_ = extractCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(extractCmd)
}

// stage resolves the client and model for one pipeline stage. Command-line
// flags override every stage; otherwise the stage settings fall back to
// the extraction provider.
func stage(svcs *svcctx.Services, cfg *config.Config, provider, model string) (providers.LLMClient, string, error) {
	if extractProvider != "" {
		provider, model = extractProvider, ""
	}
	if provider == "" {
		provider = cfg.Extraction.Provider
	}
	if extractModel != "" {
		model = extractModel
	}
	client, err := svcs.Registry.Get(provider)
	if err != nil {
		return nil, "", fmt.Errorf("provider %q is not available (enabled with an API key?): %w", provider, err)
	}
	return client, cfg.ModelFor(provider, model), nil
}

func buildBatch(ctx context.Context, svcs *svcctx.Services, cfg *config.Config) (*pipeline.Batch, error) {
	logger := svcs.Logger
	h := svcs.Home
	trace := svcctx.CallsFrom(ctx)

	strategyName := cfg.Extraction.Strategy
	if extractStrategy != "" {
		strategyName = extractStrategy
	}
	strategy, err := pipeline.ParseStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	seed, err := schema.ParseSeedPolicy(cfg.Evaluation.SeedPolicy)
	if err != nil {
		return nil, err
	}

	retry := cfg.RetryPolicy(providers.IsRetryable)
	retry.Logger = logger

	extractClient, extractModelName, err := stage(svcs, cfg, cfg.Extraction.Provider, cfg.Extraction.Model)
	if err != nil {
		return nil, err
	}
	extractor, err := pipeline.NewExtractor(pipeline.ExtractorConfig{
		Client:   extractClient,
		Model:    extractModelName,
		Schema:   svcs.Schema,
		Prompts:  svcs.Prompts,
		Retry:    retry,
		Trace:    trace,
		NoRepair: cfg.Extraction.NoRepair,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	var classifier *pipeline.Classifier
	if !cfg.Extraction.DisableClassifier {
		client, model, err := stage(svcs, cfg, cfg.Extraction.ClassifierProvider, cfg.Extraction.ClassifierModel)
		if err != nil {
			return nil, err
		}
		classifier = pipeline.NewClassifier(pipeline.ClassifierConfig{
			Client:  client,
			Model:   model,
			Prompts: svcs.Prompts,
			Retry:   retry,
			Trace:   trace,
			Logger:  logger,
		})
	}

	var synth pipeline.Synthesizer = pipeline.NewFirstWins(svcs.Schema)
	if strategy == pipeline.StrategyLLM {
		client, model, err := stage(svcs, cfg, cfg.Extraction.SynthesisProvider, cfg.Extraction.SynthesisModel)
		if err != nil {
			return nil, err
		}
		synth = pipeline.NewLLMSynthesizer(pipeline.LLMSynthesizerConfig{
			Client:  client,
			Model:   model,
			Schema:  svcs.Schema,
			Prompts: svcs.Prompts,
			Retry:   retry,
			Trace:   trace,
			Logger:  logger,
		})
	}

	keys := make([]string, 0)
	for _, p := range svcs.Prompts.AllEmbedded() {
		keys = append(keys, p.Key)
	}

	runID := uuid.NewString()
	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Schema:       svcs.Schema,
		Classifier:   classifier,
		Extractor:    extractor,
		Synthesizer:  synth,
		Pricing:      usage.DefaultPricing().Merge(cfg.Pricing),
		RunID:        runID,
		PromptHashes: pipeline.PromptHashes(svcs.Prompts, keys...),
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	preparer := ingest.NewPreparer(ingest.PreparerConfig{
		Fetcher: ingest.NewFetcher(ingest.FetcherConfig{
			Dir:     h.RawPDFsDir(),
			Timeout: time.Duration(cfg.Extraction.FetchTimeoutSeconds) * time.Second,
			Retry:   retry,
			Logger:  logger,
		}),
		Rasterizer:   ingest.Pdftoppm{DPI: cfg.Extraction.DPI},
		TextProbe:    ingest.TextProbe{Threshold: cfg.Extraction.TextThreshold},
		SkipTextPDFs: cfg.Extraction.SkipTextPDFs,
		MinPages:     cfg.Extraction.MinPages,
		Lookahead:    cfg.Extraction.Lookahead,
		Concurrency:  cfg.Extraction.RenderConcurrency,
		Logger:       logger,
	})

	workers := cfg.Extraction.Workers
	if extractWorkers > 0 {
		workers = extractWorkers
	}

	return pipeline.NewBatch(pipeline.BatchConfig{
		Opener:       pipeline.IngestOpener(preparer),
		Runner:       runner,
		Store:        records.NewStore(h.RecordsDir(), svcs.Schema, seed, logger),
		PageLogs:     records.NewPageLogs(h.PageLogsDir()),
		UsageLog:     usage.NewLog(h.UsageLogPath()),
		Model:        extractor.Model(),
		Strategy:     strategy,
		Workers:      workers,
		Limit:        extractLimit,
		SkipExisting: extractSkipExisting,
		OnlyIDs:      extractIDs,
		Logger:       logger,
	}), nil
}

// tallyView prints a tally as one row per document in text mode.
type tallyView struct {
	*pipeline.Tally
}

func (tallyView) Header() []string {
	return []string{"PDF_ID", "STATUS", "PAGES", "COST_USD", "TOOK", "REASON"}
}

func (v tallyView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Documents)+1)
	for _, d := range v.Documents {
		rows = append(rows, []string{
			d.ID,
			string(d.Status),
			strconv.Itoa(d.Pages),
			strconv.FormatFloat(d.Cost, 'f', 4, 64),
			d.Took.Round(time.Millisecond).String(),
			d.Reason,
		})
	}
	rows = append(rows, []string{
		"TOTAL",
		fmt.Sprintf("%d ok, %d skipped, %d failed", v.Succeeded, v.Skipped, v.Failed),
		strconv.Itoa(v.Usage.PagesExtracted),
		strconv.FormatFloat(v.Usage.CostUSD, 'f', 4, 64),
		"",
		"",
	})
	return rows
}
