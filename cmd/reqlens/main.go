package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/reqlens/pkg/adapter"
	"github.com/zen-systems/reqlens/pkg/blackboard"
	"github.com/zen-systems/reqlens/pkg/config"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/pipeline"
	"github.com/zen-systems/reqlens/pkg/report"
)

var (
	configFile  string
	adapterFlag string
	modelFlag   string
	offlineFlag bool
	degradeFlag bool
	verboseFlag bool
	timeoutFlag time.Duration

	catalog *config.Catalog
	logger  = zap.NewNop()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reqlens",
		Short: "Requirements extraction, consistency analysis and test scenario generation",
		Long: `reqlens extracts requirements from documents, asks a language model to
	find contradictions between them, and generates QA test scenarios.

	Work is scheduled on a blackboard: each knowledge source fires when its
	inputs are present, until no source can contribute.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verboseFlag)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "path to routing config file")
	flags.StringVar(&adapterFlag, "adapter", "", "route every task to this adapter")
	flags.StringVar(&modelFlag, "model", "", "route every task to this model or alias")
	flags.BoolVar(&offlineFlag, "offline", false, "never call a model; answer synthetically")
	flags.BoolVar(&degradeFlag, "degrade", false, "substitute synthetic answers when a model call fails")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
	flags.DurationVar(&timeoutFlag, "timeout", 0, "per-call model timeout (0 uses config)")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(scenariosCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(validateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func extractCmd() *cobra.Command {
	var llmFlag bool

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract requirements from a document",
		Long: `Parses the document and prints its requirements as JSON.

	Explicit markers such as "REQ-1:" are used when present; otherwise
	sentences with obligation keywords are kept. Use --llm to ask the
	extraction model first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := &pipeline.Manifest{
				Name: "extract",
				Sources: sourceNames(
					blackboard.KindDocumentParser,
					blackboard.KindTextCleaner,
					blackboard.KindLLMRequirementExtractor,
					blackboard.KindRegexRequirementExtractor,
					blackboard.KindResultFormatter,
				),
				Extraction: pipeline.Extraction{LLM: &llmFlag},
			}

			env, err := newEnv(cmd.Context(), 0)
			if err != nil {
				return err
			}
			res, err := env.run(cmd.Context(), m, args[0], "")
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Extracted %d requirements (%s)\n", len(res.Result.Requirements), res.Result.RequirementsMethod)
			return writeJSON(res.Result.Requirements)
		},
	}

	cmd.Flags().BoolVar(&llmFlag, "llm", false, "ask the extraction model before falling back to pattern matching")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var parallel int
	var format string
	var outFlag string

	cmd := &cobra.Command{
		Use:   "analyze [files...]",
		Short: "Check documents for inconsistent requirements",
		Long: `Extracts requirements from each document and reports contradictions.

	Documents are analyzed independently; --parallel runs several at once.
	Reports are printed in input order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "markdown" && format != "json" {
				return fmt.Errorf("unsupported format %q", format)
			}
			m := &pipeline.Manifest{
				Name: "analyze",
				Sources: sourceNames(
					blackboard.KindDocumentParser,
					blackboard.KindTextCleaner,
					blackboard.KindRegexRequirementExtractor,
					blackboard.KindConsistencyChecker,
					blackboard.KindResultFormatter,
				),
			}

			env, err := newEnv(cmd.Context(), 0)
			if err != nil {
				return err
			}

			results := make([]*pipeline.RunResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))
			for i, path := range args {
				g.Go(func() error {
					res, err := env.run(ctx, m, path, outFlag)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, res := range results {
				if format == "json" {
					if err := writeJSON(res.Result); err != nil {
						return err
					}
					continue
				}
				if len(args) > 1 {
					fmt.Printf("<!-- %s -->\n", args[i])
				}
				if res.Result.Consistency != nil {
					fmt.Print(report.Markdown(*res.Result.Consistency))
				}
				if res.EvidenceDir != "" {
					fmt.Fprintf(os.Stderr, "Evidence: %s\n", res.EvidenceDir)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "number of documents analyzed at once")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown or json")
	cmd.Flags().StringVar(&outFlag, "out", "", "evidence output base directory")
	return cmd
}

func scenariosCmd() *cobra.Command {
	var format string
	var outFile string
	var llmFlag bool

	cmd := &cobra.Command{
		Use:   "scenarios [file]",
		Short: "Generate QA test scenarios for each requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := &pipeline.Manifest{
				Name: "scenarios",
				Sources: sourceNames(
					blackboard.KindDocumentParser,
					blackboard.KindTextCleaner,
					blackboard.KindLLMRequirementExtractor,
					blackboard.KindRegexRequirementExtractor,
					blackboard.KindScenarioGenerator,
					blackboard.KindResultFormatter,
				),
				Extraction: pipeline.Extraction{LLM: &llmFlag},
			}

			env, err := newEnv(cmd.Context(), 0)
			if err != nil {
				return err
			}
			res, err := env.run(cmd.Context(), m, args[0], "")
			if err != nil {
				return err
			}

			var out []byte
			switch format {
			case "json":
				if out, err = report.JSON(report.ScenarioJSON(res.Result)); err != nil {
					return err
				}
			case "markdown":
				out = []byte(report.ScenariosMarkdown(res.Result))
			default:
				return fmt.Errorf("unsupported format %q", format)
			}

			if outFile == "" {
				_, err = os.Stdout.Write(out)
				return err
			}
			if err := os.WriteFile(outFile, out, 0644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Scenarios for %d requirements written to %s\n", len(res.Result.Requirements), outFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or markdown")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&llmFlag, "llm", true, "ask the extraction model before falling back to pattern matching")
	return cmd
}

func runCmd() *cobra.Command {
	var pipelineFile string
	var outFlag string
	var maxBudgetUSD float64
	var maxPasses int

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a pipeline manifest against a document",
		Long: `Runs the knowledge sources named in the manifest and prints the
	processing result as JSON. Without --pipeline every source runs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := pipeline.DefaultManifest()
			if pipelineFile != "" {
				var err error
				if m, err = pipeline.LoadManifest(pipelineFile); err != nil {
					return err
				}
			}

			env, err := newEnv(cmd.Context(), maxBudgetUSD)
			if err != nil {
				return err
			}
			env.pipelinePath = pipelineFile
			env.maxPasses = maxPasses

			res, err := env.run(cmd.Context(), m, args[0], outFlag)
			if err != nil {
				return err
			}

			if res.EvidenceDir != "" {
				fmt.Fprintf(os.Stderr, "Run complete in %d passes. Evidence: %s\n", res.Stats.Passes, res.EvidenceDir)
			}
			return writeJSON(res.Result)
		},
	}

	cmd.Flags().StringVarP(&pipelineFile, "pipeline", "f", "", "pipeline manifest path")
	cmd.Flags().StringVar(&outFlag, "out", ".reqlens/runs", "evidence output base directory (empty disables)")
	cmd.Flags().Float64Var(&maxBudgetUSD, "max-budget-usd", 0, "maximum USD budget for model calls (0 disables)")
	cmd.Flags().IntVar(&maxPasses, "max-passes", 0, "scheduler pass cap (0 uses twice the number of sources)")
	return cmd
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool
	var validateFlag bool

	cmd := &cobra.Command{
		Use:   "models [name...]",
		Short: "List available adapters, models, and aliases",
		Long: `Lists adapters, their models and the task routes.

	Use --resolve to show how aliases resolve; names given as arguments are
	resolved instead of the whole alias table.
	Use --validate to check all routed and fallback models are known.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if resolveFlag {
				names := args
				if len(names) == 0 {
					names = catalog.AliasNames()
				}
				return writeResolutions(os.Stdout, catalog, names)
			}
			if validateFlag {
				return checkRouting(cfg)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")
			for _, provider := range catalog.ProviderNames() {
				status := "no key"
				if cfg.HasAdapter(provider) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, formatList(catalog.Models(provider)), status)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "TASK\tROUTE")
			for _, task := range config.Tasks {
				target := cfg.RoutingConfig.Target(task)
				target.Model = catalog.Resolve(target.Model)
				fmt.Fprintf(w, "%s\t%s\n", task, target)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show how aliases or the given names resolve")
	cmd.Flags().BoolVar(&validateFlag, "validate", false, "check all routed models resolve to known models")
	return cmd
}

// writeResolutions prints one row per name: whether it is an alias, the
// model it ends at, the aliases passed through and the serving provider.
func writeResolutions(out io.Writer, c *config.Catalog, names []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tMODEL\tVIA\tPROVIDER")
	for _, name := range names {
		res := c.Lookup(name)
		kind := "model"
		if res.IsAlias() {
			kind = "alias"
		}
		provider := res.Provider
		if provider == "" {
			provider = "unknown"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, kind, res.Model, formatList(res.Chain[min(1, len(res.Chain)):]), provider)
	}
	return w.Flush()
}

func checkRouting(cfg *config.Config) error {
	errs := catalog.CheckRouting(cfg.RoutingConfig)
	if len(errs) == 0 {
		fmt.Println("All routed models are valid.")
		return nil
	}
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
	}
	return fmt.Errorf("%d routing errors", len(errs))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [pipeline.yaml]",
		Short: "Validate a pipeline manifest",
		Long:  "Validates pipeline YAML without executing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pipeline.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}
			fmt.Println("Pipeline manifest is valid.")
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadWithRoutingFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	catalog, err = config.LayeredCatalog("configs/models.yaml")
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// env is the per-invocation wiring shared by the analysis commands. Each
// document run gets its own cost tracker and router, so a run's cost report
// and budget only cover that run's calls.
type env struct {
	cfg          *config.Config
	adapters     map[string]adapter.Adapter
	routerCfg    oracle.RouterConfig
	maxBudgetUSD float64
	pipelinePath string
	maxPasses    int
}

func newEnv(ctx context.Context, maxBudgetUSD float64) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if adapterFlag != "" || modelFlag != "" {
		cfg.RoutingConfig.Override(adapterFlag, catalog.Resolve(modelFlag))
	}

	adapters, errs := adapter.Registry(ctx, adapter.Keys{
		Anthropic: cfg.AnthropicAPIKey,
		OpenAI:    cfg.OpenAIAPIKey,
		Google:    cfg.GoogleAPIKey,
		Groq:      cfg.GroqAPIKey,
	})
	for name, err := range errs {
		logger.Warn("adapter unavailable", zap.String("adapter", name), zap.Error(err))
	}
	logger.Debug("adapters ready", zap.Strings("adapters", adapter.Names(adapters)))

	timeout := cfg.Oracle.Timeout
	if timeoutFlag > 0 {
		timeout = timeoutFlag
	}

	return &env{
		cfg:      cfg,
		adapters: adapters,
		routerCfg: oracle.RouterConfig{
			Routing: cfg.RoutingConfig,
			Catalog: catalog,
			Timeout: timeout,
			Offline: cfg.Oracle.Offline || offlineFlag,
			Degrade: cfg.Oracle.Degrade || degradeFlag,
			Logger:  logger,
		},
		maxBudgetUSD: maxBudgetUSD,
	}, nil
}

func (e *env) newRouter() (*oracle.Router, *oracle.CostTracker) {
	tracker := oracle.NewCostTracker(e.cfg.RoutingConfig, e.maxBudgetUSD)
	rc := e.routerCfg
	rc.Tracker = tracker
	return oracle.NewRouter(e.adapters, rc), tracker
}

func (e *env) run(ctx context.Context, m *pipeline.Manifest, input, evidenceDir string) (*pipeline.RunResult, error) {
	router, tracker := e.newRouter()
	return pipeline.Run(ctx, m, pipeline.RunOptions{
		Input:        input,
		Oracles:      router,
		Analysis:     e.cfg.Analysis,
		Tracker:      tracker,
		EvidenceDir:  evidenceDir,
		PipelinePath: e.pipelinePath,
		MaxPasses:    e.maxPasses,
		Logger:       logger.With(zap.String("input", input)),
	})
}

func sourceNames(kinds ...blackboard.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

func writeJSON(v any) error {
	data, err := report.JSON(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
