package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
)

type explainOptions struct {
	scorer        scorerOptions
	instancesPath string
	configPath    string
	outDir        string
	concurrency   int

	threshold    float64
	maxIter      int
	maxExplained int
	maxFeatures  int
}

func newExplainCmd() *cobra.Command {
	opts := &explainOptions{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain the predictions for a file of instances",
		Long: `Explain runs the counterfactual search for every instance in a JSON file
and writes the results to a timestamped file in the output directory.

Example:
  edc explain --model model.yaml --instances docs.json --max-explained 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, opts)
		},
	}

	opts.scorer.register(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&opts.instancesPath, "instances", "i", "", "JSON file holding a list of sparse instances (required)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML search configuration")
	flags.StringVarP(&opts.outDir, "out", "o", ".", "Directory for the result file")
	flags.IntVar(&opts.concurrency, "concurrency", counterfactual.DefaultBatchConcurrency, "Instances explained at once")
	flags.Float64Var(&opts.threshold, "threshold", counterfactual.DefaultThreshold, "Decision threshold")
	flags.IntVar(&opts.maxIter, "max-iter", counterfactual.DefaultMaxIter, "Maximum expansion iterations")
	flags.IntVar(&opts.maxExplained, "max-explained", counterfactual.DefaultMaxExplained, "Maximum explanations per instance")
	flags.IntVar(&opts.maxFeatures, "max-features", counterfactual.DefaultMaxFeatures, "Maximum explanation size, 0 to disable")
	_ = cmd.MarkFlagRequired("instances")

	return cmd
}

func runExplain(cmd *cobra.Command, opts *explainOptions) error {
	cfg, err := searchConfig(cmd, opts)
	if err != nil {
		return err
	}
	cfg.Logger = logger

	setup, err := opts.scorer.build(logger)
	if err != nil {
		return err
	}
	defer setup.Close()

	instances, err := loadInstances(opts.instancesPath)
	if err != nil {
		return err
	}

	if err := checkDimensions(instances, setup.dim); err != nil {
		return err
	}

	explainer, err := counterfactual.NewExplainer(setup.scorer, cfg)
	if err != nil {
		return err
	}

	logger.Info("explaining instances",
		zap.Int("instances", len(instances)),
		zap.String("scorer", opts.scorer.kind),
		zap.Int("concurrency", opts.concurrency))

	results, err := explainer.ExplainBatch(cmd.Context(), instances, setup.featureNames, opts.concurrency)
	if err != nil {
		return err
	}

	path, err := saveResultsToFile(opts.outDir, results)
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	found := 0
	for _, r := range results {
		if r.Found() {
			found++
		}
	}
	if setup.cache != nil {
		hits, misses := setup.cache.Stats()
		logger.Info("score cache", zap.Int64("hits", hits), zap.Int64("misses", misses))
	}
	logger.Info("results saved",
		zap.String("path", path),
		zap.Int("explained", found),
		zap.Int("instances", len(results)))

	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d instances explained, results in %s\n", found, len(results), path)
	return nil
}

// searchConfig starts from the defaults, applies the config file and then any flag set explicitly
func searchConfig(cmd *cobra.Command, opts *explainOptions) (counterfactual.Config, error) {
	cfg := counterfactual.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := loadConfig(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Threshold = opts.threshold
	}
	if flags.Changed("max-iter") {
		cfg.MaxIter = opts.maxIter
	}
	if flags.Changed("max-explained") {
		cfg.MaxExplained = opts.maxExplained
	}
	if flags.Changed("max-features") {
		cfg.MaxFeatures = opts.maxFeatures
	}
	return cfg, nil
}
