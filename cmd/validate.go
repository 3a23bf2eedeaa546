package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"sfs/forecast-engine/internal/dataset"
	"sfs/forecast-engine/pkg/types"
)

var (
	validateFreq    string
	validateVerbose bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <dataset.csv>",
	Short: "Validate a dataset without forecasting",
	Long: `Check a dataset against the required schema, then load it and print
the health summary and demand classification. No forecast is run.`,
	Example: `  forecast-engine validate demand.csv

  # Weekly data, with per-series detail
  forecast-engine validate --freq W --verbose demand.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFreq, "freq", "D", "data frequency (D, W, M)")
	validateCmd.Flags().BoolVar(&validateVerbose, "verbose", false, "print per-series health")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	freq, err := types.ParseFrequency(validateFreq)
	if err != nil {
		return err
	}

	result, err := dataset.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("reading dataset: %w", err)
	}

	if !quiet {
		fmt.Printf("Validating %s\n\n", path)
	}

	for _, warning := range result.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
	if !result.OK() {
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}

	frame, err := dataset.NewLoader(freq).Load(path)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	health := dataset.ComputeHealth(frame)
	class := dataset.Classify(frame)

	printHealth(health, class)

	if validateVerbose {
		printSeriesHealth(health)
	}

	fmt.Println("Dataset is valid.")
	return nil
}

func printHealth(health *types.HealthSummary, class *types.Classification) {
	fmt.Println("  Health summary:")
	fmt.Println()
	fmt.Printf("    Frequency..........: %s\n", health.Freq)
	fmt.Printf("    Series.............: %d\n", health.NumSeries)
	fmt.Printf("    Channels...........: %d\n", health.NumChannels)
	fmt.Printf("    Families...........: %d\n", health.NumFamilies)
	fmt.Printf("    Items..............: %d\n", health.NumItemIDs)
	fmt.Printf("    Date range.........: %s to %s (%d periods)\n",
		health.FirstDate.Format("2006-01-02"), health.LastDate.Format("2006-01-02"), health.Duration)
	fmt.Printf("    Missing data.......: %.1f%%\n", health.PctMissing*100)
	fmt.Printf("    History length.....: median %.0f, shortest %d, longest %d\n",
		health.Lengths.Median, health.Lengths.Min, health.Lengths.Max)
	fmt.Println()

	fmt.Println("  Demand classification:")
	fmt.Println()
	for _, category := range types.Categories {
		fmt.Printf("    %-19s: %d%%\n", category, class.Perc[category])
	}
	fmt.Println()
}

func printSeriesHealth(health *types.HealthSummary) {
	series := append([]types.SeriesHealth{}, health.Series...)
	sort.Slice(series, func(i, j int) bool {
		return series[i].Key.String() < series[j].Key.String()
	})

	fmt.Println("  Per-series detail:")
	fmt.Println()
	for _, s := range series {
		missing := 0.0
		if s.DemandLen > 0 {
			missing = float64(s.DemandMissingDates) / float64(s.DemandLen) * 100
		}
		fmt.Printf("    %-40s length %-5d missing %.1f%%\n",
			s.Key.String(), s.DemandLen, missing)
	}
	fmt.Println()
}
