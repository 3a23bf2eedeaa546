package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/internal/report"
	"sfs/forecast-engine/pkg/engine"
	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/metrics"
	"sfs/forecast-engine/pkg/output"
	"sfs/forecast-engine/pkg/types"
)

var (
	runHorizon    int
	runFreq       string
	runFreqOut    string
	runStride     int
	runMaxWorkers int
	runSlots      int
	runName       string
	runSpecFile   string
	runOutputs    []string
	runExportDir  string
	runNoExport   bool
	runCompress   bool
)

var runCmd = &cobra.Command{
	Use:   "run [dataset.csv]",
	Short: "Forecast a dataset in standalone mode",
	Long: `Run the full forecast flow on one machine: load and validate the
dataset, compute the health summary, fit candidate models per series with
rolling-origin cross-validation, and print the report.

The dataset is a CSV (optionally gzipped) with the columns
timestamp, channel, family, item_id, demand. It is named on the command
line or by the spec file's dataset field; the command line wins.`,
	Example: `  # Daily data, 12-period horizon
  forecast-engine run demand.csv

  # Weekly data, forecast 8 weeks ahead
  forecast-engine run --freq W --horizon 8 demand.csv

  # Resample daily input to a monthly forecast
  forecast-engine run --freq D --freq-out M --horizon 6 demand.csv

  # Push per-series metrics to InfluxDB while running
  forecast-engine run -o influxdb=http://localhost:8086/forecasts demand.csv

  # Load the job spec, dataset included, from a file
  forecast-engine run --spec job.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runForecast,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runHorizon, "horizon", "H", 0, "periods to forecast (default 12)")
	runCmd.Flags().StringVar(&runFreq, "freq", "", "input data frequency (D, W, M; default D)")
	runCmd.Flags().StringVar(&runFreqOut, "freq-out", "", "forecast frequency (defaults to input frequency)")
	runCmd.Flags().IntVar(&runStride, "stride", 0, "step between cross-validation origins")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "cap on per-job parallelism")
	runCmd.Flags().IntVarP(&runSlots, "workers", "w", 0, "local pool size (default number of CPUs)")
	runCmd.Flags().StringVar(&runName, "name", "", "job name (defaults to the dataset file name)")
	runCmd.Flags().StringVar(&runSpecFile, "spec", "", "YAML job spec file; flags override its fields")
	runCmd.Flags().StringArrayVarP(&runOutputs, "out", "o", nil, "metric output target, format: type=config (repeatable)")
	runCmd.Flags().StringVar(&runExportDir, "export-dir", ".", "directory for CSV exports")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "skip CSV exports")
	runCmd.Flags().BoolVar(&runCompress, "compress", false, "gzip the CSV exports")
}

func runForecast(cmd *cobra.Command, args []string) error {
	var datasetPath string
	if len(args) > 0 {
		datasetPath = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)
	defer logger.Sync()

	spec, fileOutputs, err := buildRunSpec(datasetPath, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nAborting forecast...")
		cancel()
	}()

	if !quiet {
		printRunInfo(spec)
	}

	slots := runSlots
	if slots <= 0 {
		slots = engine.DefaultConfig().Slots
	}

	eng := engine.New(&engine.Config{
		Standalone:       true,
		MaxJobs:          1,
		HeartbeatTimeout: 30 * time.Second,
		Slots:            slots,
	})
	if err := eng.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Stop()

	// Metric outputs: config file entries, then the spec file's, then
	// -o flags.
	outputConfigs := append([]types.OutputConfig{}, cfg.Outputs...)
	outputConfigs = append(outputConfigs, fileOutputs...)
	for _, out := range runOutputs {
		parts := strings.SplitN(out, "=", 2)
		oc := types.OutputConfig{Type: parts[0]}
		if len(parts) > 1 {
			oc.URL = parts[1]
		}
		outputConfigs = append(outputConfigs, oc)
	}

	var (
		samplesChan  chan metrics.SampleContainer
		outputFinish func(error)
	)
	if len(outputConfigs) > 0 {
		finish, ch, err := startOutputPipeline(ctx, eng, outputConfigs, spec)
		if err != nil {
			return fmt.Errorf("starting outputs: %w", err)
		}
		outputFinish = finish
		samplesChan = ch
	}

	printer := newProgressPrinter(quiet)
	start := time.Now()

	rep, runErr := eng.RunForecast(ctx, spec, func(state *types.JobState) {
		printer.update(state, time.Since(start))
	})
	printer.clear()

	if outputFinish != nil {
		close(samplesChan)
		outputFinish(runErr)
	}

	if runErr != nil {
		return runErr
	}

	if !quiet {
		report.Render(os.Stdout, rep)
	}

	if !runNoExport {
		files, err := report.ExportFiles(runExportDir, rep, runCompress)
		if err != nil {
			return fmt.Errorf("exporting CSV files: %w", err)
		}
		if !quiet {
			fmt.Println("  Exported:")
			for _, f := range files {
				fmt.Printf("    - %s\n", f)
			}
			fmt.Println()
		}
	}

	return nil
}

// buildRunSpec assembles the job spec for a standalone run. Fields come
// from the optional spec file and the config defaults, with command
// flags overriding both. The spec file's output targets are returned
// for the caller to merge with the config and -o targets.
func buildRunSpec(datasetPath string, cfg *config.Config) (*types.JobSpec, []types.OutputConfig, error) {
	spec := &types.JobSpec{}

	var fileOutputs []types.OutputConfig
	if runSpecFile != "" {
		data, err := os.ReadFile(runSpecFile)
		if err != nil {
			return nil, nil, fmt.Errorf("reading spec file: %w", err)
		}
		jf, err := config.ParseJobFile(data)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing spec file: %w", err)
		}
		spec.Name = jf.Name
		spec.DatasetPath = jf.Dataset
		spec.Horizon = jf.Horizon
		spec.ObjMetric = jf.ObjMetric
		spec.CVStride = jf.CVStride
		spec.MaxWorkers = jf.MaxWorkers
		spec.Transform = jf.Transform
		if jf.FreqIn != "" {
			spec.FreqIn, _ = types.ParseFrequency(jf.FreqIn)
		}
		if jf.FreqOut != "" {
			spec.FreqOut, _ = types.ParseFrequency(jf.FreqOut)
		}
		fileOutputs = jf.Outputs
	}

	if datasetPath != "" {
		spec.DatasetPath = datasetPath
	}
	spec.DatasetID = ""
	spec.Backend = types.BackendLocal

	if spec.ObjMetric == "" {
		spec.ObjMetric = cfg.Forecast.ObjMetric
	}
	if spec.CVStride == 0 {
		spec.CVStride = cfg.Forecast.CVStride
	}
	if spec.MaxWorkers == 0 {
		spec.MaxWorkers = cfg.Forecast.MaxWorkers
	}

	if runName != "" {
		spec.Name = runName
	}
	if runHorizon > 0 {
		spec.Horizon = runHorizon
	}
	if runStride > 0 {
		spec.CVStride = runStride
	}
	if runMaxWorkers > 0 {
		spec.MaxWorkers = runMaxWorkers
	}
	if runFreq != "" {
		freq, err := types.ParseFrequency(runFreq)
		if err != nil {
			return nil, nil, err
		}
		spec.FreqIn = freq
	}
	if runFreqOut != "" {
		freq, err := types.ParseFrequency(runFreqOut)
		if err != nil {
			return nil, nil, err
		}
		spec.FreqOut = freq
	}

	if spec.FreqIn == "" {
		spec.FreqIn = types.FreqDaily
	}
	if spec.Horizon == 0 {
		spec.Horizon = 12
	}

	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid job spec: %w", err)
	}
	return spec, fileOutputs, nil
}

// startOutputPipeline wires the metric outputs to the engine pool. The
// returned finish function must be called after the samples channel is
// closed; it drains buffered samples and stops the outputs with the
// final run status.
func startOutputPipeline(ctx context.Context, eng *engine.Engine, configs []types.OutputConfig, spec *types.JobSpec) (func(error), chan metrics.SampleContainer, error) {
	outLog := &outputLogger{}

	outs, err := output.CreateOutputsFromConfig(ctx, configs, output.Params{
		Logger:  outLog,
		JobName: spec.Name,
	})
	if err != nil {
		return nil, nil, err
	}

	samplesChan := output.NewSamplesChannel()
	manager := output.NewManager(outs, outLog)
	_, finish, err := manager.Start(samplesChan)
	if err != nil {
		return nil, nil, err
	}

	emitter := output.NewSampleEmitter(samplesChan, map[string]string{"job": spec.Name})
	eng.Pool().SetEmitter(emitter)

	return finish, samplesChan, nil
}

func printRunInfo(spec *types.JobSpec) {
	fmt.Printf(Banner, Version)
	fmt.Println()
	fmt.Printf("  Dataset:   %s\n", spec.DatasetPath)
	fmt.Printf("  Frequency: %s", spec.FreqIn)
	if spec.FreqOut != spec.FreqIn {
		fmt.Printf(" -> %s", spec.FreqOut)
	}
	fmt.Println()
	fmt.Printf("  Horizon:   %d periods\n", spec.Horizon)
	fmt.Printf("  Objective: %s\n", spec.ObjMetric)
	fmt.Println()
	fmt.Println("Forecasting...")
	fmt.Println()
}

// progressPrinter renders an in-place progress bar on a TTY.
type progressPrinter struct {
	quiet      bool
	lastLines  int
	lastUpdate time.Time
}

func newProgressPrinter(quiet bool) *progressPrinter {
	return &progressPrinter{quiet: quiet}
}

func (p *progressPrinter) update(state *types.JobState, elapsed time.Duration) {
	if p.quiet {
		return
	}
	if time.Since(p.lastUpdate) < 500*time.Millisecond {
		return
	}
	p.lastUpdate = time.Now()

	p.clear()

	frac := state.Progress.Fraction()
	barWidth := 30
	filled := int(frac * float64(barWidth))
	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar.WriteRune('█')
		} else {
			bar.WriteRune('░')
		}
	}

	var eta string
	if frac > 0 && frac < 1 {
		remaining := time.Duration(float64(elapsed) / frac * (1 - frac))
		eta = fmt.Sprintf("eta %s", remaining.Round(time.Second))
	}

	fmt.Printf("  [%s] %.1f%% %s\n", bar.String(), frac*100, eta)
	fmt.Printf("  elapsed: %-10s series: %d/%d  failed: %d\n",
		elapsed.Round(time.Second),
		state.Progress.DoneSeries, state.Progress.TotalSeries, state.Progress.FailedSeries)
	p.lastLines = 2

	fmt.Print("\033[?25l")
}

func (p *progressPrinter) clear() {
	if p.quiet || p.lastLines == 0 {
		return
	}
	for i := 0; i < p.lastLines; i++ {
		fmt.Print("\033[A\033[K")
	}
	fmt.Print("\033[?25h")
	p.lastLines = 0
}

// outputLogger adapts the zap logger to the printf-style interface the
// output plugins expect.
type outputLogger struct{}

func (outputLogger) Debug(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (outputLogger) Info(format string, args ...interface{}) {
	logger.Info(fmt.Sprintf(format, args...))
}

func (outputLogger) Warn(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (outputLogger) Error(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}
