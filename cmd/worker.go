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

	"sfs/forecast-engine/internal/worker"
	"sfs/forecast-engine/pkg/logger"
)

var (
	workerID      string
	workerMaster  string
	workerSlots   int
	workerLabels  string
	workerAPIKey  string
	workerLeaseN  int
	workerHBEvery time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a forecast worker",
	Long: `Start a worker process. It registers with the master, leases task
batches over the REST API, runs them on the local pool, and submits the
results back.`,
	Example: `  # Connect to a local master
  forecast-engine worker

  # Remote master with an API key
  forecast-engine worker --master http://master:8080 --api-key secret

  # 16 concurrent series, labelled for placement
  forecast-engine worker --slots 16 --labels region=eu,tier=fast`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerID, "id", "", "worker ID (generated when empty)")
	workerCmd.Flags().StringVar(&workerMaster, "master", "", "master base URL (overrides config)")
	workerCmd.Flags().IntVar(&workerSlots, "slots", 0, "concurrent forecast slots (default number of CPUs)")
	workerCmd.Flags().StringVar(&workerLabels, "labels", "", "labels, key=value pairs separated by commas")
	workerCmd.Flags().StringVar(&workerAPIKey, "api-key", "", "API key for the master")
	workerCmd.Flags().IntVar(&workerLeaseN, "lease", 0, "batches to lease per poll")
	workerCmd.Flags().DurationVar(&workerHBEvery, "heartbeat-interval", 0, "heartbeat interval (overrides config)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)
	defer logger.Sync()

	wcfg := worker.DefaultConfig()
	wcfg.ID = workerID
	wcfg.MasterURL = normalizeMasterURL(cfg.Worker.MasterAddr)
	wcfg.APIKey = workerAPIKey
	wcfg.Version = Version

	if cfg.Worker.Slots > 0 {
		wcfg.Slots = cfg.Worker.Slots
	}
	if cfg.Worker.HeartbeatInterval > 0 {
		wcfg.HeartbeatInterval = cfg.Worker.HeartbeatInterval
	}
	if len(cfg.Worker.Labels) > 0 {
		wcfg.Labels = cfg.Worker.Labels
	}

	if workerMaster != "" {
		wcfg.MasterURL = normalizeMasterURL(workerMaster)
	}
	if workerSlots > 0 {
		wcfg.Slots = workerSlots
	}
	if workerLeaseN > 0 {
		wcfg.LeaseMax = workerLeaseN
	}
	if workerHBEvery > 0 {
		wcfg.HeartbeatInterval = workerHBEvery
	}
	if workerLabels != "" {
		wcfg.Labels = parseLabels(workerLabels)
	}

	w := worker.New(wcfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Println()
		fmt.Printf("  Worker ID: %s\n", w.ID())
		fmt.Printf("  Master:    %s\n", wcfg.MasterURL)
		fmt.Printf("  Slots:     %d\n", wcfg.Slots)
		if len(wcfg.Labels) > 0 {
			fmt.Printf("  Labels:    %v\n", wcfg.Labels)
		}
		fmt.Println()
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	if !quiet {
		fmt.Println("Worker started. Press Ctrl+C to stop.")
	}

	select {
	case <-sigCh:
		fmt.Println("\nStopping worker...")
	case <-w.Stopped():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := w.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping worker: %w", err)
	}

	if !quiet {
		fmt.Println("Worker stopped.")
	}
	return nil
}

// normalizeMasterURL defaults the scheme to http.
func normalizeMasterURL(addr string) string {
	if addr == "" {
		return addr
	}
	if !strings.Contains(addr, "://") {
		return "http://" + addr
	}
	return addr
}

func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 {
			labels[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return labels
}
