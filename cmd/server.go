package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sfs/forecast-engine/api/rest"
	"sfs/forecast-engine/internal/master"
	"sfs/forecast-engine/internal/schedule"
	"sfs/forecast-engine/internal/store"
	"sfs/forecast-engine/pkg/engine"
	"sfs/forecast-engine/pkg/logger"
)

var (
	serverAddress    string
	serverStandalone bool
	serverMaxJobs    int
	serverDataDir    string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the master node with the REST API",
	Long: `Start the master node. It accepts job submissions and dataset
uploads over the REST API, schedules task batches onto registered
workers, and aggregates results into reports.

With --standalone, jobs execute in-process and no workers are needed.
A database and Redis, when configured, persist job history and cache
reports.`,
	Example: `  # Standalone server on the default address
  forecast-engine server --standalone

  # Distributed master for remote workers
  forecast-engine server --address :8080

  # With a config file
  forecast-engine server --config config/config.yml`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverAddress, "address", "", "HTTP listen address (overrides config)")
	serverCmd.Flags().BoolVar(&serverStandalone, "standalone", false, "execute jobs in-process, no workers needed")
	serverCmd.Flags().IntVar(&serverMaxJobs, "max-jobs", 100, "maximum concurrent jobs")
	serverCmd.Flags().StringVar(&serverDataDir, "data-dir", "", "directory for uploaded datasets (overrides default)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)
	defer logger.Sync()

	if cmd.Flags().Changed("address") {
		cfg.Server.Address = serverAddress
	}

	// Persistence and cache, both optional.
	var (
		st *store.Store
		ca *store.Cache
	)
	if cfg.Database.Enabled() {
		st, err = store.Open(&cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer st.Close()
	}
	if cfg.Redis.Enabled() {
		ca, err = store.OpenCache(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer ca.Close()
	}

	eng := engine.New(&engine.Config{
		Standalone:       serverStandalone,
		MaxJobs:          serverMaxJobs,
		HeartbeatTimeout: cfg.Master.HeartbeatTimeout,
		Slots:            cfg.Worker.Slots,
	})

	var sinks master.MultiSink
	if st != nil {
		sinks = append(sinks, st)
	}
	if ca != nil {
		sinks = append(sinks, ca)
	}
	if len(sinks) > 0 {
		eng.SetSink(sinks)
	}

	if err := eng.Start(); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Stop()

	restCfg := rest.DefaultConfig()
	restCfg.Address = cfg.Server.Address
	restCfg.ReadTimeout = cfg.Server.ReadTimeout
	restCfg.WriteTimeout = cfg.Server.WriteTimeout
	if cfg.Server.BodyLimit > 0 {
		restCfg.BodyLimit = cfg.Server.BodyLimit
	}
	restCfg.EnableCORS = cfg.Server.EnableCORS
	restCfg.HeartbeatInterval = cfg.Master.HeartbeatInterval
	if serverDataDir != "" {
		restCfg.DataDir = serverDataDir
	}
	if cfg.Server.AuthMode != "" && cfg.Server.AuthMode != "none" {
		restCfg.Auth = &rest.AuthConfig{
			Enabled:   true,
			Type:      cfg.Server.AuthMode,
			APIKey:    cfg.Server.APIKey,
			JWTSecret: cfg.Server.JWTSecret,
		}
	}

	var opts []rest.Option
	if st != nil {
		opts = append(opts, rest.WithStore(st))
	}
	if ca != nil {
		opts = append(opts, rest.WithCache(ca))
	}

	srv := rest.NewServer(eng.Master(), eng.Registry(), restCfg, opts...)

	// Dataset refresh scheduler, optional.
	var sched *schedule.Scheduler
	if cfg.Schedule.Enabled {
		var schedOpts []schedule.Option
		if ca != nil {
			schedOpts = append(schedOpts, schedule.WithRedisLock(ca.Client()))
		}
		sched, err = schedule.New(&cfg.Schedule, eng.Submit, schedOpts...)
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
		sched.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Println()
		fmt.Printf("  Address:    %s\n", cfg.Server.Address)
		fmt.Printf("  Standalone: %v\n", serverStandalone)
		fmt.Printf("  Max jobs:   %d\n", serverMaxJobs)
		if st != nil {
			fmt.Printf("  Database:   %s\n", cfg.Database.Driver)
		}
		if ca != nil {
			fmt.Printf("  Redis:      %s\n", cfg.Redis.Addr())
		}
		if sched != nil {
			fmt.Printf("  Schedule:   %s\n", cfg.Schedule.DatasetDir)
		}
		fmt.Println()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if !quiet {
		fmt.Println("Server started. Press Ctrl+C to stop.")
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown failed", zap.Error(err))
		}
	}
	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	if err := eng.Stop(); err != nil {
		return fmt.Errorf("stopping engine: %w", err)
	}

	if !quiet {
		fmt.Println("Server stopped.")
	}
	return nil
}
