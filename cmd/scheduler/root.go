package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/guido-cesarano/rrscheduler/pkg/config"
	"github.com/guido-cesarano/rrscheduler/pkg/events"
	"github.com/guido-cesarano/rrscheduler/pkg/logger"
	"github.com/guido-cesarano/rrscheduler/pkg/metrics"
	"github.com/guido-cesarano/rrscheduler/pkg/monitor"
	"github.com/guido-cesarano/rrscheduler/pkg/scheduler"
	"github.com/guido-cesarano/rrscheduler/pkg/simulator"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rrscheduler",
		Short: "Round-robin resource scheduler",
		Long: `
rrscheduler allocates a fixed pool of resources to tasks queued per project.
Every pass gives each project with pending work at most one free resource;
inside a project the lowest priority value goes first.
`,
		Example: `  $ rrscheduler run -n 3 -p 5
  $ rrscheduler sample -n 2 -p 4 --passes 3`,

		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "YAML config file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(), newSampleCmd())

	return root
}

// loadConfig resolves defaults, file, env and explicit flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("log level: %w", err)
	}

	return cfg, nil
}

func newScheduler(cfg config.Config, log zerolog.Logger, sink events.Sink) (*scheduler.Scheduler, error) {
	opts := []scheduler.Option{
		scheduler.WithSink(sink),
		scheduler.WithInterval(cfg.Interval),
		scheduler.WithLogger(log),
	}

	if cfg.WakeOnEnqueue {
		opts = append(opts, scheduler.WithWakeOnEnqueue())
	}

	return scheduler.New(cfg.NumResources, cfg.NumProjects, opts...)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the allocator with simulated task arrival and completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Setup graceful shutdown handlers
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			go func() {
				select {
				case <-sigChan:
					logger.Log.Info().Msg("Program interrupted, stopping actors...")
					cancel()
				case <-ctx.Done():
				}
			}()

			return run(ctx, cfg, logger.Log)
		},
	}
}

// run wires the actors and blocks until ctx is cancelled and all of them
// have returned.
func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	m := metrics.New()

	sinks := []events.Sink{
		events.NewLogSink(log),
		m,
	}

	var journal *events.RedisSink
	if cfg.RedisAddr != "" {
		journal = events.NewRedisSink(cfg.RedisAddr, 1024, log)
		defer journal.Close()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		errPing := journal.Ping(pingCtx)
		cancelPing()

		if errPing != nil {
			return fmt.Errorf("event journal at %s: %w", cfg.RedisAddr, errPing)
		}

		sinks = append(sinks, journal)
	}

	sched, err := newScheduler(cfg, log, events.Multi(sinks...))
	if err != nil {
		return err
	}

	mon := monitor.New(sched, log, m)
	if err := mon.Start(cfg.ReportSpec); err != nil {
		return fmt.Errorf("status report %q: %w", cfg.ReportSpec, err)
	}
	defer mon.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())

		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()

		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancelShutdown()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	sim := simulator.New(cfg, simulator.WithLogger(log))

	runActors(ctx, journal,
		sched.AllocateResources,
		func(ctx context.Context) { sim.GenerateTasks(ctx, sched) },
		func(ctx context.Context) { sim.CompleteTasks(ctx, sched) },
	)

	log.Info().Msg("All actors stopped")

	return nil
}

// runActors runs every actor until ctx is cancelled. The journal, when set,
// keeps running until the last actor has returned, so events emitted while
// the actors shut down still reach Redis.
func runActors(ctx context.Context, journal *events.RedisSink, actors ...func(context.Context)) {
	journalCtx, stopJournal := context.WithCancel(context.WithoutCancel(ctx))
	defer stopJournal()

	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)

		if journal != nil {
			journal.Run(journalCtx)
		}
	}()

	var wg sync.WaitGroup

	for _, actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor(ctx)
		}()
	}

	wg.Wait()

	stopJournal()
	<-journalDone
}

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Fill every project with random tasks and print allocation passes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			passes, err := cmd.Flags().GetInt("passes")
			if err != nil {
				return err
			}

			return sample(cmd.OutOrStdout(), cfg, passes)
		},
	}

	cmd.Flags().Int("passes", 0, "Stop after this many passes, 0 runs until all queues drain")

	return cmd
}

// sample enqueues a random batch, then alternates allocation passes with
// freeing every resource, printing what each pass assigned.
func sample(out io.Writer, cfg config.Config, passes int) error {
	sched, err := newScheduler(cfg, zerolog.Nop(), events.Discard)
	if err != nil {
		return err
	}

	count, err := simulator.New(cfg).SampleTasks(sched)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Enqueued %d tasks on %d projects\n", count, sched.NumProjects())

	if len(sched.Resources()) == 0 {
		fmt.Fprintln(out, "No resources, nothing to allocate")
		return nil
	}

	for pass := 1; passes == 0 || pass <= passes; pass++ {
		if sched.Status().Pending == 0 {
			break
		}

		assigned := sched.Allocate()
		fmt.Fprintf(out, "Pass %d: %d assigned\n", pass, assigned)

		for _, res := range sched.Resources() {
			task, held := res.Task()
			if !held {
				fmt.Fprintf(out, "  resource %d: free\n", res.ID())
				continue
			}

			fmt.Fprintf(out, "  resource %d: %s\n", res.ID(), task)
			res.RemoveTask()
		}
	}

	fmt.Fprintf(out, "Pending after run: %d\n", sched.Status().Pending)

	return nil
}
