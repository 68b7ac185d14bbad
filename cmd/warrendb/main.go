package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warrendb/pkg/config"
	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/metrics"
	"github.com/cuemby/warrendb/pkg/reconciler"
	"github.com/cuemby/warrendb/pkg/scheduler"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warrendb",
	Short: "warrendb - an embeddable multi-model storage engine",
	Long: `warrendb combines a KV backbone, secondary and vector indexes, a
Gorilla-compressed time-series store, a change-data-capture log, and a
reduced AQL query engine behind one Go facade, exposed here as a CLI
for administration and one-shot data operations.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"warrendb version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./warrendb-data", "Data directory for the KV backbone")
	rootCmd.PersistentFlags().String("config", "", "Path to a warrendb.yaml config file (overrides --data-dir)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(vectorCmd)
	rootCmd.AddCommand(tsCmd)
	rootCmd.AddCommand(cdcCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(restoreCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig builds an engine config from either --config or
// --data-dir, whichever the caller supplied.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return config.Default(dataDir + "/warrendb.db"), nil
}

func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg.EngineConfig())
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its background scheduler, reconciler, and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		eng, err := engine.New(cfg.EngineConfig())
		if err != nil {
			return fmt.Errorf("failed to open engine: %w", err)
		}
		defer eng.Close()

		for _, vcfg := range cfg.VectorIndex.Collections {
			if err := eng.VectorInit(vcfg); err != nil {
				return fmt.Errorf("failed to init vector collection %q: %w", vcfg.Collection, err)
			}
		}

		sched := scheduler.NewScheduler(eng, cfg.SchedulerConfig())
		sched.Start()
		defer sched.Stop()

		recon := reconciler.NewReconciler(eng, cfg.SchedulerConfig().Interval)
		recon.Start()
		defer recon.Stop()

		collector := metrics.NewCollector(eng)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		healthStop := make(chan struct{})
		go publishHealth(eng, healthStop)
		defer close(healthStop)

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		if metricsAddr == "" {
			metricsAddr = "127.0.0.1:9090"
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/health", metrics.HealthHandler())
			mux.HandleFunc("/ready", metrics.ReadyHandler())
			mux.HandleFunc("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("engine open at %s\n", cfg.Storage.DBPath)
		fmt.Printf("metrics: http://%s/metrics\n", metricsAddr)
		fmt.Printf("health: http://%s/health, /ready, /live\n", metricsAddr)
		fmt.Println("running. press ctrl+c to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nshutting down...")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus metrics endpoint")
}

// publishHealth mirrors Engine.Healthy's per-component results into
// pkg/metrics' HTTP health/ready/live endpoints on a fixed interval,
// until stop is closed.
func publishHealth(eng *engine.Engine, stop chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for name, res := range eng.Healthy().Results {
				metrics.UpdateComponent(name, res.Healthy, res.Message)
			}
		case <-stop:
			return
		}
	}
}
