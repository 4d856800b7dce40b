package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
	"github.com/telhawk-systems/logiccorrelator/internal/alertstore"
	"github.com/telhawk-systems/logiccorrelator/internal/config"
	"github.com/telhawk-systems/logiccorrelator/internal/decisiongraph"
	"github.com/telhawk-systems/logiccorrelator/internal/engine"
	"github.com/telhawk-systems/logiccorrelator/internal/httpapi"
	"github.com/telhawk-systems/logiccorrelator/internal/logging"
	"github.com/telhawk-systems/logiccorrelator/internal/rule"
	"github.com/telhawk-systems/logiccorrelator/internal/sink"
	"github.com/telhawk-systems/logiccorrelator/internal/stats"
	"github.com/telhawk-systems/logiccorrelator/internal/window"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the correlator in the foreground",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return newExitError(1, fmt.Errorf("load config: %w", err))
	}

	log := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)

	rules, err := loadAndValidateRules(cfg)
	if err != nil {
		return newExitError(2, err)
	}
	log.Info("rules loaded", "count", len(rules))

	reg := prometheus.DefaultRegisterer
	store := window.New()
	statsC := stats.New(store, reg)

	fanout := sink.New(cfg.Correlator.SinkTimeout, log, func() { statsC.IncAlertsDropped() })
	fanout.Register(sink.NewLogSink(log))

	if cfg.NATS.Enabled {
		natsSink, err := sink.NewNATSSink(sink.NATSConfig{
			URL:         cfg.NATS.URL,
			Subject:     cfg.NATS.Subject,
			Name:        "logiccorrelator",
			ConnectWait: 5 * time.Second,
		})
		if err != nil {
			return newExitError(1, fmt.Errorf("connect nats sink: %w", err))
		}
		fanout.Register(natsSink)
		log.Info("nats sink registered", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.Redis.URL)})
		fanout.SetHealthStore(sink.NewHealthStore(redisClient, true, time.Hour))
		log.Info("redis sink health store enabled", "addr", redisClient.Options().Addr)
	}

	var auditStore *alertstore.Store
	if cfg.Postgres.Enabled {
		connString := cfg.Postgres.ConnString()
		if err := runMigrations(connString); err != nil {
			return newExitError(1, fmt.Errorf("run migrations: %w", err))
		}
		auditStore, err = alertstore.New(context.Background(), connString)
		if err != nil {
			return newExitError(1, fmt.Errorf("connect postgres audit store: %w", err))
		}
		defer auditStore.Close()
		log.Info("postgres alert audit enabled")
	}

	eng := engine.New(engine.Config{
		RetentionWindow:   cfg.Correlator.RetentionWindow,
		ShutdownDeadline:  cfg.Correlator.ShutdownDeadline,
		QueueSize:         cfg.Correlator.QueueSize,
		DefaultConfidence: cfg.Correlator.DefaultConfidence,
	}, log, decisiongraph.NewRecorder(cfg.Correlator.MaxDecisionGraphs), alert.NewRing(cfg.Correlator.MaxAlertsInMemory), fanout, statsC, auditStore)
	eng.ReloadRules(rules)

	if err := writePIDFile(); err != nil {
		log.Warn("could not write pidfile", "err", err)
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go eng.Run(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpapi.NewRouter(eng, httpapi.PrometheusHandler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("read API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("read API server failed", "err", err)
		}
	}()

	go ingestStdin(eng, log)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			log.Info("reload-rules signal received")
			reloaded, err := loadAndValidateRules(cfg)
			if err != nil {
				log.Error("rule reload failed, keeping previous rule set", "err", err)
				continue
			}
			eng.ReloadRules(reloaded)
			log.Info("rules reloaded", "count", len(reloaded))
			continue
		}
		log.Info("shutdown signal received", "signal", sig)
		break
	}

	cancel()
	eng.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Correlator.ShutdownDeadline)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	log.Info("correlator stopped cleanly")
	return nil
}

// loadAndValidateRules loads rulesFile, rejecting the whole document if
// any enabled rule fails validation (§6 "the core refuses to start if any
// enabled rule fails validation").
func loadAndValidateRules(cfg *config.Config) ([]*rule.Rule, error) {
	doc, err := os.ReadFile(rulesFile)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	count, err := rule.ParseCount(cfg.Correlator.DefaultCount)
	if err != nil {
		return nil, fmt.Errorf("configured default_count: %w", err)
	}
	defaults := rule.Defaults{
		Count:      count,
		Window:     rule.Duration(cfg.Correlator.DefaultWindow),
		Confidence: cfg.Correlator.DefaultConfidence,
	}

	rules, errs := rule.LoadRules(doc, defaults)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("rule validation failed:\n%s", strings.Join(msgs, "\n"))
	}
	return rules, nil
}

func redisAddr(url string) string {
	url = strings.TrimPrefix(url, "redis://")
	if i := strings.IndexByte(url, '/'); i >= 0 {
		url = url[:i]
	}
	return url
}

func writePIDFile() error {
	if err := os.MkdirAll(dirOf(pidFile), 0o755); err != nil {
		return err
	}
	f, err := os.Create(pidFile)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}

func readPIDFile() (int, error) {
	f, err := os.Open(pidFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("pidfile %s is empty", pidFile)
	}
	return strconv.Atoi(scanner.Text())
}

func runMigrations(connString string) error {
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// ingestStdin reads newline-delimited JSON events from stdin and submits
// each to the engine — the ingress shape §6 describes for collectors.
// Real deployments front this with a network listener; stdin keeps the
// binary runnable standalone for operators and tests.
func ingestStdin(eng *engine.Engine, log *logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		if !eng.Submit(cp) {
			log.Warn("input queue full, dropping event")
		}
	}
}
