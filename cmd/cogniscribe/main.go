// Command cogniscribe runs an age-tuned voice chat session in the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/cogniscribe/internal/app"
	"github.com/MrWong99/cogniscribe/internal/config"
	"github.com/MrWong99/cogniscribe/internal/console"
	"github.com/MrWong99/cogniscribe/internal/health"
	"github.com/MrWong99/cogniscribe/internal/observe"
	"github.com/MrWong99/cogniscribe/internal/resilience"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "cogniscribe.yaml", "path to the YAML configuration file")
	ageGroup := flag.String("age", "", "age group to chat with (asked interactively when empty)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "cogniscribe: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "cogniscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("cogniscribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(tel.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	built, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	appOpts := make([]app.Option, 0, len(built.closers)+1)
	appOpts = append(appOpts, app.WithMetrics(metrics))
	for _, c := range built.closers {
		appOpts = append(appOpts, app.WithCloser(c))
	}
	application, err := app.New(cfg, built.providers, appOpts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := application.ApplyConfig(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.SlogLevel())
			slog.Info("log level changed", "log_level", d.NewLogLevel)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Session ───────────────────────────────────────────────────────────────
	in := bufio.NewReader(os.Stdin)
	group := *ageGroup
	if group == "" {
		group, err = chooseAgeGroup(in, os.Stdout, application.Personas().AgeGroups())
		if err != nil {
			slog.Error("no age group chosen", "err", err)
			return 1
		}
	}
	orch, err := application.Sessions().Start(ctx, group)
	if err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.ListenAddr != "" {
		srv := newOpsServer(cfg.Server.ListenAddr, built.guard, metrics, tel.MetricsHandler())
		g.Go(func() error {
			slog.Info("ops server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		// Leaving the console ends the program.
		defer stop()
		return console.New(orch, in, os.Stdout).Run(gctx)
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newOpsServer serves /healthz, /readyz and the Prometheus /metrics endpoint.
func newOpsServer(addr string, guard *resilience.GuardedRuntime, metrics *observe.Metrics, metricsHandler http.Handler) *http.Server {
	checks := health.New(
		health.PingChecker("runtime", guard),
		health.Checker{Name: "runtime_circuit", Check: func(context.Context) error {
			if st := guard.Breaker().State(); st == resilience.StateOpen {
				return fmt.Errorf("circuit %s", st)
			}
			return nil
		}},
	)

	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// chooseAgeGroup asks on out which age group to chat with. Either a number
// from the list or a free-form group name is accepted.
func chooseAgeGroup(in *bufio.Reader, out io.Writer, groups []string) (string, error) {
	fmt.Fprintln(out, "Who is chatting today?")
	for i, g := range groups {
		fmt.Fprintf(out, "  %d. %s\n", i+1, g)
	}
	fmt.Fprint(out, "> ")

	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err == nil {
			err = errors.New("empty choice")
		}
		return "", err
	}
	if n, convErr := strconv.Atoi(line); convErr == nil {
		if n < 1 || n > len(groups) {
			return "", fmt.Errorf("choice %d out of range", n)
		}
		return groups[n-1], nil
	}
	return line, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       cogniscribe: startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Runtime", cfg.Runtime.Name, cfg.Runtime.Model)
	printProvider("STT", cfg.Speech.STT.Name, cfg.Speech.STT.Model)
	printProvider("TTS", cfg.Speech.TTS.Name, cfg.Speech.TTS.Model)
	fmt.Printf("║  Catalog models  : %-19d ║\n", len(cfg.Runtime.Models))
	fmt.Printf("║  Personas        : %-19d ║\n", len(cfg.Personas))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Ops server      : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
