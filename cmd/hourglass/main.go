package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vthunder/hourglass/internal/analytics"
	"github.com/vthunder/hourglass/internal/app"
	"github.com/vthunder/hourglass/internal/config"
	"github.com/vthunder/hourglass/internal/dialog"
	"github.com/vthunder/hourglass/internal/logging"
	"github.com/vthunder/hourglass/internal/netguard"
	"github.com/vthunder/hourglass/internal/notify"
	"github.com/vthunder/hourglass/internal/ollama"
	"github.com/vthunder/hourglass/internal/scheduler"
	"github.com/vthunder/hourglass/internal/state"
	"github.com/vthunder/hourglass/internal/tagging"
	"github.com/vthunder/hourglass/internal/timelog"
)

// How often the report regenerates on its own, independent of check-ins.
const reportRefreshInterval = 30 * time.Minute

func main() {
	log.Println("hourglass - periodic check-in time tracker")

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	stateDir := os.Getenv("STATE_DIR")
	if stateDir == "" {
		stateDir = "state"
	}
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	cfg := config.Load(stateDir, dataDir)
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	// Write the normalized config back so the user has a file to edit.
	if err := config.Save(cfg); err != nil {
		log.Printf("Warning: failed to write config: %v", err)
	}

	store := timelog.NewStore(cfg.WorkbookPath(), cfg.LockPath())
	if err := store.EnsureWorkbook(nil); err != nil {
		log.Fatalf("Failed to provision workbook: %v", err)
	}
	log.Printf("[main] workbook at %s", store.Path())

	policy := netguard.New(cfg.NoNetworkMode)
	if policy.LoopbackOnly() {
		log.Println("[main] no-network mode: outbound access limited to loopback")
	}

	var llm *ollama.Client
	var summarizer analytics.Summarizer
	if cfg.LLMEnabled {
		client := ollama.NewClient(os.Getenv("OLLAMA_URL"), cfg.LLMModel, policy,
			time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		available := client.Available(ctx)
		cancel()
		if available {
			llm = client
			summarizer = client
			log.Printf("[main] ollama model %s available", cfg.LLMModel)
		} else {
			log.Printf("[main] ollama model %s not reachable, using heuristic summaries", cfg.LLMModel)
		}
	}

	suggester := tagging.NewSuggester(cfg.LearnedRulesPath())
	events := logging.NewEventLog(cfg.StateDir)
	pipeline := analytics.NewPipeline(cfg, store, summarizer)
	presenter := dialog.NewConsolePresenter(os.Stdin, os.Stdout)

	a := app.New(cfg, store, presenter, notify.LogNotifier{}, suggester, pipeline, events, llm)
	sched := scheduler.New(cfg, state.NewStore(cfg.StateDir), a.Callbacks())
	a.AttachScheduler(sched)

	sched.Start()
	a.RefreshReports()

	refreshTicker := time.NewTicker(reportRefreshInterval)
	defer refreshTicker.Stop()
	go func() {
		for range refreshTicker.C {
			a.RefreshReports()
		}
	}()

	// SIGUSR1 opens the task manager; SIGUSR2 logs a check-in now.
	userChan := make(chan os.Signal, 1)
	signal.Notify(userChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range userChan {
			switch sig {
			case syscall.SIGUSR1:
				a.ManageTasks()
			case syscall.SIGUSR2:
				a.ManualCheckIn()
			}
		}
	}()

	log.Printf("[main] prompting every %d minutes. Press Ctrl+C to stop.", cfg.IntervalMinutes)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")
	sched.Stop()
	a.RefreshReportsSync()
	log.Printf("[main] report at %s", cfg.ReportPath())
}
