package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/mission-console/internal/config"
	"github.com/jwebster45206/mission-console/internal/game"
	"github.com/jwebster45206/mission-console/internal/logger"
	"github.com/jwebster45206/mission-console/internal/services"
	"github.com/jwebster45206/mission-console/internal/services/events"
	"github.com/jwebster45206/mission-console/internal/storage"
	"github.com/jwebster45206/mission-console/pkg/scenario"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", cfg.LogFile, err)
		os.Exit(1)
	}
	defer func() { _ = logFile.Close() }()
	log := logger.Setup(cfg, logFile)

	ctx := context.Background()

	var (
		missions storage.MissionStore = storage.NewFileMissions(cfg.DataDir, log)
		runs     storage.RunStore
		bus      *events.Broadcaster
	)
	if cfg.RedisURL != "" {
		store, err := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid REDIS_URL: %v\n", err)
			os.Exit(1)
		}
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.WaitForConnection(waitCtx, 5, time.Second)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not connect to Redis: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()

		missions, runs = store, store
		bus = events.NewBroadcaster(store.Client(), log)
	}

	missionFile := cfg.Mission
	if missionFile == "" {
		missionFile, err = chooseMission(ctx, missions)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list missions: %v\n", err)
			os.Exit(1)
		}
	}
	s, err := game.ResolveMission(ctx, missions, missionFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var p *tea.Program
	send := func(msg tea.Msg) {
		if p != nil {
			p.Send(msg)
		}
	}

	g := game.New(game.Options{
		LLM:      services.NewCompletionsService(cfg.Settings.BaseURL, log),
		Settings: cfg.Settings,
		Scenario: s,
		Runs:     runs,
		Missions: missions,
		Events:   bus,
		Session:  sessionCallbacks(send),
		Mission:  missionListener(send),
		Logger:   log,
	})

	p = tea.NewProgram(NewConsoleUI(g, cfg.Settings.APIKey != ""),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Error("Console exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// chooseMission prompts for a mission when more than the built-in one is
// available. It returns "" for the built-in mission.
func chooseMission(ctx context.Context, missions storage.MissionStore) (string, error) {
	available, err := missions.ListMissions(ctx)
	if err != nil {
		return "", err
	}
	if len(available) == 0 {
		return "", nil
	}

	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Missions:")
	fmt.Printf("  0 - %s (built-in)\n", scenario.Default().Name)
	for i, name := range names {
		fmt.Printf("  %d - %s (%s)\n", i+1, name, available[name])
	}
	fmt.Print("\nSelect a mission by number: ")

	var choice int
	if _, err := fmt.Scanf("%d", &choice); err != nil || choice < 0 || choice > len(names) {
		return "", fmt.Errorf("invalid selection")
	}
	if choice == 0 {
		return "", nil
	}
	return available[names[choice-1]], nil
}
