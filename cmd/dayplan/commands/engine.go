package commands

import (
	"fmt"

	"github.com/dayplan-ai/dayplan/internal/completion"
	"github.com/dayplan-ai/dayplan/internal/config"
	"github.com/dayplan-ai/dayplan/internal/event"
	"github.com/dayplan-ai/dayplan/internal/profile"
	"github.com/dayplan-ai/dayplan/internal/session"
	"github.com/dayplan-ai/dayplan/internal/store"
)

// engine bundles the wired-up session engine for a CLI invocation.
type engine struct {
	cfg          *config.Config
	store        *store.Store
	orchestrator *session.Orchestrator
	bus          *event.Bus
}

// newEngine loads configuration and wires the store, completion client,
// retry policy, profile provider, and orchestrator together. Engine
// warnings (corruption recoveries, unpersisted saves) are printed to the
// terminal as they happen.
func newEngine() (*engine, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	bus.Subscribe(event.CorruptionArchived, func(e event.Event) {
		if data, ok := e.Data.(event.CorruptionArchivedData); ok {
			if data.Recovered {
				fmt.Printf("warning: session file was corrupted; recovered what was possible (original kept at %s)\n", data.ArchivePath)
			} else {
				fmt.Printf("warning: session file was corrupted and unrecoverable; starting fresh (original kept at %s)\n", data.ArchivePath)
			}
		}
	})
	bus.Subscribe(event.StorageWarning, func(e event.Event) {
		if data, ok := e.Data.(event.StorageWarningData); ok {
			fmt.Printf("warning: %s\n", data.Reason)
		}
	})

	st, err := store.New(cfg.Storage.SessionsDir,
		store.WithBus(bus),
		store.WithMinFreeBytes(cfg.Storage.MinFreeBytes),
		store.WithTempMaxAge(cfg.Storage.TempMaxAge()),
		store.WithDirective(cfg.Directive),
	)
	if err != nil {
		return nil, err
	}

	client, err := completion.NewOpenAIClient(completion.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout(),
	})
	if err != nil {
		return nil, err
	}

	retry := completion.NewRetryPolicy(completion.RetryConfig{
		MaxAttempts:         cfg.Retry.MaxAttempts,
		BaseDelay:           cfg.Retry.BaseDelay(),
		MaxDelay:            cfg.Retry.MaxDelay(),
		ExponentialBase:     cfg.Retry.ExponentialBase,
		RateLimitMultiplier: cfg.Retry.RateLimitMultiplier,
		TimeoutWait:         cfg.Retry.TimeoutWait(),
	})

	profiles, err := profile.NewFileProvider(cfg.Storage.ProfilesDir)
	if err != nil {
		return nil, err
	}

	orch := session.New(st, client, retry, session.Config{
		Directive:     cfg.Directive,
		ContextWindow: cfg.ContextWindow,
		UserID:        cfg.UserID,
	}, session.WithBus(bus), session.WithProfiles(profiles))

	return &engine{cfg: cfg, store: st, orchestrator: orch, bus: bus}, nil
}

// printResult renders a turn result for the terminal.
func printResult(res *session.TurnResult) {
	fmt.Println(res.Summary)
	for _, notice := range res.Notices {
		fmt.Println(notice)
	}
	if !res.Persisted {
		fmt.Println("note: this turn may not have been saved")
	}
}
