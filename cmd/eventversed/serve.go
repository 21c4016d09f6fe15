package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/agent"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/api"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/backend"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/chat"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/config"
	xerrors "github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/errors"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/format"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/journal"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm/anthropic"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm/openai"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/alerting"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/observability/metrics"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/router"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/storage/mysql"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/transport"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/pkg/logger"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var role, address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one agent: REST endpoint plus inter-agent mailbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if role != "" {
				cfg.OverrideRole(role)
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "override agent.role (full, events, payment, coordinator)")
	cmd.Flags().StringVar(&address, "listen", "", "override server.address")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("eventversed")
	m := metrics.New(cfg.Agent.Name, cfg.Agent.Role)

	store, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := transport.Open(ctx, cfg.Transport)
	if err != nil {
		return err
	}
	defer bus.Close()

	mailbox, err := transport.NewMailbox(bus, cfg.Agent.Address,
		transport.WithReplyTimeout(cfg.Transport.ReplyTimeout()),
		transport.WithWorkers(cfg.Transport.Workers),
	)
	if err != nil {
		return err
	}

	var (
		chatFn  api.ChatFunc
		handler transport.Handler
	)
	if cfg.Agent.Role == config.RoleCoordinator {
		coordinator, err := router.NewCoordinator(mailbox, cfg.Peers,
			router.WithName(cfg.Agent.Name),
			router.WithMetrics(m),
			router.WithJournal(store),
		)
		if err != nil {
			return err
		}
		chatFn = func(ctx context.Context, message string) api.ChatResponse {
			reply := coordinator.Relay(agent.WithChannel(ctx, agent.ChannelREST), message)
			return api.ChatResponse{Status: reply.Status, Message: reply.Message}
		}
		handler = chat.CoordinatorHandler
	} else {
		orchestrator, err := agent.New(agent.Config{
			Name:        cfg.Agent.Name,
			Role:        cfg.Agent.Role,
			Fallback:    cfg.Agent.Fallback,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
			newLLMClient(cfg.LLM),
			backend.NewAdapter(backend.Config{
				BaseURL:    cfg.Backend.BaseURL,
				CanisterID: cfg.Backend.CanisterID,
				Timeout:    cfg.Backend.Timeout(),
			}),
			format.New(),
			agent.WithMetrics(m),
			agent.WithJournal(store),
			agent.WithAlerts(newAlerts(cfg.Alerts)),
		)
		if err != nil {
			return err
		}
		chatFn = func(ctx context.Context, message string) api.ChatResponse {
			answer := orchestrator.Answer(agent.WithChannel(ctx, agent.ChannelREST), message)
			return api.ChatResponse{Status: "success", Message: answer}
		}
		handler = chat.NewSpecialistHandler(orchestrator, mailbox).Handle
		log.Info("tools registered", "tools", orchestrator.Tools())
	}

	server := api.NewServer(cfg.Server.Address, api.Info{Name: cfg.Agent.Name, Role: cfg.Agent.Role}, chatFn,
		api.WithDispatcher(mailbox),
		api.WithJournal(store),
		api.WithMetrics(m),
	)

	log.Info("agent starting",
		"name", cfg.Agent.Name,
		"role", cfg.Agent.Role,
		"address", cfg.Agent.Address,
		"transport", cfg.Transport.Driver,
		"journal", cfg.Journal.Driver,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(mailbox.Listen(gctx, handler)) })
	g.Go(func() error { return ignoreCanceled(server.Start(gctx)) })
	return g.Wait()
}

func newLLMClient(cfg config.LLMConfig) llm.Client {
	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		logger.Named("eventversed").Warn("LLM API key is empty, requests will be rejected by the provider",
			"provider", cfg.Provider, "env", cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
		})
	default:
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout(),
		})
	}
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Driver {
	case "none":
		return journal.Nop{}, nil
	case "mysql":
		repo, err := mysql.NewExchangeRepository(ctx, mysql.Config{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		store, err := journal.NewMemoryStore(cfg.DataDir, cfg.Capacity)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newAlerts(cfg config.AlertsConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	return alerting.NewFanout(xerrors.Severity(cfg.MinSeverity), notifiers...)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
