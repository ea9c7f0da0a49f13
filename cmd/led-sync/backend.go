package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/sweeney/led-sync/internal/config"
	"github.com/sweeney/led-sync/internal/connectivity"
	"github.com/sweeney/led-sync/internal/store"
)

// backend is the cloud store selected by config plus what the daemon needs around it.
type backend struct {
	store    store.Store
	endpoint string                // shown on the status page
	online   connectivity.Provider // backend's own link state, nil when it has none
	close    func() error
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendRTDB:
		tokens := store.NewTokenSource(store.AuthConfig{
			APIKey:   cfg.FirebaseAPIKey,
			UseEmail: cfg.UseEmailAuth,
			Email:    cfg.UserEmail,
			Password: cfg.UserPassword,
			HTTP:     &http.Client{Timeout: cfg.CallTimeout},
		})
		db, err := store.NewRTDB(cfg.FirebaseDBURL, tokens, cfg.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("init rtdb: %w", err)
		}
		return &backend{store: db, endpoint: cfg.FirebaseDBURL, close: noop}, nil

	case config.BackendMQTT:
		ms, err := store.NewMQTTStore(store.MQTTConfig{
			Broker:         cfg.MQTTBroker,
			Username:       cfg.MQTTUsername,
			Password:       cfg.MQTTPassword,
			TopicPrefix:    cfg.MQTTTopicPrefix,
			ConnectTimeout: cfg.CallTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init mqtt: %w", err)
		}
		if !ms.IsConnected() {
			logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", cfg.MQTTBroker)
		}
		return &backend{
			store:    ms,
			endpoint: cfg.MQTTBroker,
			online:   connectivity.Func(ms.IsConnected),
			close:    ms.Close,
		}, nil

	case config.BackendDynamo:
		ds, err := store.NewDynamoStoreFromEnv(ctx, cfg.DynamoTable)
		if err != nil {
			return nil, fmt.Errorf("init dynamodb: %w", err)
		}
		return &backend{store: ds, endpoint: "dynamodb:" + cfg.DynamoTable, close: noop}, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", config.ErrConfiguration, cfg.Backend)
}

// connectivityFor combines pi-helper's view of the link, an optional TCP probe and the
// backend's own connection state.
func connectivityFor(cfg config.Config, b *backend) connectivity.Provider {
	providers := []connectivity.Provider{
		connectivity.NewEnvProvider(os.Getenv, cfg.WifiSSID),
	}
	if target := cfg.ProbeTarget(); target != "" {
		providers = append(providers, connectivity.NewProbe(target, cfg.CallTimeout, cfg.StatePublish))
	}
	if b.online != nil {
		providers = append(providers, b.online)
	}
	return connectivity.All(providers...)
}
