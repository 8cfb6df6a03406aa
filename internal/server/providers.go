package server

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zeusync/zeuswire/internal/config"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/events/bus"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// ProviderSet builds a Server from a *config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	bus.New,
	ProvideConversationManager,
	ProvideRegistry,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	New,
)

// ProvideLogger returns the process logger at the configured level.
func ProvideLogger(cfg *config.Config) log.Log {
	logger := log.Provide()
	logger.SetLevel(log.ParseLevel(cfg.Log.Level))
	return logger
}

func ProvideConversationManager(cfg *config.Config, logger log.Log, events bus.EventBus) *conversation.Manager {
	return conversation.NewManager(
		conversation.WithLogger(logger.Named("conversation")),
		conversation.WithEventBus(events),
		conversation.WithDefaults(cfg.Conversation.Attributes()),
	)
}

func ProvideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
