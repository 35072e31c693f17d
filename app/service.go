// Package app wires the engine, monitor, sinks and connectors into a
// runnable service.
package app

import (
	"context"
	"fmt"

	"github.com/evgrid/stationd/config"
	"github.com/evgrid/stationd/core/charging"
	"github.com/evgrid/stationd/core/events"
	coremetrics "github.com/evgrid/stationd/core/metrics"
	"github.com/evgrid/stationd/core/station"
	"github.com/evgrid/stationd/infra/history"
	"github.com/evgrid/stationd/infra/logger"
	"github.com/evgrid/stationd/infra/metrics"
	"github.com/evgrid/stationd/infra/mqtt"
	"github.com/evgrid/stationd/internal/eventbus"
)

// Service orchestrates the charging engine and its connectors.
type Service struct {
	Engine  *charging.Engine
	History history.Store

	monitor     *charging.Monitor
	notifier    *mqtt.Notifier
	broker      mqtt.Publisher
	bus         eventbus.EventBus
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	piles := station.NewPileRegistry()
	for _, pc := range cfg.Piles {
		if err := piles.Add(pc.Pile()); err != nil {
			return nil, fmt.Errorf("register pile %s: %w", pc.ID, err)
		}
	}

	var sinks []coremetrics.MetricsSink
	promEnabled := cfg.Metrics.PrometheusEnabled
	promPort := cfg.Metrics.PrometheusPort
	if promEnabled {
		sink, err := metrics.NewPromSink(nil)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	engine, err := charging.New(piles, cfg.Station, cfg.Tariff, bus, sink, logger.New("engine"))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	var store history.Store
	switch cfg.History.Backend {
	case "sqlite":
		store, err = history.NewSQLiteStore(cfg.History.Path)
	default:
		store, err = history.NewJSONLStore(cfg.History.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	svc := &Service{
		Engine:      engine,
		History:     store,
		monitor:     charging.NewMonitor(engine, logger.New("monitor")),
		bus:         bus,
		log:         logg,
		promEnabled: promEnabled,
		promPort:    promPort,
	}

	if cfg.MQTT.Enabled {
		broker, err := mqtt.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("mqtt broker: %w", err)
		}
		svc.broker = broker
		svc.notifier = mqtt.NewNotifier(broker, bus, byte(cfg.MQTT.QoS))
	}
	return svc, nil
}

// Run starts the monitor, the archive subscriber and the connectors, then
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Engine.RecoverState()

	go s.monitor.Run(ctx)
	go s.archiveSessions(ctx)
	if s.notifier != nil {
		go s.notifier.Run(ctx)
	}
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// archiveSessions appends every finalized session to the history store.
func (s *Service) archiveSessions(ctx context.Context) {
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fin, ok := ev.(events.SessionFinalized)
			if !ok {
				continue
			}
			if err := s.History.Append(ctx, fin.Record); err != nil {
				s.log.Errorf("archive session %s: %v", fin.Record.TicketNumber, err)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.broker != nil {
		s.broker.Close()
	}
	s.bus.Close()
	return s.History.Close()
}
