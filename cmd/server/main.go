// Command server runs the RUDP game-server substrate: transport endpoint,
// session manager, room broadcast engine, tick dispatcher, and the
// logging/metrics/admin/persistence ambient stack. Entrypoint shape
// (banner, config load, signal-driven graceful shutdown) follows the
// teacher's core/main.go.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"rudpcore/internal/admin"
	"rudpcore/internal/config"
	"rudpcore/internal/connstate"
	"rudpcore/internal/logging"
	"rudpcore/internal/persistence"
	"rudpcore/internal/room"
	"rudpcore/internal/session"
	"rudpcore/internal/telemetry"
	"rudpcore/internal/tick"
	"rudpcore/internal/transport"
	"rudpcore/internal/voice"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("config: failed to load")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logging.New(level, os.Stdout)
	log.Banner("rudpcore server " + version)

	tel := telemetry.New()
	if cfg.EnableMetrics {
		prometheus.MustRegister(telemetry.NewCollector(tel))
	}

	var sink persistence.Sink = persistence.NoopSink{}
	if cfg.DatabasePath != "" {
		store, err := persistence.Open(cfg.DatabasePath, log.Logger)
		if err != nil {
			log.WithError(err).Fatal("persistence: failed to open database")
		}
		defer store.Close()
		sink = store
	}

	sessions := session.NewManager(session.Config{
		MaxSessions: cfg.MaxConnections,
		IdleGrace:   cfg.ConnectionTimeout / 2,
	}, tel, sink, log.Logger)

	rooms := room.NewRegistry(50*time.Millisecond, tel)
	_ = voice.NewRelay(rooms, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ep, err := transport.Listen(
		net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		transport.Config{
			MaxConnections:   cfg.MaxConnections,
			RecvBufferSize:   cfg.MaxPacketSize,
			ConnectRateLimit: cfg.ConnectRateLimit,
			ConnectBurst:     cfg.ConnectBurst,
		},
		cfg.ConnstateConfig(),
		tel,
		log.Logger,
		transport.Handlers{
			OnConnect: func(id connstate.ID, addr *net.UDPAddr) {
				if _, err := sessions.Create(string(id), addr, session.PriorityNormal); err != nil {
					log.WithError(err).Warn("session: admission refused")
				}
			},
			OnDisconnect: func(id connstate.ID) {
				if sid, ok := sessions.BySessionOfConn(string(id)); ok {
					sessions.Terminate(sid, session.ReasonNetworkError)
				}
			},
		},
	)
	if err != nil {
		log.WithError(err).Fatal("transport: failed to bind")
	}

	dispatcher := tick.New(cfg.GameTickRate, func(time.Time, time.Duration) {
		sessions.Reap(time.Now())
	}, 10*time.Second, func(s telemetry.Snapshot) {
		log.WithFields(logrus.Fields{
			"connections": s.ConnectionsActive,
			"rooms":       s.RoomCount,
			"rtt_avg_ms":  s.RTTAvg.Milliseconds(),
		}).Info("tick: snapshot")
	}, tel, log.Logger)

	adminSrv := admin.New(roomListerAdapter{rooms}, sessions.Events(), tel, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		if err := ep.Run(ctx); err != nil {
			errCh <- err
		}
	}()
	go dispatcher.Run(ctx)
	go adminSrv.Run(ctx, cfg.AdminAddr)

	log.Section("ready")
	log.WithFields(logrus.Fields{
		"addr":       cfg.Host,
		"port":       cfg.Port,
		"admin_addr": cfg.AdminAddr,
		"tick_rate":  cfg.GameTickRate,
	}).Info("server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		log.WithError(err).Error("transport: fatal error")
	case sig := <-sigCh:
		log.WithField("signal", sig).Warn("received shutdown signal")
	}

	log.Section("shutting down")
	cancel()
	ep.Shutdown()
	time.Sleep(500 * time.Millisecond)
	log.Info("server stopped")
}

// roomListerAdapter bridges room.Registry's RoomSummary to admin's, since
// both packages stay leaves and neither imports the other.
type roomListerAdapter struct{ reg *room.Registry }

func (a roomListerAdapter) ListRooms() []admin.RoomSummary {
	rooms := a.reg.ListRooms()
	out := make([]admin.RoomSummary, len(rooms))
	for i, r := range rooms {
		out[i] = admin.RoomSummary{ID: r.ID, Members: r.Members}
	}
	return out
}
