// Package admin implements the HTTP/WS operator surface from spec.md
// §4.11: health, Prometheus scrape, room listing, and a live event stream.
// Routing and lifecycle follow rustyguts-bken's server/api.go (echo with
// a Recover/RequestLogger middleware stack, context-bound Shutdown); the
// live feed is a gorilla/websocket upgrade, the same library bken uses for
// its client-facing realtime channel.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rudpcore/internal/telemetry"
)

// RoomLister is the narrow view the admin surface needs into the room
// engine, kept separate so admin never imports room's mutation API.
type RoomLister interface {
	ListRooms() []RoomSummary
}

// RoomSummary is a read-only projection of one room's state for the
// /rooms endpoint and the live feed.
type RoomSummary struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// EventFeed is a narrow read-only source of session lifecycle events for
// the /live websocket stream.
type EventFeed interface {
	Subscribe() (ch <-chan string, cancel func())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the admin HTTP surface.
type Server struct {
	echo   *echo.Echo
	rooms  RoomLister
	feed   EventFeed
	log    *logrus.Logger
}

// New constructs a Server and registers every route. counters feeds the
// /metrics endpoint via a Prometheus collector registered by the caller;
// this package only mounts the promhttp handler.
func New(rooms RoomLister, feed EventFeed, counters *telemetry.Counters, log *logrus.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method": v.Method,
				"uri":    v.URI,
				"status": v.Status,
			}).Debug("admin request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, rooms: rooms, feed: feed, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/rooms", s.handleRooms)
	s.echo.GET("/live", s.handleLive)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRooms(c echo.Context) error {
	return c.JSON(http.StatusOK, s.rooms.ListRooms())
}

// handleLive upgrades to a websocket and relays session lifecycle events,
// one plain-text summary line ("<event> session=<id>") per text message,
// until the client disconnects or the feed is cancelled. Best-effort: the
// feed drops events for a slow reader rather than back-pressuring.
func (s *Server) handleLive(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	streamID := uuid.NewString()
	s.log.WithField("stream", streamID).Debug("admin: live feed subscriber connected")
	defer s.log.WithField("stream", streamID).Debug("admin: live feed subscriber disconnected")

	ch, cancel := s.feed.Subscribe()
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("admin: server error")
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		s.log.WithError(err).Warn("admin: shutdown error")
	}
}
