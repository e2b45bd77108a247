package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/reelsmith/middleware"
	"github.com/nijaru/reelsmith/services/recording"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

// OutcomeSocket pushes recording poll outcomes to websocket clients. An
// optional ?id= query limits the feed to one recording.
type OutcomeSocket struct {
	service  recording.Service
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

func NewOutcomeSocket(service recording.Service, allowedOrigins []string, logger *logrus.Logger) *OutcomeSocket {
	return &OutcomeSocket{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(strings.TrimSpace(o), origin) {
				return true
			}
		}
		return false
	}
}

// HandleOutcomes handles GET /api/recordings/ws
func (s *OutcomeSocket) HandleOutcomes(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())
	filter := r.URL.Query().Get("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	outcomes, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case o, ok := <-outcomes:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if filter != "" && o.RecordingID != filter {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(o); err != nil {
				logger.WithError(err).Debug("Websocket write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
