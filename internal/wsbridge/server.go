package wsbridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/johnelliott/walkpad/pkg/session"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server exposes a pad to one WebSocket client at a time. Frames are
// passed through untouched, pacing stays with the client's session.
type Server struct {
	dialer session.Dialer

	mu   sync.Mutex
	busy bool
}

// NewServer returns a bridge dialing the pad through d for every client
func NewServer(d session.Dialer) *Server {
	return &Server{dialer: d}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		http.Error(w, "pad already in use", http.StatusConflict)
		return
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	pad, err := s.dialer.Dial(r.Context())
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		log.WithError(err).Error("Bridge could not reach pad")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer pad.Close()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Bridge upgrade failed")
		return
	}
	defer ws.Close()
	log.Infof("Bridge client %s connected", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// pad to client
	go func() {
		defer cancel()
		for frame := range pad.Notifications() {
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.WithError(err).Debug("Bridge write to client failed")
				return
			}
		}
		log.Info("Pad went away, closing bridge client")
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "pad disconnected"),
			time.Now().Add(time.Second))
	}()

	// client to pad
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			log.Infof("Bridge client %s left: %v", r.RemoteAddr, err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if err := pad.Write(ctx, data); err != nil {
			log.WithError(err).Warn("Bridge write to pad failed")
			return
		}
	}
}
