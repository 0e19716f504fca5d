package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tilestream.ai/internal/metrics"
	"tilestream.ai/internal/observerproto"
	"tilestream.ai/internal/sim/collision"
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/scenes"
)

type Config struct {
	TileSize      float64
	DefaultRadius float64
	// AllowRemote disables the loopback-only check.
	AllowRemote bool
}

type Server struct {
	scene  scenes.Scene
	engine *collision.Engine
	cfg    Config
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(scene scenes.Scene, engine *collision.Engine, cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = 1
	}
	return &Server{
		scene:  scene,
		engine: engine,
		cfg:    cfg,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// StateHandler serves the current scene stats as JSON.
func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.state())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := uuid.NewString()
		metrics.ObserverConnected()
		defer metrics.ObserverDisconnected()
		s.log.Printf("session open id=%s remote=%s", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 64)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		send := func(v any) bool {
			b, err := json.Marshal(v)
			if err != nil {
				return true
			}
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		send(observerproto.HelloMsg{
			Type:            observerproto.TypeHello,
			ProtocolVersion: observerproto.Version,
			SessionID:       sid,
			SceneID:         s.scene.ID(),
			TileSize:        s.cfg.TileSize,
		})

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handle(msg)
			if reply != nil && !send(reply) {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		s.log.Printf("session close id=%s", sid)

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// handle decodes one client message and returns the reply.
func (s *Server) handle(msg []byte) any {
	var env observerproto.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return errorMsg("bad json")
	}
	switch env.Type {
	case observerproto.TypeCamera:
		var m observerproto.CameraMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorMsg("bad camera")
		}
		if !grid.NewMapper(s.cfg.TileSize).InRange(m.X, m.Z) {
			return errorMsg("camera out of range")
		}
		s.scene.Update(m.X, m.Z)
		return s.state()
	case observerproto.TypeQuery:
		var m observerproto.QueryMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorMsg("bad query")
		}
		return s.query(m)
	default:
		return errorMsg("unknown type " + env.Type)
	}
}

func (s *Server) query(m observerproto.QueryMsg) any {
	if !grid.NewMapper(s.cfg.TileSize).InRange(m.X, m.Z) || math.IsInf(m.Y, 0) {
		return errorMsg("query out of range")
	}
	r := m.Radius
	if r <= 0 {
		r = s.cfg.DefaultRadius
	}
	res := observerproto.QueryResultMsg{Type: observerproto.TypeQueryResult, ID: m.ID, Free: true}
	if hit, ok := s.engine.FirstHit(m.X, m.Y, m.Z, r); ok {
		res.Free = false
		res.Cell = &[2]int{hit.Cell.Col, hit.Cell.Row}
		res.Triangle = hit.Triangle
	}
	metrics.InstrumentCollision(res.Free)
	return res
}

func (s *Server) state() observerproto.StateMsg {
	st := s.scene.Stats()
	return observerproto.StateMsg{
		Type:     observerproto.TypeState,
		SceneID:  s.scene.ID(),
		Resident: st.Resident,
		InFlight: st.InFlight,
		Observer: [2]int{st.Observer.Col, st.Observer.Row},
	}
}

func errorMsg(text string) observerproto.ErrorMsg {
	return observerproto.ErrorMsg{Type: observerproto.TypeError, Message: text}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.cfg.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
