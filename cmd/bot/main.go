// Command bot walks an observer through a running server: it moves the
// camera on a random walk and probes each step for collisions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"tilestream.ai/internal/observerproto"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/observer/ws", "observer ws url")
		startX   = flag.Float64("x", 0, "start x")
		startZ   = flag.Float64("z", 0, "start z")
		stepSize = flag.Float64("step", 40, "walk step length")
		every    = flag.Duration("every", 500*time.Millisecond, "step interval")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random walk seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	go readLoop(conn, logger)

	w := newWalker(*startX, *startZ, *stepSize, *seed)
	tick := time.NewTicker(*every)
	defer tick.Stop()
	n := 0
	for {
		select {
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return
		case <-tick.C:
		}
		n++
		x, z := w.next()
		if err := conn.WriteJSON(observerproto.CameraMsg{Type: observerproto.TypeCamera, X: x, Z: z}); err != nil {
			logger.Fatalf("send CAMERA: %v", err)
		}
		if err := conn.WriteJSON(observerproto.QueryMsg{Type: observerproto.TypeQuery, ID: fmt.Sprintf("Q%d", n), X: x, Y: 0, Z: z}); err != nil {
			logger.Fatalf("send QUERY: %v", err)
		}
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			os.Exit(0)
		}
		var env observerproto.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		switch env.Type {
		case observerproto.TypeHello:
			var h observerproto.HelloMsg
			if err := json.Unmarshal(msg, &h); err == nil {
				logger.Printf("HELLO session=%s scene=%s tile_size=%g", h.SessionID, h.SceneID, h.TileSize)
			}
		case observerproto.TypeState:
			var s observerproto.StateMsg
			if err := json.Unmarshal(msg, &s); err == nil {
				logger.Printf("STATE observer=%d,%d resident=%d in_flight=%d", s.Observer[0], s.Observer[1], s.Resident, s.InFlight)
			}
		case observerproto.TypeQueryResult:
			var r observerproto.QueryResultMsg
			if err := json.Unmarshal(msg, &r); err == nil && !r.Free {
				logger.Printf("BLOCKED id=%s cell=%v tri=%d", r.ID, *r.Cell, r.Triangle)
			}
		case observerproto.TypeError:
			logger.Printf("ERROR %s", msg)
		}
	}
}

// walker takes fixed-length axis-aligned steps in a random direction.
type walker struct {
	x, z, step float64
	r          *rand.Rand
}

func newWalker(x, z, step float64, seed int64) *walker {
	return &walker{x: x, z: z, step: step, r: rand.New(rand.NewSource(seed))}
}

func (w *walker) next() (float64, float64) {
	switch w.r.Intn(4) {
	case 0:
		w.x += w.step
	case 1:
		w.x -= w.step
	case 2:
		w.z += w.step
	default:
		w.z -= w.step
	}
	return w.x, w.z
}
