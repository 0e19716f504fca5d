package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tilestream.ai/internal/observerproto"
	"tilestream.ai/internal/sim/area"
	"tilestream.ai/internal/sim/collision"
	"tilestream.ai/internal/sim/grid"
	"tilestream.ai/internal/sim/layout"
	"tilestream.ai/internal/sim/mathx"
	"tilestream.ai/internal/sim/mesh"
	"tilestream.ai/internal/sim/scenes"
)

type oneTileScene struct {
	tile   *mesh.Tile
	camera grid.Cell
}

func (s *oneTileScene) ID() string                                  { return "one_tile" }
func (s *oneTileScene) Load(context.Context) (int, error)           { return 1, nil }
func (s *oneTileScene) Update(x, z float64)                         { s.camera = grid.NewMapper(640).RoundCell(x, z) }
func (s *oneTileScene) ForEachVisible(func(mathx.Mat4, area.Visit)) {}
func (s *oneTileScene) Destroy()                                    {}
func (s *oneTileScene) Stats() scenes.Stats {
	return scenes.Stats{Resident: 1, Observer: s.camera}
}
func (s *oneTileScene) TileAt(x, z float64) *mesh.Tile {
	if x < 0 || z < 0 || x >= 640 || z >= 640 {
		return nil
	}
	return s.tile
}

func newTestServer(t *testing.T) (*httptest.Server, *oneTileScene) {
	t.Helper()
	wall := &mesh.Shape{
		Positions: mesh.PackPositions([][3]int16{{0, 0, 0}, {0, 20, 50}, {10, 10, 25}}),
		Indices:   []uint16{0, 1, 2},
	}
	scene := &oneTileScene{tile: mesh.NewTile(layout.TileID{Major: 1, Minor: 1}, [][]*mesh.Shape{{wall}})}
	eng := collision.New(scene, collision.Config{TileSize: 640})
	s := NewServer(scene, eng, Config{TileSize: 640, DefaultRadius: 1}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/v1/observer/state", s.StateHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, scene
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
}

func TestObserverHelloAndQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	var hello observerproto.HelloMsg
	readJSON(t, conn, &hello)
	if hello.Type != observerproto.TypeHello || hello.SessionID == "" || hello.SceneID != "one_tile" {
		t.Fatalf("hello=%+v", hello)
	}

	cases := []struct {
		id   string
		x, z float64
		free bool
	}{
		{"wall", 0, 25, false},
		{"open", 300, 300, true},
		{"unloaded", -300, 25, true},
	}
	for _, tc := range cases {
		if err := conn.WriteJSON(observerproto.QueryMsg{Type: observerproto.TypeQuery, ID: tc.id, X: tc.x, Y: 0, Z: tc.z}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var res observerproto.QueryResultMsg
		readJSON(t, conn, &res)
		if res.Type != observerproto.TypeQueryResult || res.ID != tc.id || res.Free != tc.free {
			t.Fatalf("%s: result=%+v", tc.id, res)
		}
		if !tc.free && (res.Cell == nil || *res.Cell != [2]int{0, 0}) {
			t.Fatalf("%s: cell=%v", tc.id, res.Cell)
		}
	}
}

func TestObserverCameraAndErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)
	var hello observerproto.HelloMsg
	readJSON(t, conn, &hello)

	if err := conn.WriteJSON(observerproto.CameraMsg{Type: observerproto.TypeCamera, X: 1000, Z: -100}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var st observerproto.StateMsg
	readJSON(t, conn, &st)
	if st.Type != observerproto.TypeState || st.Observer != [2]int{2, 0} || st.Resident != 1 {
		t.Fatalf("state=%+v", st)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"DANCE"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var e observerproto.ErrorMsg
	readJSON(t, conn, &e)
	if e.Type != observerproto.TypeError {
		t.Fatalf("error=%+v", e)
	}

	for _, msg := range []any{
		observerproto.QueryMsg{Type: observerproto.TypeQuery, ID: "far", X: 1e300, Z: 0},
		observerproto.CameraMsg{Type: observerproto.TypeCamera, X: 0, Z: -1e300},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
		var e observerproto.ErrorMsg
		readJSON(t, conn, &e)
		if e.Type != observerproto.TypeError {
			t.Fatalf("out-of-range %T: reply=%+v", msg, e)
		}
	}
}

func TestStateHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/observer/state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st observerproto.StateMsg
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SceneID != "one_tile" || st.Resident != 1 {
		t.Fatalf("state=%+v", st)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
