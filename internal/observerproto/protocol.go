package observerproto

// Version is the observer protocol version.
const Version = "1"

const (
	TypeHello       = "HELLO"
	TypeCamera      = "CAMERA"
	TypeQuery       = "QUERY"
	TypeState       = "STATE"
	TypeQueryResult = "QUERY_RESULT"
	TypeError       = "ERROR"
)

// Envelope is decoded first to dispatch on Type.
type Envelope struct {
	Type string `json:"type"`
}

// Server -> Client. First message on the connection.
type HelloMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	SceneID         string  `json:"scene_id"`
	TileSize        float64 `json:"tile_size"`
}

// Client -> Server. Moves the shared observer; answered with a STATE.
type CameraMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// Client -> Server. Collision query; answered with a QUERY_RESULT.
type QueryMsg struct {
	Type   string  `json:"type"`
	ID     string  `json:"id,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius,omitempty"`
}

type StateMsg struct {
	Type     string `json:"type"`
	SceneID  string `json:"scene_id"`
	Resident int    `json:"resident"`
	InFlight int    `json:"in_flight"`
	Observer [2]int `json:"observer"`
}

type QueryResultMsg struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Free bool   `json:"free"`
	// Cell and Triangle are set when the query was blocked.
	Cell     *[2]int `json:"cell,omitempty"`
	Triangle int     `json:"triangle,omitempty"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
