package dueldto

// Ops a client may send over the gateway websocket. The first frame
// must be a hello carrying the player id supplied by the auth layer;
// the id is trusted as-is.
const (
	OpHello    = "hello"
	OpJoin     = "join"
	OpLeave    = "leave"
	OpMove     = "move"
	OpReset    = "reset"
	OpExchange = "exchange"
	OpBalance  = "balance"
)

// Request is one client intent frame.
type Request struct {
	Op       string `json:"op"`
	PlayerID string `json:"player_id,omitempty"` // hello only
	From     string `json:"from,omitempty"`      // move: source square, e.g. "e2"
	To       string `json:"to,omitempty"`        // move: destination square
	Units    int64  `json:"units,omitempty"`     // exchange: SM units to buy
	Account  string `json:"account,omitempty"`   // exchange: external account ref
}
