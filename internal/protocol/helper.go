package protocol

// Helper request types. The daemon writes one JSON object per line to the
// helper's stdin and reads exactly one JSON reply line per request. The
// helper never writes unprompted: subprocess output stays buffered inside it
// until a getView request snapshots the screen.
const (
	HelperInput   = "input"
	HelperResize  = "resize"
	HelperGetView = "getView"
)

// HelperRequest is one request line sent to the rendered-mode helper. The id
// is assigned by the daemon and must be echoed in the reply; it is how a
// reply is matched to its request when a timed-out request's reply arrives
// late.
type HelperRequest struct {
	ID   uint64 `json:"id"`
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// HelperResponse is the single reply line for a HelperRequest, carrying the
// request's id.
type HelperResponse struct {
	ID    uint64 `json:"id"`
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}
