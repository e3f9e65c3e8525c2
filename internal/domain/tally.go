package domain

// Counter names for the shared decision tally.
const (
	CounterSubmissions = "submissions"
	CounterAccepted    = "accepted"
	CounterRejected    = "rejected"
)

// Counters lists every tally counter in a fixed order.
var Counters = []string{CounterSubmissions, CounterAccepted, CounterRejected}

// Tally is a snapshot of the shared cross-session counters.
// The aggregate lives in the store; this value is read-only display state.
type Tally struct {
	Submissions int64 `json:"submissions"`
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
}
