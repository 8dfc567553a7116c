package transport

// State is the transport's lifecycle state (spec.md §3.1). Transitions are
// monotonic except for repeated Reconnecting<->Connecting<->Connected
// cycles; Shutdown is absorbing.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of the transport's counters and state
// (spec.md §3.1, §4.1 stats()). Counters are single-writer. State, the
// reconnect count and the timestamps are read under the state lock; the
// atomic counters (messages, callback errors, epoch, generation) are updated
// outside that lock, so they may be skewed relative to the other fields.
type Stats struct {
	State                 State
	MessagesReceived      uint64
	CallbackErrors        uint64
	ReconnectCount        uint64
	ReconnectEpoch        uint64
	LastConnectTSNanos    int64
	LastDisconnectTSNanos int64
	ClientGeneration      uint64
}
