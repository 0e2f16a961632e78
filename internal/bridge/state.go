package bridge

// State is the bridge lifecycle state.
//
//	Initializing → ConnectingSerial → Bridging ⇄ ReconnectingSerial
//
// ShuttingDown is terminal and reachable from every other state, via
// cancellation or an unrecoverable device error. The TUN device is created
// exactly once in Initializing and survives serial reconnection.
type State int32

const (
	StateInitializing State = iota
	StateConnectingSerial
	StateBridging
	StateReconnectingSerial
	StateShuttingDown
)

var stateNames = map[State]string{
	StateInitializing:       "initializing",
	StateConnectingSerial:   "connecting_serial",
	StateBridging:           "bridging",
	StateReconnectingSerial: "reconnecting_serial",
	StateShuttingDown:       "shutting_down",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// states lists every state for the one-hot metrics gauge.
var states = []State{
	StateInitializing,
	StateConnectingSerial,
	StateBridging,
	StateReconnectingSerial,
	StateShuttingDown,
}
