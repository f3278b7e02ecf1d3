package common

// Message types of the WebSocket GraphQL subscription protocol, as observed
// by the client.
const (
	// client -> server
	MsgTypeConnectionInit = "connection_init"
	MsgTypeStart          = "start"
	MsgTypeStop           = "stop"

	// server -> client
	MsgTypeConnectionAck = "connection_ack"
	MsgTypeData          = "data"
	MsgTypeNext          = "next"
	MsgTypeComplete      = "complete"
	MsgTypeError         = "error"
	MsgTypeKeepAlive     = "ka"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connected
	Initialized
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Initialized:
		return "initialized"
	}
	return "unknown"
}

// IsDataType reports whether a message type carries operation results. Both
// spellings exist on the wire: "data" (apollo dialect) and "next"
// (graphql-ws dialect).
func IsDataType(msgType string) bool {
	return msgType == MsgTypeData || msgType == MsgTypeNext
}
