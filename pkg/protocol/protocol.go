// Package protocol defines the text-conferencing wire format: message kinds,
// the space-delimited frame codec and NUL-terminated framing on byte streams.
package protocol

import "strconv"

const (
	// MaxName is the longest username or password, in bytes.
	MaxName = 19

	// MaxPassword is the longest password, in bytes.
	MaxPassword = 19

	// MaxSessionID is the longest session id, in bytes.
	MaxSessionID = 19

	// MaxPayload is the largest payload a frame may carry.
	// The data budget is 1000 bytes including the terminator.
	MaxPayload = 999

	// MaxFrameSize bounds a whole encoded frame on a stream, terminator included.
	// [kind | size | source | payload] plus separators fits well below this.
	MaxFrameSize = 2048

	// Terminator ends every frame on a byte stream. Declared sizes count it.
	Terminator byte = 0

	// ServerSource is the source field of every server-originated frame.
	ServerSource = "SERVER"
)

// Kind is the integer tag of a wire message. Values are stable in both directions.
type Kind int

const (
	KindLogin Kind = iota
	KindLoginAck
	KindLoginNak
	KindRegister
	KindRegisterAck
	KindRegisterNak
	KindExit
	KindJoin
	KindJoinAck
	KindJoinNak
	KindLeaveSession
	KindNewSession
	KindNewSessionAck
	KindNewSessionNak
	KindMessage
	KindDirectRequest
	KindDirectMessage
	KindDirectNak
	KindQuery
	KindQueryAck

	kindCount
)

var kindNames = [...]string{
	KindLogin:         "LOGIN",
	KindLoginAck:      "LO_ACK",
	KindLoginNak:      "LO_NAK",
	KindRegister:      "REGISTER",
	KindRegisterAck:   "REG_ACK",
	KindRegisterNak:   "REG_NAK",
	KindExit:          "EXIT",
	KindJoin:          "JOIN",
	KindJoinAck:       "JN_ACK",
	KindJoinNak:       "JN_NAK",
	KindLeaveSession:  "LEAVE_SESS",
	KindNewSession:    "NEW_SESS",
	KindNewSessionAck: "NS_ACK",
	KindNewSessionNak: "NS_NAK",
	KindMessage:       "MESSAGE",
	KindDirectRequest: "DM_REQ",
	KindDirectMessage: "DM_MSG",
	KindDirectNak:     "DM_NAK",
	KindQuery:         "QUERY",
	KindQueryAck:      "QU_ACK",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return "KIND(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// Kinds returns every defined kind in tag order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// FromServer reports whether k is only ever sent by the server.
func (k Kind) FromServer() bool {
	switch k {
	case KindLoginAck, KindLoginNak, KindRegisterAck, KindRegisterNak, KindJoinAck, KindJoinNak,
		KindNewSessionAck, KindNewSessionNak, KindDirectMessage, KindDirectNak, KindQueryAck:
		return true
	default:
		return false
	}
}
