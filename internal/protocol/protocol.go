package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypeAdvance  = "ADVANCE"
	TypePurchase = "PURCHASE"
	TypePurge    = "PURGE"
	TypeAirdrop  = "AIRDROP"
	TypeClaim    = "CLAIM"
	TypeStatus   = "STATUS"
	TypeResult   = "RESULT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
