// Package signaling relays WebRTC session setup between an installation and
// the monitors watching it.
package signaling

import "encoding/json"

// Message types for signaling protocol.
const (
	TypeRegister         = "register"
	TypeRegistered       = "registered"
	TypeListHosts        = "list-hosts"
	TypeHosts            = "hosts"
	TypeHostsUpdated     = "hosts-updated"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice-candidate"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeError            = "error"
	TypeHostDisconnected = "host-disconnected"
)

// ClientType distinguishes an installation from a monitor.
const (
	ClientTypeHost   = "host"
	ClientTypeViewer = "viewer"
)

// Message is the envelope for all signaling messages.
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	Name       string          `json:"name,omitempty"`
	From       string          `json:"from,omitempty"`
	Target     string          `json:"target,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	List       []HostInfo      `json:"list,omitempty"`
	HostID     string          `json:"hostId,omitempty"`
	Msg        string          `json:"message,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// HostInfo describes an installation in the host list.
type HostInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Online bool   `json:"online"`
}
