// Package protocol defines the wire contract between collaboration clients
// and the gateway: the connect envelope, the connected response, nacks,
// signals and the sanitized operation shape.
package protocol

import (
	"encoding/json"

	"github.com/coscribe/collab-gateway/internal/v1/auth"
)

// Message type tokens. RoundTrip messages carry client latency traces and
// are consumed by the gateway instead of being forwarded.
const (
	MessageTypeOperation = "op"
	MessageTypeRoundTrip = "tripComplete"
)

// Connection modes requested by clients.
const (
	ModeRead  = "read"
	ModeWrite = "write"
)

// Client type reported in ClientDetails that is allowed to keep the
// summary:write scope.
const ClientTypeSummarizer = "summarizer"

// Capabilities describes what a client endpoint can do.
type Capabilities struct {
	Interactive bool `json:"interactive"`
}

// ClientDetails carries client-asserted environment information.
type ClientDetails struct {
	Capabilities Capabilities `json:"capabilities"`
	Type         string       `json:"type,omitempty"`
	Environment  string       `json:"environment,omitempty"`
}

// ClientDescriptor describes one connected client. The gateway overwrites
// User and Scopes from verified token claims; it never trusts the
// client-asserted values.
type ClientDescriptor struct {
	Mode       string        `json:"mode,omitempty"`
	Details    ClientDetails `json:"details"`
	Permission []string      `json:"permission,omitempty"`
	User       auth.UserInfo `json:"user"`
	Scopes     []string      `json:"scopes,omitempty"`
	Timestamp  int64         `json:"timestamp,omitempty"`
}

// ConnectDocumentRequest is the connect_document envelope.
type ConnectDocumentRequest struct {
	TenantID string            `json:"tenantId"`
	ID       string            `json:"id"`
	Token    string            `json:"token,omitempty"`
	Client   *ClientDescriptor `json:"client,omitempty"`
	Versions []string          `json:"versions,omitempty"`
	Mode     string            `json:"mode,omitempty"`
}

// SummaryConfiguration tunes the platform's summarization cadence; the
// gateway only relays it.
type SummaryConfiguration struct {
	IdleTime       int64 `json:"idleTime"`
	MaxOps         int64 `json:"maxOps"`
	MaxTime        int64 `json:"maxTime"`
	MaxAckWaitTime int64 `json:"maxAckWaitTime"`
}

// ServiceConfiguration is handed to clients on connect.
type ServiceConfiguration struct {
	BlockSize      int                  `json:"blockSize"`
	MaxMessageSize int                  `json:"maxMessageSize"`
	Summary        SummaryConfiguration `json:"summary"`
}

// DefaultServiceConfiguration is returned to readers, which have no orderer
// connection to source one from.
var DefaultServiceConfiguration = ServiceConfiguration{
	BlockSize:      64436,
	MaxMessageSize: 16 * 1024,
	Summary: SummaryConfiguration{
		IdleTime:       5000,
		MaxOps:         1000,
		MaxTime:        60000,
		MaxAckWaitTime: 600000,
	},
}

// ReaderMaxMessageSize caps message size reported to read-only clients.
const ReaderMaxMessageSize = 1024

// ConnectedResponse is the connect_document_success payload.
type ConnectedResponse struct {
	Claims               *auth.TokenClaims    `json:"claims"`
	ClientID             string               `json:"clientId"`
	Existing             bool                 `json:"existing"`
	Mode                 string               `json:"mode"`
	MaxMessageSize       int                  `json:"maxMessageSize"`
	ServiceConfiguration ServiceConfiguration `json:"serviceConfiguration"`
	InitialClients       []SignalClient       `json:"initialClients"`
	InitialMessages      []json.RawMessage    `json:"initialMessages"`
	InitialSignals       []json.RawMessage    `json:"initialSignals"`
	SupportedVersions    []string             `json:"supportedVersions"`
	Version              string               `json:"version"`
	Timestamp            int64                `json:"timestamp"`
}

// ConnectError is the connect_document_error payload.
type ConnectError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// Nack error types.
type NackErrorType string

const (
	NackBadRequest   NackErrorType = "BadRequestError"
	NackInvalidScope NackErrorType = "InvalidScopeError"
	NackThrottling   NackErrorType = "ThrottlingError"
)

// NackMessage is a structured negative acknowledgment sent to the
// submitting socket only.
type NackMessage struct {
	Code       int           `json:"code"`
	Type       NackErrorType `json:"type"`
	Message    string        `json:"message"`
	RetryAfter int           `json:"retryAfter,omitempty"`
}

// SignalClient pairs a clientId with its descriptor in presence lists.
type SignalClient struct {
	ClientID string           `json:"clientId"`
	Client   ClientDescriptor `json:"client"`
}

// RoomJoinMessage announces a new room member.
type RoomJoinMessage struct {
	ClientID string        `json:"clientId"`
	Details  ClientDetails `json:"details"`
}

// RoomLeaveMessage announces a departed room member.
type RoomLeaveMessage struct {
	ClientID string `json:"clientId"`
}

// SignalMessage wraps a transient payload broadcast to a room.
type SignalMessage struct {
	ClientID string `json:"clientId"`
	Content  any    `json:"content"`
}
