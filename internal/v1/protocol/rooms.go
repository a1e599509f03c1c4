package protocol

import "go.uber.org/zap"

// Room is a tenant-scoped document broadcast group. Rooms are implicit:
// they exist as soon as any client is joined.
type Room struct {
	TenantID   string `json:"tenantId"`
	DocumentID string `json:"documentId"`
}

// ID returns the canonical room key "<tenantId>/<documentId>".
func (r Room) ID() string {
	return r.TenantID + "/" + r.DocumentID
}

// LogFields returns the metadata attached to outbound log records so
// operators can filter by tenant.
func (r Room) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("documentId", r.DocumentID),
		zap.String("tenantId", r.TenantID),
	}
}

// ClientRoomID returns the per-client transport room "client#<clientId>"
// used for unicast delivery.
func ClientRoomID(clientID string) string {
	return "client#" + clientID
}
