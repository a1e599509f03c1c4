package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coscribe/collab-gateway/internal/v1/auth"
	"github.com/coscribe/collab-gateway/internal/v1/logging"
	"github.com/coscribe/collab-gateway/internal/v1/metrics"
	"github.com/coscribe/collab-gateway/internal/v1/ordering"
	"github.com/coscribe/collab-gateway/internal/v1/protocol"
	"github.com/coscribe/collab-gateway/internal/v1/throttle"
)

type connectRequest = protocol.ConnectDocumentRequest

const internalConnectError = "Failed to connect client to document."

// handleConnectDocument runs the full connect pipeline. Each step's failure
// arc emits connect_document_error and leaves the per-socket state
// unchanged; the socket stays open so the client may retry.
func (c *connection) handleConnectDocument(ctx context.Context, req connectRequest) {
	start := time.Now()

	// 1. Throttle socket connects per tenant.
	if terr := c.gw.connectGuard.Check(ctx, throttle.ConnectKey(req.TenantID)); terr != nil {
		c.rejectConnect(ctx, protocol.ConnectError{Code: terr.Code, Message: terr.Message, RetryAfter: terr.RetryAfter})
		return
	}

	// 2. Token presence.
	if req.Token == "" {
		c.rejectConnect(ctx, protocol.ConnectError{Code: http.StatusForbidden, Message: "Must provide an authorization token"})
		return
	}

	// 3. Token claim validation: signature plus document/tenant binding.
	claims, err := c.gw.validator.ValidateTokenClaims(req.Token, req.ID, req.TenantID)
	if err != nil {
		c.rejectConnect(ctx, callerError(err, http.StatusUnauthorized, "Invalid token"))
		return
	}

	// 4. Tenant verification.
	if err := c.gw.tenants.VerifyToken(ctx, claims.TenantID, req.Token); err != nil {
		c.rejectConnect(ctx, callerError(err, http.StatusUnauthorized, "Invalid token"))
		return
	}

	// 5. Mint the serverside clientId and resolve the room.
	clientID := uuid.NewString()
	room := protocol.Room{TenantID: claims.TenantID, DocumentID: claims.DocumentID}
	ctx = logging.WithClient(logging.WithRoom(ctx, room.TenantID, room.DocumentID), clientID)

	// 6. Transport room join: the document room and the per-client room.
	if err := c.sock.Join(room.ID()); err != nil {
		c.internalConnectFault(ctx, room, "Failed to join document room", err)
		return
	}
	if err := c.sock.Join(protocol.ClientRoomID(clientID)); err != nil {
		c.internalConnectFault(ctx, room, "Failed to join client room", err)
		return
	}

	// 7. Compose the client descriptor. User and scopes always come from
	// verified claims; the server never trusts client-asserted values.
	desc := protocol.ClientDescriptor{}
	if req.Client != nil {
		desc = *req.Client
	}
	desc.User = claims.User
	scopes := claims.Scopes
	if desc.Details.Type != protocol.ClientTypeSummarizer {
		scopes = stripScope(scopes, auth.ScopeSummaryWrite)
	}
	desc.Scopes = scopes
	desc.Mode = req.Mode
	desc.Timestamp = time.Now().UnixMilli()

	// 8. Protocol negotiation.
	version, ok := protocol.SelectProtocolVersion(req.Versions)
	if !ok {
		c.rejectConnect(ctx, protocol.ConnectError{
			Code:    http.StatusBadRequest,
			Message: protocol.UnsupportedVersionMessage(req.Versions),
		})
		return
	}

	// 9. Quota.
	existingClients, err := c.gw.registry.GetClients(ctx, room.TenantID, room.DocumentID)
	if err != nil {
		c.internalConnectFault(ctx, room, "Failed to fetch client list", err)
		return
	}
	if len(existingClients) > c.gw.maxClientsPerDocument {
		c.rejectConnect(ctx, protocol.ConnectError{
			Code:       http.StatusTooManyRequests,
			Message:    "Too Many Clients Connected to Document",
			RetryAfter: 300,
		})
		return
	}

	// 10. Register the client.
	if err := c.gw.registry.AddClient(ctx, room.TenantID, room.DocumentID, clientID, desc); err != nil {
		c.internalConnectFault(ctx, room, "Failed to register client", err)
		return
	}

	// 11. Arm the expiration timer.
	if c.gw.tokenExpiryEnabled {
		remainingMs, err := auth.ValidateTokenClaimsExpiration(claims, c.gw.maxTokenLifetimeSec)
		if err != nil {
			c.rejectConnect(ctx, callerError(err, http.StatusUnauthorized, "Invalid token expiration"))
			return
		}
		c.armExpiration(time.Duration(remainingMs) * time.Millisecond)
	}

	// 12. Mode selection: writers attach to the orderer.
	mode := protocol.ModeRead
	var ordererConn ordering.Connection
	if (auth.CanWrite(scopes) || auth.CanSummarize(scopes)) && req.Mode == protocol.ModeWrite {
		orderer, err := c.gw.orderers.GetOrderer(ctx, room.TenantID, room.DocumentID)
		if err != nil {
			c.internalConnectFault(ctx, room, "Failed to obtain orderer", err)
			return
		}
		ordererConn, err = orderer.Connect(ctx, clientID, desc)
		if err != nil {
			c.internalConnectFault(ctx, room, "Failed to connect to orderer", err)
			return
		}

		ordererConn.OnError(func(err error) {
			logging.Error(c.ctx, "Orderer connection error",
				append(room.LogFields(), zap.String("clientId", clientID), zap.Error(err))...)
			c.clearExpiration()
			c.sock.Disconnect()
		})

		// Orderer attach completes asynchronously; the orderer publishes
		// authoritative acks over its own path.
		go func() {
			if err := ordererConn.Connect(context.Background()); err != nil {
				logging.Error(c.ctx, "Orderer attach failed",
					append(room.LogFields(), zap.String("clientId", clientID), zap.Error(err))...)
			}
		}()

		c.connections[clientID] = ordererConn
		mode = protocol.ModeWrite
	}

	// 13. Commit per-socket state.
	c.scopeMap[clientID] = scopes
	c.roomMap[clientID] = room

	// 14. Respond.
	maxMessageSize := protocol.ReaderMaxMessageSize
	serviceConfig := protocol.DefaultServiceConfiguration
	if ordererConn != nil {
		maxMessageSize = ordererConn.MaxMessageSize()
		serviceConfig = ordererConn.ServiceConfiguration()
	}

	c.sock.Emit("connect_document_success", protocol.ConnectedResponse{
		Claims:               claims,
		ClientID:             clientID,
		Existing:             true,
		Mode:                 mode,
		MaxMessageSize:       maxMessageSize,
		ServiceConfiguration: serviceConfig,
		InitialClients:       existingClients,
		InitialMessages:      []json.RawMessage{},
		InitialSignals:       []json.RawMessage{},
		SupportedVersions:    protocol.SupportedVersions,
		Version:              version,
		Timestamp:            time.Now().UnixMilli(),
	})

	// 15. Announce the join to the room.
	c.rooms.EmitToRoom(room.ID(), "signal", protocol.RoomJoinMessage{ClientID: clientID, Details: desc.Details})

	metrics.ConnectAttempts.WithLabelValues("success").Inc()
	metrics.ConnectDuration.Observe(time.Since(start).Seconds())
	logging.Info(ctx, "Client connected", append(room.LogFields(), zap.String("mode", mode))...)
}

// rejectConnect surfaces a caller error; these log at info only.
func (c *connection) rejectConnect(ctx context.Context, e protocol.ConnectError) {
	metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
	logging.Info(ctx, "Rejecting connect", zap.Int("code", e.Code), zap.String("message", e.Message))
	c.sock.Emit("connect_document_error", e)
}

// internalConnectFault logs a collaborator failure and reports an opaque
// 500 without leaking backend detail.
func (c *connection) internalConnectFault(ctx context.Context, room protocol.Room, msg string, err error) {
	metrics.ConnectAttempts.WithLabelValues("error").Inc()
	logging.Error(ctx, msg, append(room.LogFields(), zap.Error(err))...)
	c.sock.Emit("connect_document_error", protocol.ConnectError{
		Code:    http.StatusInternalServerError,
		Message: internalConnectError,
	})
}

// callerError maps a collaborator error to a connect error, preferring an
// embedded status code.
func callerError(err error, fallbackCode int, fallbackMessage string) protocol.ConnectError {
	var statusErr *auth.ErrorWithStatus
	if errors.As(err, &statusErr) {
		return protocol.ConnectError{Code: statusErr.Status, Message: statusErr.Message}
	}
	return protocol.ConnectError{Code: fallbackCode, Message: fallbackMessage}
}

func stripScope(scopes []string, drop string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}
