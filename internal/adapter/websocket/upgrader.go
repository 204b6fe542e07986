package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	apperrors "github.com/pscheid92/worldsync/internal/platform/errors"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024
)

// NewUpgrader builds the upgrader for /subscribe. Handshake failures are
// answered with the same JSON error body as the HTTP API.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin:     checkOrigin,
		Error:           writeHandshakeError,
	}
}

func writeHandshakeError(w http.ResponseWriter, _ *http.Request, status int, reason error) {
	var structured *apperrors.Error
	switch status {
	case http.StatusForbidden:
		structured = apperrors.ValidationError("origin not allowed")
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusUpgradeRequired:
		structured = apperrors.ValidationError("websocket handshake required")
	default:
		structured = apperrors.InternalError("websocket handshake failed", reason)
	}
	structured.WithField("reason", reason.Error())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Sec-Websocket-Version", "13")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(structured.ToResponse())
}
