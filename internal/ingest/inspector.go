package ingest

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Inspector logs what relay consumers send back. Inbound traffic is
// observational only and never re-enters the pipeline.
type Inspector struct {
	logger *zap.Logger
}

// NewInspector creates an inspector
func NewInspector(logger *zap.Logger) *Inspector {
	return &Inspector{logger: logger.Named("inbound")}
}

// OnRelayMessage pretty-prints JSON payloads and logs anything else verbatim
func (i *Inspector) OnRelayMessage(clientID string, payload []byte) {
	if json.Valid(payload) {
		i.logger.Info("relay message", zap.String("client_id", clientID), zap.String("json", pretty(payload)))
		return
	}
	i.logger.Info("relay message", zap.String("client_id", clientID), zap.ByteString("text", payload))
}
