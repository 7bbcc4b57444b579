package upstream

import (
	"encoding/json"
	"net/http"

	"github.com/pubwire-dev/pubwire/pkg/protocol"
	"github.com/pubwire-dev/pubwire/pkg/service"
)

// negotiateResponse is what clients feed their NegotiateFunc.
type negotiateResponse struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
}

// handleNegotiate mints a short-lived client access URL for the user named
// by the id query parameter.
func (d *Dispatcher) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("id")
	if userID == "" {
		d.metrics.negotiateTotal.WithLabelValues("missing_id").Inc()
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	token, err := d.cfg.Tokens.AccessToken(userID, d.cfg.NegotiateRoles, service.DefaultTokenTTL)
	if err != nil {
		d.metrics.negotiateTotal.WithLabelValues("error").Inc()
		d.logger.Error("minting access token", "user_id", userID, "error", err)
		http.Error(w, "minting access token", http.StatusInternalServerError)
		return
	}
	wsURL, err := d.cfg.Tokens.WebSocketURL()
	if err != nil {
		d.metrics.negotiateTotal.WithLabelValues("error").Inc()
		d.logger.Error("building client url", "error", err)
		http.Error(w, "building client url", http.StatusInternalServerError)
		return
	}

	d.metrics.negotiateTotal.WithLabelValues("ok").Inc()
	d.logger.Debug("negotiated client access", "user_id", userID)

	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	json.NewEncoder(w).Encode(negotiateResponse{URL: wsURL, AccessToken: token})
}
