package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/pinionos/x402-client/internal/circuitbreaker"
	apierrors "github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/internal/service"
)

type breakerStatus struct {
	State  string                `json:"state"`
	Counts circuitbreaker.Counts `json:"counts"`
}

type statusResponse struct {
	service.Status
	CircuitBreakers map[string]breakerStatus `json:"circuitBreakers,omitempty"`
}

type limitRequest struct {
	MaxBudget string `json:"maxBudget"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	st := h.session.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime":     now.Sub(serverStartTime).String(),
		"timestamp":  now.UTC(),
		"configured": st.Configured,
	})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: h.session.Status()}
	if h.breakers != nil {
		resp.CircuitBreakers = make(map[string]breakerStatus)
		for _, svc := range []circuitbreaker.ServiceType{circuitbreaker.ServiceSkillAPI, circuitbreaker.ServicePaidService} {
			resp.CircuitBreakers[string(svc)] = breakerStatus{
				State:  h.breakers.State(svc),
				Counts: h.breakers.Counts(svc),
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) resetSpend(w http.ResponseWriter, r *http.Request) {
	h.session.ResetSpend()
	h.logger.Info().Msg("status_server.spend_reset")
	writeJSON(w, http.StatusOK, h.session.Status().Spend)
}

func (h *handlers) setLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.MaxBudget) == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "maxBudget is required")
		return
	}
	if err := h.session.SetBudget(req.MaxBudget); err != nil {
		apierrors.WriteFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status().Spend)
}

func (h *handlers) clearLimit(w http.ResponseWriter, r *http.Request) {
	h.session.ClearBudget()
	writeJSON(w, http.StatusOK, h.session.Status().Spend)
}
