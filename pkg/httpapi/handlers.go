package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vending/pkg/inventory"
	"vending/pkg/machine"
	"vending/pkg/order"
)

const maxBodyBytes = 1 << 20

// buyResponse is the body of a successful purchase.
type buyResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	Change        machine.Breakdown `json:"change"`
	UpdatedItems  []inventory.Item  `json:"updatedItems"`
	TotalChange   int               `json:"totalChange"`
	TransactionID string            `json:"transactionId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	operational, err := s.machine.Operational(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		s.writeError(w, statusFor(err), "machine unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"operational": operational,
	})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := s.machine.AvailableItems(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("item listing failed")
		s.writeError(w, statusFor(err), errorMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDenominations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	denominations, err := s.machine.Denominations(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("denomination listing failed")
		s.writeError(w, statusFor(err), errorMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, denominations)
}

func (s *Server) handleCalculateTotal(w http.ResponseWriter, r *http.Request) {
	var lines order.Order
	if err := decodeBody(w, r, &lines); err != nil {
		s.log.Debug().Err(err).Msg("calculate-total: unable to decode payload")
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if lines.Empty() {
		s.writeError(w, http.StatusBadRequest, "order cannot be empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	total, err := s.machine.ComputeOrderTotal(ctx, lines)
	if err != nil {
		s.log.Error().Err(err).Msg("order total failed")
		s.writeError(w, statusFor(err), errorMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, total)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req order.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.log.Debug().Err(err).Msg("buy: unable to decode payload")
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := s.machine.ProcessTransaction(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Msg("purchase not accepted by the machine")
		s.writeError(w, statusFor(err), errorMessage(err))
		return
	}

	switch res.Kind {
	case machine.KindNone:
		s.writeJSON(w, http.StatusOK, buyResponse{
			Success:       true,
			Message:       res.Message,
			Change:        res.ChangeBreakdown,
			UpdatedItems:  res.UpdatedItems,
			TotalChange:   res.ChangeAmount,
			TransactionID: res.ID,
		})
	case machine.KindInternal:
		s.writeError(w, http.StatusInternalServerError, res.Message)
	default:
		s.writeError(w, http.StatusBadRequest, res.Message)
	}
}

// decodeBody reads a single JSON document into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// statusFor maps errors that never reached the pipeline onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, machine.ErrBusy), errors.Is(err, machine.ErrClosed),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage keeps internal details out of responses.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, machine.ErrClosed):
		return machine.ErrClosed.Error()
	case statusFor(err) == http.StatusServiceUnavailable:
		return machine.ErrBusy.Error()
	default:
		return "internal error"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError keeps the {"error": message} shape across endpoints.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
