package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tailorlink/negotiation/internal/domain"
)

type openRefundRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type resolveRefundRequest struct {
	Decision string `json:"decision"`
	// Отсутствие суммы означает одобрение полной суммы заявки.
	AmountMinor *int64 `json:"amount_minor,omitempty"`
	AdminNotes  string `json:"admin_notes"`
}

func (s *Server) openRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	if actor.Role != domain.RoleCustomer {
		writeDomainError(w, s.logger, domain.ErrForbidden, nil)
		return
	}

	var req openRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	request, err := s.refunds.Open(req.OrderID, actor.ID, req.Reason)
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toRefundView(request))
}

func (s *Server) getRefund(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(r); !ok {
		writeUnauthenticated(w)
		return
	}
	request, err := s.refunds.Get(chi.URLParam(r, "requestID"))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toRefundView(request))
}

func (s *Server) listRefunds(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(r); !ok {
		writeUnauthenticated(w)
		return
	}
	requests, err := s.refunds.ListByOrder(chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}

	views := make([]refundView, 0, len(requests))
	for _, request := range requests {
		views = append(views, toRefundView(request))
	}
	writeJSON(w, http.StatusOK, views)
}

// resolveRefund — решение администратора по заявке: approved или rejected.
func (s *Server) resolveRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req resolveRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	requestID := chi.URLParam(r, "requestID")

	request, err := s.refunds.Resolve(requestID, domain.RefundStatus(req.Decision), req.AmountMinor, req.AdminNotes, actor)
	if err != nil {
		writeDomainError(w, s.logger, err, s.conflictRefundState(requestID))
		return
	}
	writeJSON(w, http.StatusOK, toRefundView(request))
}

func (s *Server) processRefund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	requestID := chi.URLParam(r, "requestID")

	request, err := s.refunds.Process(r.Context(), requestID, actor)
	if err != nil {
		writeDomainError(w, s.logger, err, s.conflictRefundState(requestID))
		return
	}
	writeJSON(w, http.StatusOK, toRefundView(request))
}

func (s *Server) conflictRefundState(requestID string) interface{} {
	request, err := s.refunds.Get(requestID)
	if err != nil {
		return nil
	}
	view := toRefundView(request)
	return &view
}
