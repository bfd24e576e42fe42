package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tailorlink/negotiation/internal/domain"
)

type orderStatusRequest struct {
	Status string `json:"status"`
}

type markPaidRequest struct {
	PaymentRef string `json:"payment_ref"`
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(r); !ok {
		writeUnauthenticated(w)
		return
	}
	ord, err := s.orders.Get(chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(ord))
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	partyID := r.URL.Query().Get("party_id")
	if partyID == "" {
		partyID = actor.ID
	}
	orders, err := s.orders.ListByParty(partyID, listLimit(r))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, ord := range orders {
		views = append(views, toOrderView(ord))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	orderID := chi.URLParam(r, "orderID")

	ord, err := s.orders.UpdateStatus(orderID, domain.OrderStatus(req.Status), actor)
	if err != nil {
		writeDomainError(w, s.logger, err, s.conflictOrderState(orderID))
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(ord))
}

// markOrderPaid — подтверждение оплаты от платёжного коллаборатора.
func (s *Server) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	orderID := chi.URLParam(r, "orderID")

	ord, err := s.orders.MarkPaid(orderID, req.PaymentRef, actor)
	if err != nil {
		writeDomainError(w, s.logger, err, s.conflictOrderState(orderID))
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(ord))
}

func (s *Server) orderTimeline(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(r); !ok {
		writeUnauthenticated(w)
		return
	}
	events, err := s.orders.Timeline(chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toTimelineViews(events))
}

func (s *Server) conflictOrderState(orderID string) interface{} {
	ord, err := s.orders.Get(orderID)
	if err != nil {
		return nil
	}
	view := toOrderView(ord)
	return &view
}
