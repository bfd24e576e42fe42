package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/service/negotiation"
)

const defaultListLimit = 50

type serviceLineRequest struct {
	ServiceID      string `json:"service_id"`
	ServiceName    string `json:"service_name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

type createOfferRequest struct {
	TailorID         string               `json:"tailor_id"`
	Currency         string               `json:"currency"`
	SelectedServices []serviceLineRequest `json:"selected_services"`
	ExtraServices    []serviceLineRequest `json:"extra_services"`
	AmountMinor      int64                `json:"amount_minor"`
	Message          string               `json:"message"`
}

type negotiateRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Message     string `json:"message"`
	Accept      bool   `json:"accept"`
}

type negotiateResponse struct {
	Offer offerView  `json:"offer"`
	Order *orderView `json:"order,omitempty"`
}

type offerStatusRequest struct {
	Status string `json:"status"`
}

func toServiceLines(lines []serviceLineRequest) []domain.ServiceLine {
	out := make([]domain.ServiceLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.ServiceLine{
			ServiceID:      line.ServiceID,
			ServiceName:    line.ServiceName,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
		})
	}
	return out
}

func (s *Server) createOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}
	if actor.Role != domain.RoleCustomer {
		writeDomainError(w, s.logger, domain.ErrForbidden, nil)
		return
	}

	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	offer, err := s.offers.CreateOffer(negotiation.CreateOfferInput{
		CustomerID:       actor.ID,
		TailorID:         req.TailorID,
		Currency:         req.Currency,
		SelectedServices: toServiceLines(req.SelectedServices),
		ExtraServices:    toServiceLines(req.ExtraServices),
		AmountMinor:      req.AmountMinor,
		Message:          req.Message,
	})
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferView(offer))
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(r); !ok {
		writeUnauthenticated(w)
		return
	}
	offer, err := s.offers.Get(chi.URLParam(r, "offerID"))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(offer))
}

func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	partyID := r.URL.Query().Get("party_id")
	if partyID == "" {
		partyID = actor.ID
	}
	offers, err := s.offers.ListByParty(partyID, listLimit(r))
	if err != nil {
		writeDomainError(w, s.logger, err, nil)
		return
	}

	views := make([]offerView, 0, len(offers))
	for _, offer := range offers {
		views = append(views, toOfferView(offer))
	}
	writeJSON(w, http.StatusOK, views)
}

// negotiate — единая точка торга: встречное предложение или акцепт текущей
// цены. Акцепт обязан нести сумму, которую видел акцептующий: расхождение с
// актуальной ценой возвращает конфликт со свежим снимком оффера.
func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req negotiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	offerID := chi.URLParam(r, "offerID")

	if req.Accept {
		offer, ord, err := s.offers.Accept(offerID, actor.ID, req.AmountMinor)
		if err != nil {
			writeDomainError(w, s.logger, err, s.conflictOfferState(offerID))
			return
		}
		resp := negotiateResponse{Offer: toOfferView(offer)}
		if ord != nil {
			view := toOrderView(*ord)
			resp.Order = &view
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	offer, err := s.offers.Propose(offerID, actor.ID, req.AmountMinor, req.Message)
	if err != nil {
		writeDomainError(w, s.logger, err, s.conflictOfferState(offerID))
		return
	}
	writeJSON(w, http.StatusOK, negotiateResponse{Offer: toOfferView(offer)})
}

// terminateOffer закрывает торг: rejected портным или cancelled клиентом.
func (s *Server) terminateOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	var req offerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	offerID := chi.URLParam(r, "offerID")

	var (
		offer domain.Offer
		err   error
	)
	switch domain.OfferStatus(req.Status) {
	case domain.OfferStatusRejected:
		offer, err = s.offers.Reject(offerID, actor.ID)
	case domain.OfferStatusCancelled:
		offer, err = s.offers.Cancel(offerID, actor.ID)
	default:
		writeBadRequest(w, "status must be rejected or cancelled")
		return
	}
	if err != nil {
		writeDomainError(w, s.logger, err, s.conflictOfferState(offerID))
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(offer))
}

// conflictOfferState подгружает свежий снимок оффера для конверта конфликта.
func (s *Server) conflictOfferState(offerID string) interface{} {
	offer, err := s.offers.Get(offerID)
	if err != nil {
		return nil
	}
	view := toOfferView(offer)
	return &view
}

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}
