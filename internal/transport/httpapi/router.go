package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
	"github.com/tailorlink/negotiation/internal/service/negotiation"
	"github.com/tailorlink/negotiation/internal/service/order"
	"github.com/tailorlink/negotiation/internal/service/refund"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// Server — HTTP-фасад движка: торг, заказы и возвраты под /api/v1.
type Server struct {
	offers  negotiation.Engine
	orders  order.Manager
	refunds refund.Workflow
	idem    domain.IdempotencyRepository
	logger  *log.Entry
}

// NewServer собирает фасад над сервисами движка. Репозиторий идемпотентности
// опционален: без него мутирующие запросы выполняются напрямую.
func NewServer(
	offers negotiation.Engine,
	orders order.Manager,
	refunds refund.Workflow,
	idem domain.IdempotencyRepository,
	logger *log.Logger,
) *Server {
	if logger == nil {
		logger = log.New()
	}
	return &Server{
		offers:  offers,
		orders:  orders,
		refunds: refunds,
		idem:    idem,
		logger:  logger.WithField("component", "http_api"),
	}
}

// Router строит chi-маршрутизатор со всеми операциями API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: errorBody{
			Code:    "route_not_found",
			Message: fmt.Sprintf("no route for %s", req.URL.Path),
		}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Error: errorBody{
			Code:    "method_not_allowed",
			Message: fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path),
		}})
	})

	r.Route(apiPrefix, func(api chi.Router) {
		api.Group(func(mutating chi.Router) {
			mutating.Use(withIdempotency(s.idem, s.logger))

			mutating.Post("/offers", s.createOffer)
			mutating.Post("/offers/{offerID}/negotiate", s.negotiate)
			mutating.Patch("/offers/{offerID}/status", s.terminateOffer)

			mutating.Put("/orders/{orderID}/status", s.updateOrderStatus)
			mutating.Post("/orders/{orderID}/payment", s.markOrderPaid)

			mutating.Post("/refund-requests", s.openRefund)
			mutating.Patch("/refund-requests/{requestID}/status", s.resolveRefund)
			mutating.Post("/refund-requests/{requestID}/process", s.processRefund)
		})

		api.Get("/offers", s.listOffers)
		api.Get("/offers/{offerID}", s.getOffer)

		api.Get("/orders", s.listOrders)
		api.Get("/orders/{orderID}", s.getOrder)
		api.Get("/orders/{orderID}/timeline", s.orderTimeline)

		api.Get("/refund-requests/{requestID}", s.getRefund)
		api.Get("/orders/{orderID}/refund-requests", s.listRefunds)
	})

	return r
}
