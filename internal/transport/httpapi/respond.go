package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
)

// errorBody — каноничный JSON-конверт ошибки API.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorEnvelope несёт ошибку и, для восстановимых конфликтов, авторитетный
// снимок агрегата, по которому клиент сверяет своё состояние перед повтором.
type errorEnvelope struct {
	Error errorBody   `json:"error"`
	State interface{} `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeDomainError транслирует доменную ошибку в HTTP-статус и конверт.
// state прикладывается только к конфликтам: для них клиенту нужен свежий
// снимок, чтобы примириться и повторить запрос.
func writeDomainError(w http.ResponseWriter, logger *log.Entry, err error, state interface{}) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("internal error")
		writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: "internal error"}})
		return
	}

	envelope := errorEnvelope{Error: errorBody{Code: code, Message: err.Error()}}
	if status == http.StatusConflict {
		envelope.State = state
	}
	writeJSON(w, status, envelope)
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrStaleAcceptance):
		return http.StatusConflict, "stale_acceptance"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return http.StatusConflict, "already_terminal"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrNotEligible):
		return http.StatusUnprocessableEntity, "not_eligible"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, domain.ErrUpstreamFailure):
		return http.StatusBadGateway, "upstream_failure"
	case isValidationError(err):
		return http.StatusBadRequest, "validation_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func isValidationError(err error) bool {
	for _, known := range []error{
		domain.ErrCustomerRequired,
		domain.ErrTailorRequired,
		domain.ErrCurrencyRequired,
		domain.ErrServicesRequired,
		domain.ErrAmountNegative,
		domain.ErrServiceQtyInvalid,
		domain.ErrServicePriceInvalid,
		domain.ErrReasonRequired,
		domain.ErrOfferIDRequired,
		domain.ErrOrderIDRequired,
		domain.ErrOfferStatusUnknown,
		domain.ErrOrderStatusUnknown,
		domain.ErrPaymentStatusUnknown,
		domain.ErrRefundStatusUnknown,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// writeBadRequest — ошибка разбора входного JSON или параметров запроса.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{Code: "bad_request", Message: message},
	})
}
