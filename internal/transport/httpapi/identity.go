package httpapi

import (
	"net/http"

	"github.com/tailorlink/negotiation/internal/domain"
)

// Заголовки identity-коллаборатора: аутентификация внешняя, движок получает
// уже разрешённые идентификатор и роль действующего лица.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// requireActor извлекает действующее лицо из заголовков запроса.
func requireActor(r *http.Request) (domain.Party, bool) {
	actor := domain.Party{
		ID:   r.Header.Get(HeaderActorID),
		Role: domain.Role(r.Header.Get(HeaderActorRole)),
	}
	if actor.ID == "" || !actor.Role.Valid() {
		return domain.Party{}, false
	}
	return actor, true
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorEnvelope{
		Error: errorBody{
			Code:    "unauthenticated",
			Message: "actor identity headers are required",
		},
	})
}
