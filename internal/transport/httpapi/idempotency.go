package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tailorlink/negotiation/internal/domain"
)

const (
	// HeaderIdempotencyKey задаёт ключ идемпотентности мутирующего запроса.
	HeaderIdempotencyKey = "Idempotency-Key"

	idempotencyTTL     = 24 * time.Hour
	maxIdempotencyBody = 1 << 20 // 1 MiB
)

// responseRecorder буферизует ответ хэндлера, чтобы его можно было закэшировать.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// withIdempotency — middleware для мутирующих запросов. Повтор с тем же
// ключом и тем же телом возвращает сохранённый ответ, не выполняя хэндлер
// заново; тот же ключ с другим телом — конфликт; конкурентный повтор во
// время обработки — конфликт.
func withIdempotency(repo domain.IdempotencyRepository, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if repo == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBody))
			if err != nil {
				writeBadRequest(w, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r.Method, r.URL.Path, body)
			record, err := repo.CreateProcessing(key, hash, time.Now().UTC().Add(idempotencyTTL))
			if err != nil {
				replay(w, logger, key, record, err)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			if status < http.StatusBadRequest {
				err = repo.MarkDone(key, recorder.body.Bytes(), status)
			} else {
				err = repo.MarkFailed(key, recorder.body.Bytes(), status)
			}
			if err != nil {
				logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
			}
		})
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	io.WriteString(h, method)
	io.WriteString(h, "\n")
	io.WriteString(h, path)
	io.WriteString(h, "\n")
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// replay отвечает на повторный запрос по состоянию сохранённой записи.
func replay(w http.ResponseWriter, logger *log.Entry, key string, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusConflict, errorEnvelope{
			Error: errorBody{
				Code:    "idempotency_key_reused",
				Message: "idempotency key is already used with a different request payload",
			},
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotent-Replay", "true")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeJSON(w, http.StatusConflict, errorEnvelope{
				Error: errorBody{
					Code:    "idempotency_in_flight",
					Message: "request with the same idempotency key is already processing",
				},
			})
		default:
			logger.WithField("idempotency_key", key).Error("unknown idempotency record status")
			writeJSON(w, http.StatusInternalServerError, errorEnvelope{
				Error: errorBody{Code: "internal", Message: "internal error"},
			})
		}
	default:
		logger.WithError(createErr).WithField("idempotency_key", key).Warn("failed to create idempotency record")
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error: errorBody{Code: "internal", Message: "internal error"},
		})
	}
}
