package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service       *Service
	healthDetails map[string]func() interface{}
	logger        *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{
		service:       service,
		healthDetails: make(map[string]func() interface{}),
		logger:        logger,
	}
}

// AddHealthDetail adds the result of fn under name to every /health
// response. Register details before serving.
func (h *Handler) AddHealthDetail(name string, fn func() interface{}) {
	h.healthDetails[name] = fn
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/order/{customer_id}", h.SubmitOrder).Methods(http.MethodPost)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}

// SubmitOrder handles POST /order/{customer_id}.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	rawID := mux.Vars(r)["customer_id"]
	customerID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		h.respondWithValidationError(w, newValidationError(FieldError{
			Type: "int_parsing",
			Loc:  []interface{}{"path", "customer_id"},
			Msg:  "Input should be a valid integer, unable to parse string as an integer",
		}))
		return
	}

	order, err := DecodeOrder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			h.respondWithValidationError(w, verr)
			return
		}
		h.logger.WithError(err).Error("Failed to decode order request")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to process order")
		return
	}

	summary, err := h.service.Submit(r.Context(), customerID, order)
	if err != nil {
		h.logger.WithError(err).WithField("customer_id", customerID).Error("Failed to submit order")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to process order")
		return
	}

	h.respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := map[string]interface{}{
		"status":  "healthy",
		"service": "order-service",
	}
	for name, detail := range h.healthDetails {
		response[name] = detail()
	}

	if err := h.service.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Order store ping failed")
		response["status"] = "unhealthy"
		response["error"] = "order store unavailable"
		h.respondWithJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
		code = http.StatusInternalServerError
		response = []byte(`{"detail":"Internal Server Error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"detail": message,
	})
}

func (h *Handler) respondWithValidationError(w http.ResponseWriter, verr *ValidationError) {
	h.logger.WithField("errors", len(verr.Errors)).Debug("Rejected invalid order request")
	h.respondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"detail": verr.Errors,
	})
}
