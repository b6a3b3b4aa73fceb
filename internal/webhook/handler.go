package webhook

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shopifyapp/internal/api"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/metrics"
	"shopifyapp/internal/queue"
	"shopifyapp/pkg/shopify"
)

// Handler serves POST /webhook/{type}. It runs behind AuthWebhook, so the
// body signature and shop domain header are already checked.
type Handler struct {
	Registry *Registry
	Queue    queue.Dispatcher
	// QueueName is the queue webhook jobs go to.
	QueueName string
	// Events is optional. When set, repeated deliveries are acknowledged
	// without dispatching again.
	Events Deduper
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := NormalizeTopic(chi.URLParam(r, "type"))
	log := logging.From(r.Context()).With().Str("topic", topic).Logger()

	factory, ok := h.Registry.Lookup(topic)
	if !ok {
		metrics.IncWebhook(topic, "unknown")
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "unknown webhook type")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read body")
		return
	}
	eventID := strings.TrimSpace(r.Header.Get("X-Shopify-Webhook-Id"))
	if eventID == "" {
		eventID = strings.TrimSpace(r.Header.Get("X-Shopify-Event-Id"))
	}
	p := Payload{
		Topic:   topic,
		Domain:  shopify.SanitizeShopDomain(r.Header.Get("X-Shopify-Shop-Domain")),
		EventID: eventID,
		Body:    body,
	}

	if h.Events != nil {
		seen, err := h.Events.Seen(r.Context(), p)
		if err != nil {
			log.Error().Err(err).Msg("record webhook event")
		} else if seen {
			log.Debug().Str("event_id", eventID).Msg("webhook already received")
			metrics.IncWebhook(topic, "duplicate")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if err := h.Queue.Dispatch(factory(p), h.QueueName); err != nil {
		log.Error().Err(err).Msg("dispatch webhook job")
		metrics.IncWebhook(topic, "dropped")
		api.WriteError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "webhook could not be queued")
		return
	}
	metrics.IncWebhook(topic, "queued")
	w.WriteHeader(http.StatusCreated)
}
