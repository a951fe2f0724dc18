package monitor

import (
	"context"
	"log/slog"

	"github.com/rmacdonaldsmith/hookwatch/pkg/monitor"
)

// feed is the single path every delivery takes into the cache: history
// batches and push messages alike.
type feed struct {
	store     *Store
	presenter monitor.Presenter
	metrics   *Metrics
}

// deliver caches evt and forwards it to the presenter if its key is new.
func (f *feed) deliver(origin string, evt monitor.Event) bool {
	f.metrics.Deliveries.WithLabelValues(origin).Inc()
	if !f.store.Put(evt) {
		return false
	}
	f.metrics.NewEvents.WithLabelValues(origin).Inc()
	f.presenter.Add(evt)
	return true
}

// HistoryLoader fetches the most recent events in bulk and feeds them into the cache.
type HistoryLoader struct {
	source monitor.HistorySource
	query  monitor.HistoryQuery
	feed   *feed
	logger *slog.Logger
}

func newHistoryLoader(source monitor.HistorySource, query monitor.HistoryQuery, f *feed, logger *slog.Logger) *HistoryLoader {
	return &HistoryLoader{
		source: source,
		query:  query,
		feed:   f,
		logger: logger,
	}
}

// Fetch performs the network request only. It does not touch the cache.
func (h *HistoryLoader) Fetch(ctx context.Context) ([]monitor.Event, error) {
	return h.source.LatestEvents(ctx, h.query)
}

// Ingest feeds a fetched batch through the cache in response order and
// returns how many events were new. The presenter prepends each new row, so
// the batch shows up in reverse.
func (h *HistoryLoader) Ingest(events []monitor.Event) int {
	added := 0
	for _, evt := range events {
		if h.feed.deliver(originHistory, evt) {
			added++
		}
	}
	h.logger.Debug("history batch applied", "events", len(events), "new", added)
	return added
}

// Load fetches and ingests one batch.
func (h *HistoryLoader) Load(ctx context.Context) (int, error) {
	events, err := h.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	return h.Ingest(events), nil
}
