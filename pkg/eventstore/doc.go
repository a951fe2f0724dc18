// Package eventstore defines the gateway's persistence abstractions for
// inbound webhook deliveries.
//
// A Record is one inbound HTTP delivery as received by the gateway. A Store
// persists records append-only, deduplicating on Record.DedupeKey, and
// answers the read queries behind the gateway's /events endpoints:
//   - Latest: the most recent records, newest first
//   - Get: one record by event id
//   - Stats: totals grouped by source, kind and namespace
//
// Persistence is best effort. A Store that cannot reach its backend keeps
// answering Status with Ready set to false instead of failing the gateway.
//
// Example usage:
//
//	rec := eventstore.NewRecord(eventstore.Inbound{
//		Source: "github",
//		Method: "POST",
//		Path:   "/webhooks/github",
//		Body:   body,
//	})
//	inserted, err := store.Append(ctx, rec)
//	if err != nil {
//		return err
//	}
package eventstore
