// Package stream fans registry change events out to live subscribers.
//
// The Broadcaster implements device.Publisher. Publish never blocks: every
// subscriber owns a bounded queue and an event that does not fit is dropped
// for that subscriber only, so a slow client can never stall the registry or
// the heartbeat loops. Events reach a given subscriber in publish order.
//
// Two transports drain subscriber queues:
//
//	GET /api/v1/events/ws   WebSocket, protocol-level ping/pong keepalive
//	GET /api/v1/events      Server-Sent Events, comment-line keepalive
//
// Both accept an optional kind filter (?kind=camera). A failed write drops the
// subscriber and releases its queue.
//
// Wire format of each event:
//
//	{"type":"camera_added","data":{...device...},"timestamp":"2026-01-02T15:04:05Z"}
package stream
