// Package server provides the HTTP/WebSocket surface of worldsync.
//
// A Server upgrades connections at /ws and runs one Session per client.
// Sessions decode inbound frames with pkg/protocol, forward the resulting
// commands to the pkg/world actor, and write world broadcasts back to
// their connection. Sessions hold no shared state of their own; all
// cross-client communication is mediated by the world's mailbox.
//
// The router also serves /healthz, Prometheus metrics at /metrics, and an
// embedded demo client page at /.
package server
