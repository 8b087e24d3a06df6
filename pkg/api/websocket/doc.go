// Package websocket streams task events to connected clients over
// WebSocket. Each connection subscribes to the event bus; slow clients have
// events dropped rather than blocking the publisher.
package websocket
