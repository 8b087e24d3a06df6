// Package events groups the EventBus adapters: an in-memory bus that
// dispatches to local subscribers, and a Redis Streams bus for fanning task
// events out to external consumers with at-least-once delivery.
package events
