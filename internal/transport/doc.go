// Package transport maintains the realtime push channel to the Sensi
// cloud.
//
// The endpoint speaks socket.io over an engine.io websocket. The client
// owns the full connection lifecycle: bearer-token dial, frame decode,
// ping/pong keepalive, automatic reconnection with capped exponential
// backoff and full jitter, and token invalidation when the server rejects
// the session mid-stream. Consumers receive a flat stream of Events and
// never see connection management.
//
// Two delivery paths run at once. Server-initiated events (state pushes)
// arrive on the Events channel. Emits with acknowledgment correlate the
// server's numbered ack reply back to the waiting caller, which is how
// command delivery is confirmed.
//
// A polling ticker requests full state for every known device on a fixed
// interval, independent of push-channel health. Push is an optimization;
// polling is the floor.
package transport
