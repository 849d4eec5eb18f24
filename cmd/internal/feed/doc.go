// Package feed pushes catalog change notifications to connected back-office
// clients over a websocket.
//
// The gateway is mounted behind the auth gate, so every connection belongs to
// an authenticated identity. Delivery is best effort: each client has a bounded
// queue and events are dropped for clients that fall behind.
package feed
