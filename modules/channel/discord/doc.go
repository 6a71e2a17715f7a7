// Package discord implements the Discord channel for sandy.
//
// It bridges a Discord bot account and the turn handler:
//
//   - a gateway client (coder/websocket, API v10, JSON encoding) that
//     heartbeats, identifies, caches guild and channel names, and turns
//     MESSAGE_CREATE events into message.Turn values
//   - reconnection with exponential backoff whenever the session drops
//   - a REST client for sending messages (split at 2000 characters) and
//     typing indicators, retrying on 429 with the advertised delay
//
// Direct messages are ignored. The module registers itself as
// "channel.discord" and implements the full module lifecycle:
// Configure → Provision → Validate → Start → Stop.
package discord
