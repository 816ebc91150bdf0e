// Package wsconn owns the persistent websocket connection to the chat
// backend: the connect/disconnect state machine, protocol-level
// authentication, the automatic inbound-queue subscription, and the decoded
// inbound frame stream.
package wsconn
