// Package dedupe tracks recently seen server message ids so duplicate
// deliveries on the inbound frame stream can be dropped cheaply before
// reconciliation.
package dedupe
