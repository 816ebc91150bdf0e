// Package chat holds the in-memory conversation and message state for the
// active session. The Synchronizer is the single writer over that state: it
// applies optimistic sends, reconciles server echoes from the inbound frame
// stream, and fans out updates to views through the Hub. The Poller resolves
// conversations the server creates implicitly on a first message.
package chat
