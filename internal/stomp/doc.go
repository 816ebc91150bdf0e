// Package stomp encodes and decodes the text frames of the chat wire
// sub-protocol (a minimal STOMP subset). The package is pure: it performs
// no I/O and holds no state.
package stomp
