// Package rest is the HTTP client for the marketplace's conversation
// endpoints: list conversations, fetch message history pages, mark read.
// The backend itself is an external collaborator; only response shapes are
// known here. A 401 anywhere triggers the session's auth-required signal.
package rest
