// Package session ties the chat subsystem to the login lifecycle. The Store
// holds the bearer credential and the user id derived from it; the Session
// orchestrates connect on login and disconnect-plus-state-teardown on logout
// or credential rejection. Components receive the session explicitly; there
// is no process-wide singleton.
package session
