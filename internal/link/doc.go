// Package link owns one connection's command and notification flow.
//
// Ownership boundary:
// - command dispatch: fragment, register, send
// - response routing into the correlation table
// - notification routing to a single sink
// - teardown of everything the connection owns
//
// The physical transport (scan, connect, characteristic I/O) stays behind
// the Transport interface.
package link
