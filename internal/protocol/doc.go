// Package protocol owns the wire contract shared by the command and
// notification channels.
//
// Ownership boundary:
// - partial marker and channel identifiers
// - response status codes
// - sentinel errors and their return-code mapping
//
// Fragmenting lives in frame; command correlation lives in session.
package protocol
