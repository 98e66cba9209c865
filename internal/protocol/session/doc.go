// Package session owns command correlation for one link.
//
// Ownership boundary:
// - outstanding command table, one entry per opcode
// - single-timer deadline scheduling
// - completion delivery outside the table lock
package session
