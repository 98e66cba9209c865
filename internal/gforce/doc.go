// Package gforce is the command catalog and notification decoding for
// gForce armbands, layered on a link.Link.
//
// Commands are fixed-layout payloads whose first byte is the opcode;
// responses are correlated on that opcode by the link.
package gforce
