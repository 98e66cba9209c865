// Package sim is an in-memory gForce device that speaks the link wire
// format. It implements link.Transport and link.Subscriber so a link can
// run end to end without a radio.
package sim
