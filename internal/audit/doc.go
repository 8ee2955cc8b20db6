// Package audit relays security events to a sink without blocking the
// request path.
//
// The Engine decides which events to emit (login outcome, refresh reuse,
// logout). This package only buffers and delivers them. A full buffer
// either drops the event and counts it, or blocks the emitter until the
// context ends, depending on Config.DropIfFull.
package audit
