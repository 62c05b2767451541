// Package skypack is a request/response client for a SKYPACK device reached
// over UDP.
//
// Every request carries a kind and a correlation id. A single receiver
// goroutine owns the read side of the socket and hands each decoded response
// to the caller waiting on its (kind, id) key. Callers resend on a fixed
// per-attempt deadline until a response arrives or the retry bound is used
// up, so many requests can be in flight over one socket at once.
//
//	c, err := skypack.Dial(skypack.Config{TargetAddr: "127.0.0.1:41263"})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	resp, err := c.GetTelemetrySync()
package skypack
