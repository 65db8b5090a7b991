// Package session manages the lifecycle of one reader connection.
//
// A Session owns the TCP connection to a reader, the frame decoder, and
// the request correlator. It sends periodic keepalives, watches for
// liveness, and reconnects with exponential backoff when the connection
// drops. Unsolicited frames (tag notifications) are fanned out to
// registered handlers.
//
// Requests are correlated by (cmd, sub): the reader echoes the request's
// command bytes on its response, so at most one request per command key
// may be in flight. A second request for the same key fails immediately
// with ErrRequestPending rather than queueing.
package session
