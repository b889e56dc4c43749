// Package terminalfeed implements the live log feed behind the gateway's
// server-sent-events terminal: a bounded ring buffer of recent lines,
// credential redaction at publish time, non-blocking fan-out to bounded
// subscriber queues, and an optional Redis pub/sub bus that merges the
// feeds of every gateway replica.
package terminalfeed
