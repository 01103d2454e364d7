// Package backend describes one worker of the pool: its sequential id, the
// local port derived from it, the handle of the process serving that port,
// and the number of requests currently relayed to it.
package backend
