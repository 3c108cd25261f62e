// Package supervisor keeps RTSP to HLS transcoding jobs alive.
//
// Every job is identified by a StreamKey (project + "-" + id). Start and
// StartCombined are idempotent per key; Stop marks a key as manually
// stopped so that neither automatic reconnects nor plain starts revive it
// until Resume is called. A job that fails, exits, or reports a fatal
// diagnostic is restarted after a per-key delay that doubles from 1s up
// to 10s and drops back to 1s once the engine opens its output again.
//
// All state lives in a Registry guarded by the Supervisor's mutex. Each
// running process has one goroutine draining its events; events from a
// process that has since been replaced are ignored.
package supervisor
