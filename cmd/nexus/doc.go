// Command nexus runs the media-processing daemon and manages its archive.
//
// `nexus serve` runs the daemon in the foreground; `start` and `stop` manage
// a detached one. The remaining commands work directly against the
// configured store: submissions and syncs are written to the durable task
// queue and picked up by whichever daemon shares the database, so they do
// not require the daemon to be running.
package main
