// Package icomfort implements a client for the Lennox iComfort cloud
// messaging service used by the S30/E30 controller family.
//
// The client performs the two-step handshake (certificate exchange followed
// by credential login), discovers the account's systems and zones, subscribes
// to their data paths, and then runs a message pump that periodically drains
// queued property-change messages and merges them into an in-memory
// system/zone tree. Commands (mode, setpoints, fan) are published as writes
// to the zone's manual-mode schedule slot, mirroring the service's own write
// model.
//
// One Client manages exactly one account. Nothing is persisted; a restart
// re-authenticates and re-discovers from scratch.
package icomfort
