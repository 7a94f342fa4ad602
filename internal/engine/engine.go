// Package engine drives a burn station: the Correlator turns hotplug events
// into port bindings, the Session runs the wait-insert / burning /
// await-removal cycle, and the Station wires both to an event source.
//
// Files:
//   - correlator.go: hotplug event to port registry updates
//   - session.go: session state machine and worker scheduling
//   - worker.go: worker handles seen by the registry
//   - safegroup.go: panic-safe goroutine group
//   - factory.go: dependency construction
//   - station.go: top-level wiring
package engine
