// Package state owns the station's shared mutable state: the ports, their
// mounts and statuses, and the session phase. Every read and write goes
// through the Registry's single lock, which is never held across I/O.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pyromaniac/pyromaniac/pkg/logger"
	"github.com/pyromaniac/pyromaniac/pkg/types"
)

// WorkerHandle is the registry's view of a running provisioning worker
type WorkerHandle interface {
	ID() string
	Device() string
	Exited() bool
}

// Port is a copy of one port's state
type Port struct {
	Name     string
	PhysPath string
	Mount    string
	Status   string
	WorkerID string
	Busy     bool
}

type port struct {
	name     string
	physPath string
	mount    string
	status   string
	worker   WorkerHandle
}

func (p *port) view() Port {
	v := Port{
		Name:     p.name,
		PhysPath: p.physPath,
		Mount:    p.mount,
		Status:   p.status,
	}
	if p.worker != nil {
		v.WorkerID = p.worker.ID()
		v.Busy = !p.worker.Exited()
	}
	return v
}

// Snapshot is a consistent copy of everything the presentation layer shows
type Snapshot struct {
	Phase     types.Phase
	Prompt    string
	Ports     []Port
	LastEvent string
	Alert     string
}

// Registry is the single gateway to shared station state
type Registry struct {
	mu        sync.Mutex
	ports     map[string]*port
	byPhys    map[string]string
	order     []string
	phase     types.Phase
	prompt    string
	lastEvent string
	alert     string
	logger    logger.Logger
}

// NewRegistry builds the registry from the static name -> physical path map.
// Every port starts unmounted, showing the insert prompt.
func NewRegistry(portMap map[string]string, log logger.Logger) (*Registry, error) {
	r := &Registry{
		ports:  make(map[string]*port, len(portMap)),
		byPhys: make(map[string]string, len(portMap)),
		phase:  types.PhaseWaitInsert,
		prompt: types.PromptWaitInsert,
		logger: log,
	}

	for name, phys := range portMap {
		if other, dup := r.byPhys[phys]; dup {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicatePhysicalPath, phys, other, name)
		}
		r.ports[name] = &port{
			name:     name,
			physPath: phys,
			mount:    types.MountNone,
			status:   types.StatusInsert,
		}
		r.byPhys[phys] = name
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)

	return r, nil
}

// Get returns a copy of the named port
func (r *Registry) Get(name string) (Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.ports[name]
	if !ok {
		return Port{}, false
	}
	return p.view(), true
}

// SetStatus replaces a port's status line
func (r *Registry) SetStatus(name, text string) error {
	return r.Update(func(tx *Tx) error {
		return tx.SetStatus(name, text)
	})
}

// SetMount sets the mount value of the port at a physical path
func (r *Registry) SetMount(physPath, value string) error {
	return r.Update(func(tx *Tx) error {
		return tx.SetMount(physPath, value)
	})
}

// AllPorts returns copies of every port, sorted by name
func (r *Registry) AllPorts() []Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portsLocked()
}

// PortForPhys returns the port name owning a physical path
func (r *Registry) PortForPhys(physPath string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.byPhys[physPath]
	return name, ok
}

// Phase returns the current session phase
func (r *Registry) Phase() types.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Prompt returns the operator prompt
func (r *Registry) Prompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompt
}

// SetPrompt replaces the operator prompt
func (r *Registry) SetPrompt(prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompt = prompt
}

// SetAlert sets the operator alert line
func (r *Registry) SetAlert(alert string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alert = alert
}

// SetLastEvent records the last hotplug event seen
func (r *Registry) SetLastEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastEvent = event
}

// Snapshot returns a consistent copy of the whole registry
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		Phase:     r.phase,
		Prompt:    r.prompt,
		Ports:     r.portsLocked(),
		LastEvent: r.lastEvent,
		Alert:     r.alert,
	}
}

// Update runs fn with the lock held. fn must not block and should validate
// before mutating: changes made before an error are not rolled back.
func (r *Registry) Update(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&Tx{r: r})
}

// BindWorker attaches a worker to a port. A device path can be owned by at
// most one live worker.
func (r *Registry) BindWorker(name string, w WorkerHandle) error {
	return r.Update(func(tx *Tx) error {
		return tx.BindWorker(name, w)
	})
}

// ReportStatus sets a port's status on behalf of a worker. The write is
// dropped, and false returned, once the worker has been detached from the port.
func (r *Registry) ReportStatus(name, workerID, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.ports[name]
	if !ok || p.worker == nil || p.worker.ID() != workerID {
		return false
	}
	p.status = text
	return true
}

func (r *Registry) portsLocked() []Port {
	out := make([]Port, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ports[name].view())
	}
	return out
}

// Tx is the view of the registry handed to Update callbacks
type Tx struct {
	r *Registry
}

// Phase returns the current session phase
func (tx *Tx) Phase() types.Phase { return tx.r.phase }

// SetPhase changes the session phase
func (tx *Tx) SetPhase(p types.Phase) {
	if tx.r.phase != p {
		tx.r.logger.Debug("Phase change",
			logger.WithField("from", tx.r.phase),
			logger.WithField("to", p))
	}
	tx.r.phase = p
}

// SetPrompt replaces the operator prompt
func (tx *Tx) SetPrompt(prompt string) { tx.r.prompt = prompt }

// SetAlert sets the operator alert line
func (tx *Tx) SetAlert(alert string) { tx.r.alert = alert }

// SetLastEvent records the last hotplug event seen
func (tx *Tx) SetLastEvent(event string) { tx.r.lastEvent = event }

// Ports returns copies of every port, sorted by name
func (tx *Tx) Ports() []Port { return tx.r.portsLocked() }

// PortName returns the port owning a physical path
func (tx *Tx) PortName(physPath string) (string, bool) {
	name, ok := tx.r.byPhys[physPath]
	return name, ok
}

// Mount returns the mount value for a physical path
func (tx *Tx) Mount(physPath string) (string, bool) {
	name, ok := tx.r.byPhys[physPath]
	if !ok {
		return "", false
	}
	return tx.r.ports[name].mount, true
}

// SetMount sets the mount value for a physical path
func (tx *Tx) SetMount(physPath, value string) error {
	name, ok := tx.r.byPhys[physPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhysicalPath, physPath)
	}
	tx.r.ports[name].mount = value
	return nil
}

// SetStatus replaces a port's status line
func (tx *Tx) SetStatus(name, text string) error {
	p, ok := tx.r.ports[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPort, name)
	}
	p.status = text
	return nil
}

// PendingPhys returns the physical paths of every pending port, sorted by port name
func (tx *Tx) PendingPhys() []string {
	var out []string
	for _, name := range tx.r.order {
		if p := tx.r.ports[name]; p.mount == types.MountPending {
			out = append(out, p.physPath)
		}
	}
	return out
}

// DetachWorker forgets a port's worker; later reports from it are dropped
func (tx *Tx) DetachWorker(name string) {
	if p, ok := tx.r.ports[name]; ok && p.worker != nil {
		tx.r.logger.Debug("Worker detached",
			logger.WithField("port", name),
			logger.WithField("worker_id", p.worker.ID()))
		p.worker = nil
	}
}

// BindWorker attaches a worker to a port, refusing a device path already
// owned by another live worker
func (tx *Tx) BindWorker(name string, w WorkerHandle) error {
	p, ok := tx.r.ports[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPort, name)
	}

	for _, other := range tx.r.ports {
		if other.worker == nil || other.worker.Exited() || !types.IsDevicePath(w.Device()) {
			continue
		}
		if other.worker.Device() == w.Device() {
			return fmt.Errorf("%w: %s (port %s)", ErrDeviceBusy, w.Device(), other.name)
		}
	}

	p.worker = w
	return nil
}
