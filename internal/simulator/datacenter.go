package simulator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/OldStager01/vm-autoscaler/internal/logger"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

var (
	ErrNoCapacity = errors.New("no host has enough free capacity")
	ErrVMNotFound = errors.New("vm not found")
	ErrNotPlaced  = errors.New("vm is not placed on a host")
	ErrVMFinished = errors.New("vm has finished")
)

// Cloudlet is one unit of workload, measured in million instructions.
type Cloudlet struct {
	ID       int     `json:"id"`
	VMID     *int    `json:"vm_id,omitempty"`
	Length   float64 `json:"length"`
	PEs      int     `json:"pes"`
	SubmitAt float64 `json:"submit_at"`
	Done     float64 `json:"done"`
	Finished bool    `json:"finished"`
}

type vmState struct {
	vm      *models.VM
	baseRAM float64
}

// Datacenter keeps hosts, VMs and cloudlets. Placement is first fit on free
// PEs and RAM. All exported methods are safe for concurrent use and return
// copies.
type Datacenter struct {
	hosts     []*models.Host
	vms       map[int]*vmState
	order     []int
	pending   []int
	cloudlets []*Cloudlet
	finished  int
	pattern   Pattern
	onPlaced  func(vm models.VM)
	mu        sync.RWMutex
}

type HostSpec struct {
	PEs     int
	MIPS    float64
	RAM     float64
	BW      float64
	Storage float64
}

func NewDatacenter(hosts int, spec HostSpec, pattern Pattern) *Datacenter {
	if pattern == nil {
		pattern = &SteadyPattern{Value: 0.4}
	}
	dc := &Datacenter{
		vms:     make(map[int]*vmState),
		pattern: pattern,
	}
	for i := 0; i < hosts; i++ {
		dc.hosts = append(dc.hosts, &models.Host{
			ID:       i,
			TotalPEs: spec.PEs,
			FreePEs:  spec.PEs,
			MIPS:     spec.MIPS,
			RAM:      spec.RAM,
			FreeRAM:  spec.RAM,
			BW:       spec.BW,
			Storage:  spec.Storage,
		})
	}
	return dc
}

// OnPlaced registers a callback run after a VM lands on a host.
func (d *Datacenter) OnPlaced(fn func(vm models.VM)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPlaced = fn
}

// SubmitVM tracks vm and tries to place it. On ErrNoCapacity the VM stays
// pending and placement is retried by RetryPending.
func (d *Datacenter) SubmitVM(vm *models.VM) error {
	d.mu.Lock()
	if _, exists := d.vms[vm.ID]; exists {
		d.mu.Unlock()
		return fmt.Errorf("vm %d already submitted", vm.ID)
	}
	cp := *vm
	d.vms[vm.ID] = &vmState{vm: &cp, baseRAM: cp.RAM}
	d.order = append(d.order, vm.ID)

	placed, err := d.placeLocked(&cp)
	if err != nil {
		d.pending = append(d.pending, vm.ID)
	}
	callback := d.onPlaced
	d.mu.Unlock()

	if placed && callback != nil {
		callback(cp)
	}
	return err
}

func (d *Datacenter) placeLocked(vm *models.VM) (bool, error) {
	for _, host := range d.hosts {
		if host.FreePEs >= vm.PEs && host.FreeRAM >= vm.RAM {
			host.FreePEs -= vm.PEs
			host.FreeRAM -= vm.RAM
			hostID := host.ID
			vm.HostID = &hostID
			logger.WithVM(vm.ID).Infof("Placed on host %d (free PEs %d)", hostID, host.FreePEs)
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: vm %d needs %d PEs and %.0f RAM", ErrNoCapacity, vm.ID, vm.PEs, vm.RAM)
}

// RetryPending places waiting VMs that now fit and returns their ids.
func (d *Datacenter) RetryPending() []int {
	d.mu.Lock()
	var placed []models.VM
	remaining := d.pending[:0]
	for _, id := range d.pending {
		state := d.vms[id]
		if ok, _ := d.placeLocked(state.vm); ok {
			placed = append(placed, *state.vm)
			continue
		}
		remaining = append(remaining, id)
	}
	d.pending = remaining
	callback := d.onPlaced
	d.mu.Unlock()

	ids := make([]int, 0, len(placed))
	for _, vm := range placed {
		ids = append(ids, vm.ID)
		if callback != nil {
			callback(vm)
		}
	}
	return ids
}

func (d *Datacenter) placedLocked(vmID int) (*models.VM, *models.Host, error) {
	state, ok := d.vms[vmID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrVMNotFound, vmID)
	}
	if state.vm.HostID == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrNotPlaced, vmID)
	}
	// A finished VM has already returned its PEs and RAM to the host.
	if state.vm.Finished {
		return nil, nil, fmt.Errorf("%w: %d", ErrVMFinished, vmID)
	}
	return state.vm, d.hosts[*state.vm.HostID], nil
}

func (d *Datacenter) GrowPEs(vmID int, delta int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	vm, host, err := d.placedLocked(vmID)
	if err != nil {
		return err
	}
	if delta <= 0 {
		return nil
	}
	if host.FreePEs < delta {
		return fmt.Errorf("%w: host %d has %d free PEs, %d requested", ErrNoCapacity, host.ID, host.FreePEs, delta)
	}
	host.FreePEs -= delta
	vm.PEs += delta
	return nil
}

func (d *Datacenter) GrowRAM(vmID int, delta float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	vm, host, err := d.placedLocked(vmID)
	if err != nil {
		return err
	}
	if delta <= 0 {
		return nil
	}
	if host.FreeRAM < delta {
		return fmt.Errorf("%w: host %d has %.0f free RAM, %.0f requested", ErrNoCapacity, host.ID, host.FreeRAM, delta)
	}
	host.FreeRAM -= delta
	vm.RAM += delta
	return nil
}

func (d *Datacenter) Host(id int) (*models.Host, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id < 0 || id >= len(d.hosts) {
		return nil, false
	}
	cp := *d.hosts[id]
	return &cp, true
}

func (d *Datacenter) Hosts() []models.Host {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Host, 0, len(d.hosts))
	for _, h := range d.hosts {
		out = append(out, *h)
	}
	return out
}

func (d *Datacenter) VM(id int) (*models.VM, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	state, ok := d.vms[id]
	if !ok {
		return nil, false
	}
	cp := *state.vm
	return &cp, true
}

// VMs returns all VMs in submission order.
func (d *Datacenter) VMs() []models.VM {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.VM, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.vms[id].vm)
	}
	return out
}

func (d *Datacenter) FinishedWorkloads() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.finished
}

// SubmitCloudlet queues work that becomes runnable at c.SubmitAt.
func (d *Datacenter) SubmitCloudlet(c Cloudlet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := c
	d.cloudlets = append(d.cloudlets, &cp)
}

func (d *Datacenter) Cloudlets() []Cloudlet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Cloudlet, 0, len(d.cloudlets))
	for _, c := range d.cloudlets {
		out = append(out, *c)
	}
	return out
}

// AllFinished reports whether every submitted cloudlet has completed.
func (d *Datacenter) AllFinished() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cloudlets) > 0 && d.finished == len(d.cloudlets)
}

// Step advances execution from now to now+dt and refreshes utilization.
func (d *Datacenter) Step(now, dt float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindArrivedLocked(now)

	running := make(map[int][]*Cloudlet)
	for _, c := range d.cloudlets {
		if c.Finished || c.VMID == nil {
			continue
		}
		running[*c.VMID] = append(running[*c.VMID], c)
	}

	for _, id := range d.order {
		state := d.vms[id]
		vm := state.vm
		if !vm.Allocated() {
			continue
		}

		jobs := running[id]
		demand := 0
		for _, c := range jobs {
			demand += c.PEs
		}
		share := 1.0
		if demand > vm.PEs {
			share = float64(vm.PEs) / float64(demand)
		}
		for _, c := range jobs {
			c.Done += vm.MIPS * float64(c.PEs) * share * dt
			if c.Done >= c.Length {
				c.Done = c.Length
				c.Finished = true
				d.finished++
			}
		}

		load := 0.0
		if vm.PEs > 0 {
			load = math.Min(1, float64(demand)/float64(vm.PEs))
		}
		background := d.pattern.Level(now, id)
		vm.CPUUtil = models.Clamp01(0.6*load + 0.4*background)
		ramUtil := 0.3 + 0.6*vm.CPUUtil
		if vm.RAM > 0 {
			ramUtil *= state.baseRAM / vm.RAM
		}
		vm.RAMUtil = models.Clamp01(ramUtil)
	}

	if len(d.cloudlets) > 0 && d.finished == len(d.cloudlets) {
		d.finishVMsLocked()
	}
}

// bindArrivedLocked assigns arrived, unbound cloudlets to the allocated VM
// with the fewest running PEs; ties go to the lowest id.
func (d *Datacenter) bindArrivedLocked(now float64) {
	var candidates []int
	for _, id := range d.order {
		if d.vms[id].vm.Allocated() {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return
	}

	load := make(map[int]int, len(candidates))
	for _, c := range d.cloudlets {
		if !c.Finished && c.VMID != nil {
			load[*c.VMID] += c.PEs
		}
	}

	for _, c := range d.cloudlets {
		if c.VMID != nil || c.Finished || c.SubmitAt > now {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			li, lj := load[candidates[i]], load[candidates[j]]
			if li != lj {
				return li < lj
			}
			return candidates[i] < candidates[j]
		})
		vmID := candidates[0]
		c.VMID = &vmID
		load[vmID] += c.PEs
	}
}

func (d *Datacenter) finishVMsLocked() {
	for _, id := range d.order {
		vm := d.vms[id].vm
		if vm.Finished {
			continue
		}
		vm.Finished = true
		vm.CPUUtil = 0
		vm.RAMUtil = 0
		if vm.HostID != nil {
			host := d.hosts[*vm.HostID]
			host.FreePEs += vm.PEs
			host.FreeRAM += vm.RAM
		}
	}
}
