package models

type ResourceKind string

const (
	ResourceCPU ResourceKind = "cpu"
	ResourceRAM ResourceKind = "ram"
	ResourceBW  ResourceKind = "bw"
)

// VM is a virtual machine in the autoscaler roster. HostID is nil until
// the datacenter places the VM.
type VM struct {
	ID       int     `json:"id"`
	PEs      int     `json:"pes"`
	MIPS     float64 `json:"mips"`
	RAM      float64 `json:"ram"`
	BW       float64 `json:"bw"`
	Size     float64 `json:"size"`
	CPUUtil  float64 `json:"cpu_util"`
	RAMUtil  float64 `json:"ram_util"`
	HostID   *int    `json:"host_id,omitempty"`
	Finished bool    `json:"finished"`
}

func (v *VM) Placed() bool {
	return v.HostID != nil
}

// Allocated reports whether the VM is placed and still running.
func (v *VM) Allocated() bool {
	return v.Placed() && !v.Finished
}

// Clone copies the capacity of v under a new id. Runtime state is reset.
func (v *VM) Clone(id int) *VM {
	return &VM{
		ID:   id,
		PEs:  v.PEs,
		MIPS: v.MIPS,
		RAM:  v.RAM,
		BW:   v.BW,
		Size: v.Size,
	}
}

// Host is a physical machine owned by the datacenter.
type Host struct {
	ID       int     `json:"id"`
	TotalPEs int     `json:"total_pes"`
	FreePEs  int     `json:"free_pes"`
	MIPS     float64 `json:"mips"`
	RAM      float64 `json:"ram"`
	FreeRAM  float64 `json:"free_ram"`
	BW       float64 `json:"bw"`
	Storage  float64 `json:"storage"`
}
