package simulator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/internal/simulator"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

func smallDatacenter(hosts, pes int) *simulator.Datacenter {
	return simulator.NewDatacenter(hosts, simulator.HostSpec{PEs: pes, MIPS: 1000, RAM: 8192}, &simulator.SteadyPattern{Value: 0})
}

func vmWith(id, pes int) *models.VM {
	return &models.VM{ID: id, PEs: pes, MIPS: 1000, RAM: 2048}
}

func TestDatacenter_FirstFitPlacement(t *testing.T) {
	dc := smallDatacenter(2, 4)

	require.NoError(t, dc.SubmitVM(vmWith(0, 3)))
	require.NoError(t, dc.SubmitVM(vmWith(1, 2)))
	require.NoError(t, dc.SubmitVM(vmWith(2, 1)))

	hostOf := func(id int) int {
		vm, ok := dc.VM(id)
		require.True(t, ok)
		require.NotNil(t, vm.HostID)
		return *vm.HostID
	}
	assert.Equal(t, 0, hostOf(0))
	assert.Equal(t, 1, hostOf(1))
	assert.Equal(t, 0, hostOf(2))

	h0, _ := dc.Host(0)
	assert.Equal(t, 0, h0.FreePEs)
	h1, _ := dc.Host(1)
	assert.Equal(t, 2, h1.FreePEs)
}

func TestDatacenter_UnplaceableVMStaysPending(t *testing.T) {
	dc := smallDatacenter(1, 2)
	placed := 0
	dc.OnPlaced(func(models.VM) { placed++ })

	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))
	err := dc.SubmitVM(vmWith(1, 2))
	assert.ErrorIs(t, err, simulator.ErrNoCapacity)

	vm, ok := dc.VM(1)
	require.True(t, ok)
	assert.False(t, vm.Placed())
	assert.Empty(t, dc.RetryPending())
	assert.Equal(t, 1, placed)

	assert.Error(t, dc.SubmitVM(vmWith(0, 1)))
}

func TestDatacenter_GrowPEsBoundedByHost(t *testing.T) {
	dc := smallDatacenter(1, 4)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))

	require.NoError(t, dc.GrowPEs(0, 1))
	err := dc.GrowPEs(0, 2)
	assert.ErrorIs(t, err, simulator.ErrNoCapacity)

	vm, _ := dc.VM(0)
	assert.Equal(t, 3, vm.PEs)
	host, _ := dc.Host(0)
	assert.Equal(t, 1, host.FreePEs)

	assert.ErrorIs(t, dc.GrowPEs(9, 1), simulator.ErrVMNotFound)
}

func TestDatacenter_GrowRAM(t *testing.T) {
	dc := smallDatacenter(1, 4)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))

	require.NoError(t, dc.GrowRAM(0, 512))
	vm, _ := dc.VM(0)
	assert.Equal(t, 2560.0, vm.RAM)

	host, _ := dc.Host(0)
	assert.Equal(t, 8192.0-2560.0, host.FreeRAM)
	assert.ErrorIs(t, dc.GrowRAM(0, 1e6), simulator.ErrNoCapacity)
}

func TestDatacenter_ResizeUnplacedVM(t *testing.T) {
	dc := smallDatacenter(1, 1)
	_ = dc.SubmitVM(vmWith(0, 2))

	assert.ErrorIs(t, dc.GrowPEs(0, 1), simulator.ErrNotPlaced)
	assert.ErrorIs(t, dc.GrowRAM(0, 512), simulator.ErrNotPlaced)
}

func TestDatacenter_ResizeFinishedVM(t *testing.T) {
	dc := smallDatacenter(1, 8)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))
	dc.SubmitCloudlet(simulator.Cloudlet{ID: 0, Length: 2000, PEs: 2})

	for now := 0.0; now < 20 && !dc.AllFinished(); now++ {
		dc.Step(now, 1)
	}
	require.True(t, dc.AllFinished())

	host, _ := dc.Host(0)
	require.Equal(t, 8, host.FreePEs)

	assert.ErrorIs(t, dc.GrowPEs(0, 1), simulator.ErrVMFinished)
	assert.ErrorIs(t, dc.GrowRAM(0, 512), simulator.ErrVMFinished)

	vm, _ := dc.VM(0)
	assert.Equal(t, 2, vm.PEs)
	assert.Equal(t, 2048.0, vm.RAM)
	host, _ = dc.Host(0)
	assert.Equal(t, 8, host.FreePEs)
	assert.Equal(t, 8192.0, host.FreeRAM)
}

func TestDatacenter_ReturnsCopies(t *testing.T) {
	dc := smallDatacenter(1, 4)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))

	vm, _ := dc.VM(0)
	vm.PEs = 99
	again, _ := dc.VM(0)
	assert.Equal(t, 2, again.PEs)
}

func TestDatacenter_CloudletExecution(t *testing.T) {
	dc := smallDatacenter(1, 4)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))
	dc.SubmitCloudlet(simulator.Cloudlet{ID: 0, Length: 5000, PEs: 2})
	dc.SubmitCloudlet(simulator.Cloudlet{ID: 1, Length: 5000, PEs: 2, SubmitAt: 100})

	dc.Step(0, 1)
	vm, _ := dc.VM(0)
	assert.Equal(t, 0.6, vm.CPUUtil)
	assert.False(t, dc.AllFinished())

	dc.Step(1, 1)
	dc.Step(2, 1)
	assert.Equal(t, 1, dc.FinishedWorkloads())

	dc.Step(3, 1)
	vm, _ = dc.VM(0)
	assert.Equal(t, 0.0, vm.CPUUtil)

	for now := 100.0; now < 103; now++ {
		dc.Step(now, 1)
	}
	assert.True(t, dc.AllFinished())

	vm, _ = dc.VM(0)
	assert.True(t, vm.Finished)
	host, _ := dc.Host(0)
	assert.Equal(t, 4, host.FreePEs)
}

func TestDatacenter_SharesPEsBetweenCloudlets(t *testing.T) {
	dc := smallDatacenter(1, 4)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))
	dc.SubmitCloudlet(simulator.Cloudlet{ID: 0, Length: 2000, PEs: 2})
	dc.SubmitCloudlet(simulator.Cloudlet{ID: 1, Length: 2000, PEs: 2})

	dc.Step(0, 1)
	for _, c := range dc.Cloudlets() {
		assert.Equal(t, 1000.0, c.Done)
	}
	dc.Step(1, 1)
	assert.Equal(t, 2, dc.FinishedWorkloads())
}

func TestDatacenter_BindsToLeastLoadedVM(t *testing.T) {
	dc := smallDatacenter(1, 8)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))
	require.NoError(t, dc.SubmitVM(vmWith(1, 2)))
	for i := 0; i < 3; i++ {
		dc.SubmitCloudlet(simulator.Cloudlet{ID: i, Length: 1e6, PEs: 2})
	}

	dc.Step(0, 1)
	var bound []int
	for _, c := range dc.Cloudlets() {
		require.NotNil(t, c.VMID)
		bound = append(bound, *c.VMID)
	}
	assert.Equal(t, []int{0, 1, 0}, bound)
}

func TestDatacenter_RAMUtilizationDropsAfterGrowth(t *testing.T) {
	dc := smallDatacenter(1, 4)
	require.NoError(t, dc.SubmitVM(vmWith(0, 2)))
	dc.SubmitCloudlet(simulator.Cloudlet{ID: 0, Length: 1e6, PEs: 2})

	dc.Step(0, 1)
	before, _ := dc.VM(0)
	require.NoError(t, dc.GrowRAM(0, 2048))
	dc.Step(1, 1)
	after, _ := dc.VM(0)

	assert.InDelta(t, before.RAMUtil/2, after.RAMUtil, 1e-9)
}
