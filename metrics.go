package hv

import (
	"sync/atomic"
	"time"
)

// Performance metrics for monitoring hypervisor operations
var (
	// Operation counters
	vmCreateCount     atomic.Uint64
	vmDestroyCount    atomic.Uint64
	vcpuCreateCount   atomic.Uint64
	vcpuDestroyCount  atomic.Uint64
	spaceCreateCount  atomic.Uint64
	spaceDestroyCount atomic.Uint64
	mapOperations     atomic.Uint64
	unmapOperations   atomic.Uint64
	protectOperations atomic.Uint64
	registerOps       atomic.Uint64
	runOperations     atomic.Uint64
	forceExits        atomic.Uint64

	// Timing metrics (nanoseconds)
	totalVMCreateTime atomic.Uint64
	totalRunTime      atomic.Uint64

	// Error counters
	validationErrors atomic.Uint64
	resourceErrors   atomic.Uint64
)

// Metrics provides access to performance metrics
type Metrics struct {
	VMCreated         uint64 `json:"vm_created"`
	VMDestroyed       uint64 `json:"vm_destroyed"`
	VCPUCreated       uint64 `json:"vcpu_created"`
	VCPUDestroyed     uint64 `json:"vcpu_destroyed"`
	SpaceCreated      uint64 `json:"space_created"`
	SpaceDestroyed    uint64 `json:"space_destroyed"`
	MapOperations     uint64 `json:"map_operations"`
	UnmapOperations   uint64 `json:"unmap_operations"`
	ProtectOperations uint64 `json:"protect_operations"`
	RegisterOps       uint64 `json:"register_operations"`
	RunOperations     uint64 `json:"run_operations"`
	ForceExits        uint64 `json:"force_exits"`
	AvgVMCreateTimeNs uint64 `json:"avg_vm_create_time_ns"`
	AvgRunTimeNs      uint64 `json:"avg_run_time_ns"`
	ValidationErrors  uint64 `json:"validation_errors"`
	ResourceErrors    uint64 `json:"resource_errors"`
}

// GetMetrics returns current performance metrics
func GetMetrics() Metrics {
	vmCreated := vmCreateCount.Load()
	runOps := runOperations.Load()

	var avgVMCreate, avgRun uint64
	if vmCreated > 0 {
		avgVMCreate = totalVMCreateTime.Load() / vmCreated
	}
	if runOps > 0 {
		avgRun = totalRunTime.Load() / runOps
	}

	return Metrics{
		VMCreated:         vmCreated,
		VMDestroyed:       vmDestroyCount.Load(),
		VCPUCreated:       vcpuCreateCount.Load(),
		VCPUDestroyed:     vcpuDestroyCount.Load(),
		SpaceCreated:      spaceCreateCount.Load(),
		SpaceDestroyed:    spaceDestroyCount.Load(),
		MapOperations:     mapOperations.Load(),
		UnmapOperations:   unmapOperations.Load(),
		ProtectOperations: protectOperations.Load(),
		RegisterOps:       registerOps.Load(),
		RunOperations:     runOps,
		ForceExits:        forceExits.Load(),
		AvgVMCreateTimeNs: avgVMCreate,
		AvgRunTimeNs:      avgRun,
		ValidationErrors:  validationErrors.Load(),
		ResourceErrors:    resourceErrors.Load(),
	}
}

// ResetMetrics clears all performance metrics
func ResetMetrics() {
	for _, c := range []*atomic.Uint64{
		&vmCreateCount, &vmDestroyCount,
		&vcpuCreateCount, &vcpuDestroyCount,
		&spaceCreateCount, &spaceDestroyCount,
		&mapOperations, &unmapOperations, &protectOperations,
		&registerOps, &runOperations, &forceExits,
		&totalVMCreateTime, &totalRunTime,
		&validationErrors, &resourceErrors,
	} {
		c.Store(0)
	}
}

// Internal metric recording functions
func recordVMCreate(duration time.Duration) {
	vmCreateCount.Add(1)
	totalVMCreateTime.Add(uint64(duration.Nanoseconds()))
}

func recordVMDestroy()    { vmDestroyCount.Add(1) }
func recordVCPUCreate()   { vcpuCreateCount.Add(1) }
func recordVCPUDestroy()  { vcpuDestroyCount.Add(1) }
func recordSpaceCreate()  { spaceCreateCount.Add(1) }
func recordSpaceDestroy() { spaceDestroyCount.Add(1) }
func recordMapOperation() { mapOperations.Add(1) }

func recordUnmapOperation()   { unmapOperations.Add(1) }
func recordProtectOperation() { protectOperations.Add(1) }
func recordRegisterOp()       { registerOps.Add(1) }
func recordForceExit()        { forceExits.Add(1) }

func recordRun(duration time.Duration) {
	runOperations.Add(1)
	totalRunTime.Add(uint64(duration.Nanoseconds()))
}

func recordValidationError() { validationErrors.Add(1) }
func recordResourceError()   { resourceErrors.Add(1) }
