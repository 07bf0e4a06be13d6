// Package resource provides identity and memory accounting shared by GPU
// resources.
package resource

import (
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	totalCPU atomic.Int64
	totalGPU atomic.Int64
)

// TotalCPUMemory is the CPU bytes reported by every live resource.
func TotalCPUMemory() int64 { return totalCPU.Load() }

// TotalGPUMemory is the GPU bytes reported by every live resource.
func TotalGPUMemory() int64 { return totalGPU.Load() }

// Base is embedded by resources. It is not safe for concurrent use; only the
// process totals are.
type Base struct {
	id        uuid.UUID
	name      string
	cpuMemory int64
	gpuMemory int64
	destroyed bool
}

// NewBase returns a base with a fresh random ID.
func NewBase(name string) Base {
	return Base{id: uuid.New(), name: name}
}

// ID returns the unique resource ID.
func (b *Base) ID() uuid.UUID { return b.id }

// Name returns the resource name.
func (b *Base) Name() string { return b.name }

// CPUMemory returns the CPU bytes accounted to the resource.
func (b *Base) CPUMemory() int64 { return b.cpuMemory }

// GPUMemory returns the GPU bytes accounted to the resource.
func (b *Base) GPUMemory() int64 { return b.gpuMemory }

// SetCPUMemory replaces the CPU byte count and adjusts the process total.
func (b *Base) SetCPUMemory(n int64) {
	totalCPU.Add(n - b.cpuMemory)
	b.cpuMemory = n
}

// SetGPUMemory replaces the GPU byte count and adjusts the process total.
func (b *Base) SetGPUMemory(n int64) {
	totalGPU.Add(n - b.gpuMemory)
	b.gpuMemory = n
}

// Destroyed reports whether MarkDestroyed was called.
func (b *Base) Destroyed() bool { return b.destroyed }

// MarkDestroyed zeroes the accounting and flags the resource as gone.
func (b *Base) MarkDestroyed() {
	b.SetCPUMemory(0)
	b.SetGPUMemory(0)
	b.destroyed = true
}
