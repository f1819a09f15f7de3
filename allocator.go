// Package kalloc allocates page-sized physical frames to the kernel and to
// processes, and records who owns each frame.
package kalloc

import (
	"io"
	"log/slog"
	"math/bits"
	"sync/atomic"

	"github.com/QuangTung97/kalloc/frame"
	"github.com/QuangTung97/kalloc/physmem"
	"github.com/QuangTung97/kalloc/placement"
	"github.com/QuangTung97/kalloc/spinlock"
)

// Addr ...
type Addr = frame.Addr

// Owner ...
type Owner = frame.Owner

const (
	// OwnerFree ...
	OwnerFree = frame.OwnerFree
	// OwnerKernel ...
	OwnerKernel = frame.OwnerKernel
)

const (
	// DefaultFrameSize ...
	DefaultFrameSize = 4096
	// DefaultMaxFrames ...
	DefaultMaxFrames = 16384

	// JunkByte is written over every byte of a frame when it is freed.
	JunkByte byte = 0x01
)

// Memory gives access to the contents of physical frames.
type Memory interface {
	Bytes(addr Addr, n uint64) []byte
}

var _ Memory = (*physmem.Memory)(nil)

// Config ...
type Config struct {
	// FrameSize must be a power of two. Default 4096.
	FrameSize uint64
	// MaxFrames is the capacity of the frame table. Default 16384.
	MaxFrames int

	// KernelEnd is the first address after the kernel image. Nothing below
	// it is ever registered or freed.
	KernelEnd Addr
	// PhysTop is the first address past usable physical memory.
	PhysTop Addr

	// Policy defaults to placement.ClusterByOwner.
	Policy placement.Policy

	// Logger defaults to discarding everything.
	Logger *slog.Logger
}

func allocatorValidateConfig(conf Config) {
	if conf.FrameSize == 0 || conf.FrameSize&(conf.FrameSize-1) != 0 {
		panic("FrameSize must be a power of two")
	}
	if conf.MaxFrames <= 0 {
		panic("MaxFrames must > 0")
	}
	if conf.PhysTop <= conf.KernelEnd {
		panic("PhysTop must > KernelEnd")
	}
}

func withDefaults(conf Config) Config {
	if conf.FrameSize == 0 {
		conf.FrameSize = DefaultFrameSize
	}
	if conf.MaxFrames == 0 {
		conf.MaxFrames = DefaultMaxFrames
	}
	if conf.Policy == nil {
		conf.Policy = placement.ClusterByOwner{}
	}
	if conf.Logger == nil {
		conf.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return conf
}

type bootPhase uint8

const (
	phaseNew bootPhase = iota
	phaseEarly
	phaseReady
)

// Allocator hands out frames of physical memory. It is built in two steps,
// InitPhase1 then InitPhase2; only after the second one is it safe for
// concurrent use.
type Allocator struct {
	mu      spinlock.Lock
	useLock atomic.Bool
	phase   bootPhase

	table  *frame.Table
	free   *frame.FreeList
	policy placement.Policy
	mem    Memory

	frameSize  uint64
	frameShift uint
	kernelEnd  Addr
	physTop    Addr
	dropped    int

	logger *slog.Logger
}

// New ...
func New(conf Config, mem Memory) *Allocator {
	conf = withDefaults(conf)
	allocatorValidateConfig(conf)
	if mem == nil {
		panic("Memory must not be nil")
	}

	return &Allocator{
		table:  frame.NewTable(conf.MaxFrames),
		free:   frame.NewFreeList(conf.MaxFrames),
		policy: conf.Policy,
		mem:    mem,

		frameSize:  conf.FrameSize,
		frameShift: uint(bits.TrailingZeros64(conf.FrameSize)),
		kernelEnd:  conf.KernelEnd,
		physTop:    conf.PhysTop,

		logger: conf.Logger.With("component", "kalloc"),
	}
}

func (a *Allocator) acquire() {
	if a.useLock.Load() {
		a.mu.Lock()
	}
}

func (a *Allocator) release() {
	if a.useLock.Load() {
		a.mu.Unlock()
	}
}

func (a *Allocator) violate(op string, addr Addr, reason string) {
	v := &Violation{Op: op, Addr: addr, Reason: reason}
	a.logger.Error("contract violation", "op", op, "addr", addr, "reason", reason)
	panic(v)
}

// FrameSize ...
func (a *Allocator) FrameSize() uint64 {
	return a.frameSize
}

// Policy ...
func (a *Allocator) Policy() placement.Policy {
	return a.policy
}

// Allocate takes a free frame for owner, which is a process id or
// OwnerKernel. It returns ErrNoFrame when the placement policy finds no
// frame. Before InitPhase2 the most recently registered free frame is used
// regardless of the policy.
func (a *Allocator) Allocate(owner Owner) (Addr, error) {
	if !owner.Valid() {
		a.violate("allocate", 0, "invalid owner "+owner.String())
	}

	a.acquire()
	defer a.release()

	var i uint32
	var ok bool
	if a.phase == phaseReady {
		i, ok = a.policy.Select(a.table, a.free, owner)
	} else {
		i, ok = a.free.Head()
	}
	if !ok {
		a.logger.Debug("out of frames", "owner", owner, "policy", a.policy.Name())
		return 0, ErrNoFrame
	}

	a.free.Remove(i)
	a.table.SetOwner(i, owner)
	return a.table.At(i).Addr, nil
}

func (a *Allocator) checkAddr(op string, addr Addr) {
	switch {
	case uint64(addr)&(a.frameSize-1) != 0:
		a.violate(op, addr, "misaligned address")
	case addr < a.kernelEnd:
		a.violate(op, addr, "address below kernel end")
	case addr >= a.physTop:
		a.violate(op, addr, "address above physical top")
	}
}

// lookupOwned returns the slot of a live frame. Must be called with the lock
// held.
func (a *Allocator) lookupOwned(op string, addr Addr) uint32 {
	i, ok := a.table.Lookup(addr)
	if !ok {
		a.violate(op, addr, "frame not registered")
	}
	if a.table.At(i).Owner == OwnerFree {
		a.violate(op, addr, "frame already free")
	}
	return i
}

// Free returns the frame at addr to the allocator and overwrites its
// contents with JunkByte. Misaligned, out of range, unregistered and already
// free addresses panic with a *Violation.
func (a *Allocator) Free(addr Addr) {
	a.checkAddr("free", addr)

	a.acquire()
	defer a.release()

	i := a.lookupOwned("free", addr)
	physmem.Fill(a.mem.Bytes(addr, a.frameSize), JunkByte)

	a.table.SetOwner(i, OwnerFree)
	a.free.Push(i)
}

// SetOwner bills the live frame at addr to owner, typically moving a frame
// allocated as OwnerKernel to the process it was allocated for.
func (a *Allocator) SetOwner(addr Addr, owner Owner) {
	a.checkAddr("set owner", addr)
	if !owner.Valid() {
		a.violate("set owner", addr, "invalid owner "+owner.String())
	}

	a.acquire()
	defer a.release()

	i := a.lookupOwned("set owner", addr)
	a.table.SetOwner(i, owner)
}

// Frame returns the contents of the frame at addr. The caller must own it.
func (a *Allocator) Frame(addr Addr) []byte {
	a.checkAddr("frame", addr)
	return a.mem.Bytes(addr, a.frameSize)
}
