// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devblok/korender/gfx"
)

// Uploader queues host data to be copied into device buffers
// before the current frame's draws.
type Uploader interface {
	// AddCopy queues src to be written at the start of dst and returns
	// the staging offset it was placed at.
	AddCopy(src []byte, dst gfx.Buffer) uint64

	// AddCopyAt is AddCopy with a destination offset.
	AddCopyAt(src []byte, dst gfx.Buffer, dstOffset uint64) uint64
}

type pendingCopy struct {
	dst       gfx.Buffer
	offset    uint64
	dstOffset uint64
	size      uint64
}

type stagingSlot struct {
	buffer  *Buffer
	cursor  uint64
	pending []pendingCopy
}

// Stager batches host to device copies for each frame slot. Every slot
// has its own persistently mapped staging buffer, reset only by NextFrame.
type Stager struct {
	drv      gfx.Driver
	slots    []stagingSlot
	current  int
	capacity uint64
	log      logrus.FieldLogger
}

var _ Uploader = (*Stager)(nil)

// NewStager allocates one staging buffer of capacity bytes per slot.
func NewStager(drv gfx.Driver, slots int, capacity uint64, log logrus.FieldLogger) (*Stager, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Stager{
		drv:      drv,
		slots:    make([]stagingSlot, slots),
		capacity: capacity,
		log:      log.WithField("component", "stager"),
	}
	for idx := range s.slots {
		buf, err := NewBuffer(drv, capacity, BufferStaging)
		if err != nil {
			s.Release()
			return nil, err
		}
		s.slots[idx].buffer = buf
		if err := buf.Map(); err != nil {
			s.Release()
			return nil, err
		}
	}
	return s, nil
}

// Capacity returns the staging capacity of one slot
func (s *Stager) Capacity() uint64 {
	return s.capacity
}

// Slot returns the slot copies are currently queued for
func (s *Stager) Slot() int {
	return s.current
}

// Cursor returns the write offset of the current slot
func (s *Stager) Cursor() uint64 {
	return s.slots[s.current].cursor
}

// Pending returns the number of queued copies of the current slot
func (s *Stager) Pending() int {
	return len(s.slots[s.current].pending)
}

// AddCopy implements Uploader
func (s *Stager) AddCopy(src []byte, dst gfx.Buffer) uint64 {
	return s.AddCopyAt(src, dst, 0)
}

// AddCopyAt implements Uploader. Running out of staging memory panics.
func (s *Stager) AddCopyAt(src []byte, dst gfx.Buffer, dstOffset uint64) uint64 {
	slot := &s.slots[s.current]
	size := uint64(len(src))
	offset := slot.cursor
	if offset+size > s.capacity {
		panic(fmt.Sprintf("staging overflow: %d bytes at offset %d exceed capacity %d", size, offset, s.capacity))
	}
	if size == 0 {
		return offset
	}
	if err := slot.buffer.From(src, offset); err != nil {
		panic(err)
	}
	slot.pending = append(slot.pending, pendingCopy{
		dst:       dst,
		offset:    offset,
		dstOffset: dstOffset,
		size:      size,
	})
	slot.cursor += size
	return offset
}

// Flush records every queued copy of the current slot into cb followed by
// a single barrier making the writes visible to later commands. The
// cursor is kept: the copied region stays in use until the slot's fence
// signals.
func (s *Stager) Flush(cb gfx.CommandBuffer) {
	slot := &s.slots[s.current]
	if len(slot.pending) == 0 {
		return
	}

	barriers := make([]gfx.BufferBarrier, 0, len(slot.pending))
	for _, p := range slot.pending {
		s.drv.CmdCopyBuffer(cb, slot.buffer.Handle(), p.dst, gfx.BufferCopy{
			SrcOffset: p.offset,
			DstOffset: p.dstOffset,
			Size:      p.size,
		})
		barriers = append(barriers, gfx.BufferBarrier{
			Buffer:    p.dst,
			SrcAccess: gfx.AccessTransferWrite,
			DstAccess: gfx.AccessMemoryRead | gfx.AccessMemoryWrite,
			Offset:    p.dstOffset,
			Size:      p.size,
		})
	}
	s.drv.CmdPipelineBarrier(cb, gfx.PipelineBarrier{
		SrcStage: gfx.StageTransfer,
		DstStage: gfx.StageAllCommands,
		Buffers:  barriers,
	})

	s.log.WithFields(logrus.Fields{
		"slot":   s.current,
		"copies": len(slot.pending),
		"bytes":  slot.cursor,
	}).Debug("staging flushed")
	slot.pending = slot.pending[:0]
}

// NextFrame makes slot current and resets its staging memory. It must
// only be called once the slot's fence has been observed signaled.
func (s *Stager) NextFrame(slot int) {
	if slot < 0 || slot >= len(s.slots) {
		panic(fmt.Sprintf("staging slot %d out of range [0, %d)", slot, len(s.slots)))
	}
	s.current = slot
	s.slots[slot].cursor = 0
	s.slots[slot].pending = s.slots[slot].pending[:0]
}

// Release implements gfx.Releasable
func (s *Stager) Release() {
	for idx := range s.slots {
		if s.slots[idx].buffer != nil {
			s.slots[idx].buffer.Release()
			s.slots[idx].buffer = nil
		}
	}
}
