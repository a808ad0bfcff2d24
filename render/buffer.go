// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"

	"github.com/devblok/korender/gfx"
)

// BufferKind selects usage flags and memory placement of a Buffer.
type BufferKind int

// Buffer kinds
const (
	// BufferStaging is host visible and a transfer source.
	BufferStaging BufferKind = iota
	BufferVertex
	BufferIndex
	// BufferGPU is a generic device local uniform or storage buffer.
	BufferGPU
	BufferIndirect
)

func (k BufferKind) String() string {
	switch k {
	case BufferStaging:
		return "staging"
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	case BufferGPU:
		return "gpu"
	case BufferIndirect:
		return "indirect"
	}
	return "unknown"
}

func (k BufferKind) desc(size uint64) gfx.BufferDesc {
	d := gfx.BufferDesc{Size: size, Dedicated: true}
	switch k {
	case BufferStaging:
		d.Usage = gfx.BufferUsageTransferSrc
		d.HostVisible = true
		d.Dedicated = false
	case BufferVertex:
		d.Usage = gfx.BufferUsageVertex | gfx.BufferUsageTransferDst
	case BufferIndex:
		d.Usage = gfx.BufferUsageIndex | gfx.BufferUsageTransferDst
	case BufferGPU:
		d.Usage = gfx.BufferUsageUniform | gfx.BufferUsageStorage |
			gfx.BufferUsageTransferDst | gfx.BufferUsageTransferSrc
	case BufferIndirect:
		d.Usage = gfx.BufferUsageIndirect | gfx.BufferUsageStorage | gfx.BufferUsageTransferDst
	}
	return d
}

// Buffer is a linear device allocation.
type Buffer struct {
	drv    gfx.Driver
	handle gfx.Buffer
	size   uint64
	kind   BufferKind
	mapped []byte
}

// NewBuffer creates a buffer of the given kind.
func NewBuffer(drv gfx.Driver, size uint64, kind BufferKind) (*Buffer, error) {
	h, err := drv.CreateBuffer(kind.desc(size))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s buffer", kind)
	}
	return &Buffer{
		drv:    drv,
		handle: h,
		size:   size,
		kind:   kind,
	}, nil
}

// Handle returns the driver handle of the buffer
func (b *Buffer) Handle() gfx.Buffer {
	return b.handle
}

// Size returns the size in bytes
func (b *Buffer) Size() uint64 {
	return b.size
}

// Kind returns the kind the buffer was created with
func (b *Buffer) Kind() BufferKind {
	return b.kind
}

// Mapped reports whether host writes are currently possible.
func (b *Buffer) Mapped() bool {
	return b.mapped != nil
}

// Map makes the buffer host writable. Mapping a mapped buffer does nothing.
func (b *Buffer) Map() error {
	if b.mapped != nil {
		return nil
	}
	data, err := b.drv.MapBuffer(b.handle)
	if err != nil {
		return errors.Wrapf(err, "map %s buffer", b.kind)
	}
	b.mapped = data
	return nil
}

// Unmap ends host access.
func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.drv.UnmapBuffer(b.handle)
	b.mapped = nil
}

// From writes src into the mapped buffer at offset.
func (b *Buffer) From(src []byte, offset uint64) error {
	if b.mapped == nil {
		return errors.WithStack(gfx.ErrUnmappedBuffer)
	}
	if offset+uint64(len(src)) > b.size {
		return errors.Errorf("write of %d bytes at %d overruns %d byte buffer", len(src), offset, b.size)
	}
	copy(b.mapped[offset:], src)
	return nil
}

// FromBuffer copies the whole of src into the buffer and waits for the copy.
func (b *Buffer) FromBuffer(src *Buffer) error {
	if src.size > b.size {
		return errors.Errorf("copy of %d bytes overruns %d byte buffer", src.size, b.size)
	}
	return OneShot(b.drv, func(cb gfx.CommandBuffer) error {
		b.drv.CmdCopyBuffer(cb, src.handle, b.handle, gfx.BufferCopy{Size: src.size})
		return nil
	})
}

// Release implements gfx.Releasable
func (b *Buffer) Release() {
	if b.handle == 0 {
		return
	}
	b.Unmap()
	b.drv.DestroyBuffer(b.handle)
	b.handle = 0
}

// Upload creates a device local buffer holding data, going through a
// temporary staging buffer.
func Upload(drv gfx.Driver, data []byte, kind BufferKind) (*Buffer, error) {
	staging, err := NewBuffer(drv, uint64(len(data)), BufferStaging)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	if err := staging.Map(); err != nil {
		return nil, err
	}
	if err := staging.From(data, 0); err != nil {
		return nil, err
	}
	staging.Unmap()

	dst, err := NewBuffer(drv, uint64(len(data)), kind)
	if err != nil {
		return nil, err
	}
	if err := dst.FromBuffer(staging); err != nil {
		dst.Release()
		return nil, err
	}
	return dst, nil
}
