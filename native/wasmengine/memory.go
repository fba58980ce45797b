package wasmengine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// maxArgs bounds argument list walks over guest memory.
const maxArgs = 256

// guestMemory wraps the guest's linear memory.
type guestMemory struct {
	mem api.Memory
}

func (m *guestMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *guestMemory) ReadU16(offset uint32) (uint16, error) {
	data, err := m.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return uint16(data[0]) | uint16(data[1])<<8, nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", offset)
	}
	return val, nil
}

func (m *guestMemory) WriteU32(offset, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d", offset)
	}
	return nil
}

// String copies a guest string. A null pointer yields "".
func (m *guestMemory) String(ptr, length uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	data, err := m.Read(ptr, length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ArgList decodes a terminated array of {name_ptr, name_len, codec_ptr,
// codec_len} entries.
func (m *guestMemory) ArgList(ptr uint32) (names, codecs []string, err error) {
	if ptr == 0 {
		return nil, nil, nil
	}
	for i := uint32(0); i < maxArgs; i++ {
		entry := ptr + i*16
		namePtr, err := m.ReadU32(entry)
		if err != nil {
			return nil, nil, err
		}
		if namePtr == 0 {
			return names, codecs, nil
		}
		var fields [3]uint32
		for j := range fields {
			if fields[j], err = m.ReadU32(entry + 4 + uint32(j)*4); err != nil {
				return nil, nil, err
			}
		}
		name, err := m.String(namePtr, fields[0])
		if err != nil {
			return nil, nil, err
		}
		codec, err := m.String(fields[1], fields[2])
		if err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		codecs = append(codecs, codec)
	}
	return nil, nil, fmt.Errorf("argument list at %d exceeds %d entries", ptr, maxArgs)
}

// allocator hands out guest memory for staged buffers. A zero size yields
// pointer 0.
type allocator interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32)
}

// guestAllocator allocates through the guest's fibre_malloc/fibre_free.
type guestAllocator struct {
	allocFn api.Function
	freeFn  api.Function
}

func (a *guestAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	res, err := a.allocFn.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, err
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return 0, fmt.Errorf("guest allocation of %d bytes failed", size)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ctx context.Context, ptr uint32) {
	if ptr == 0 {
		return
	}
	if _, err := a.freeFn.Call(ctx, api.EncodeU32(ptr)); err != nil {
		Logger().Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}
