package state

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// LoadImage maps path into memory read-only and copies it into a freshly
// mapped RAM segment at base, rounding the segment size up to the map's
// page size. The file is read through a memory mapping instead of a plain
// os.ReadFile, so large images aren't fully duplicated
// on the Go heap before being copied into the RAM segment — grounded on
// how go-interpreter-wagon and saferwall-pe both mmap the module/binary
// bytes they decode rather than slurping them eagerly.
func LoadImage(m *MemoryMap, base uint64, path string) (*RAMSegment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("state: opening image %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("state: stat image %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("state: image %s is empty", path)
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("state: mmap image %s: %w", path, err)
	}
	defer mapped.Unmap()

	page := m.PageSize()
	size := (uint64(len(mapped)) + page - 1) / page * page
	seg, err := m.MapRAM(base, size)
	if err != nil {
		return nil, err
	}
	copy(seg.Bytes, mapped)
	return seg, nil
}
