package bytestream

import (
	"io"
	"sync"

	"github.com/xaionaro-go/bytesextra"

	"github.com/deploymenttheory/go-bde/internal/interfaces"
)

// memorySource adapts an in-memory byte slice to interfaces.ByteSource via
// bytesextra's io.ReadWriteSeeker, the same wrapper dargueta/disko's
// blockcache tests use to turn a []byte into a seekable stream. ReadAt is
// synthesized from Seek+Read since bytesextra's seeker doesn't itself
// implement io.ReaderAt, and concurrent reads on one ByteSource are
// disallowed anyway by spec §5 ("the caller must not issue overlapping
// read calls on the same handle").
type memorySource struct {
	mu   sync.Mutex
	rws  io.ReadWriteSeeker
	size uint64
}

// FromBytes wraps data as a read-only ByteSource, for tests and for
// callers handing BDE an in-memory image fragment rather than a file
// (spec §6 ByteSource consumer).
func FromBytes(data []byte) interfaces.ByteSource {
	return &memorySource{
		rws:  bytesextra.NewReadWriteSeeker(data),
		size: uint64(len(data)),
	}
}

func (m *memorySource) ReadAt(offset uint64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.rws.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(m.rws, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func (m *memorySource) Size() (uint64, error) {
	return m.size, nil
}
