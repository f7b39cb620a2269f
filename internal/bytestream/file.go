package bytestream

import (
	"os"

	"github.com/pkg/errors"
)

// fileSource adapts an *os.File to interfaces.ByteSource, the same
// open-and-stat-once shape the teacher's DMGDevice uses over a DMG file,
// generalized here to a plain volume image (spec §6 "default ByteSource").
type fileSource struct {
	file *os.File
	size uint64
}

// FromFile opens path read-only and wraps it as a ByteSource. The caller
// owns the returned file and must call Close when done with the volume.
func FromFile(path string) (*fileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "bytestream: opening %s", path)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "bytestream: stating %s", path)
	}
	return &fileSource{file: file, size: uint64(stat.Size())}, nil
}

func (f *fileSource) ReadAt(offset uint64, buf []byte) (int, error) {
	return f.file.ReadAt(buf, int64(offset))
}

func (f *fileSource) Size() (uint64, error) {
	return f.size, nil
}

// Close releases the underlying file handle.
func (f *fileSource) Close() error {
	return f.file.Close()
}
