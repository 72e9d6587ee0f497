package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a named blob handed to EncodeFile and the batch queue.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// BytesFile is an in-memory File.
type BytesFile struct {
	FileName string
	Data     []byte
}

// NewBytesFile wraps data as a File called name.
func NewBytesFile(name string, data []byte) *BytesFile {
	return &BytesFile{FileName: name, Data: data}
}

func (f *BytesFile) Name() string { return f.FileName }

func (f *BytesFile) Size() int64 { return int64(len(f.Data)) }

func (f *BytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// DiskFile is a File backed by a path on disk. Its size is captured when it is
// opened with OpenFile.
type DiskFile struct {
	path string
	size int64
}

// OpenFile stats path and returns it as a File.
func OpenFile(path string) (*DiskFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &DiskFile{path: path, size: info.Size()}, nil
}

func (f *DiskFile) Name() string { return filepath.Base(f.path) }

func (f *DiskFile) Size() int64 { return f.size }

func (f *DiskFile) Path() string { return f.path }

func (f *DiskFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

func readAll(f File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return data, nil
}
