package vfs

import (
	"errors"
	"sync"
)

// MemFS is an in-memory FS, used by tests that want to build and inspect
// a table without touching disk.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memFile)}
}

type memFile struct {
	data []byte
}

func (fs *MemFS) Create(name string) (WritableFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := &memFile{}
	fs.files[name] = f
	return &memWritableFile{fs: fs, name: name}, nil
}

func (fs *MemFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[name]
	if !ok {
		return nil, errors.New("vfs: file not found: " + name)
	}
	return &memRandomAccessFile{data: f.data}, nil
}

type memWritableFile struct {
	fs     *MemFS
	name   string
	closed bool
}

func (wf *memWritableFile) Append(data []byte) error {
	wf.fs.mu.Lock()
	defer wf.fs.mu.Unlock()
	f := wf.fs.files[wf.name]
	f.data = append(f.data, data...)
	return nil
}

func (wf *memWritableFile) Sync() error {
	return nil
}

func (wf *memWritableFile) Close() error {
	wf.closed = true
	return nil
}

func (wf *memWritableFile) Size() (int64, error) {
	wf.fs.mu.Lock()
	defer wf.fs.mu.Unlock()
	return int64(len(wf.fs.files[wf.name].data)), nil
}

type memRandomAccessFile struct {
	data []byte
}

func (rf *memRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(rf.data)) {
		return 0, errors.New("vfs: read offset out of range")
	}
	n := copy(p, rf.data[off:])
	if n < len(p) {
		return n, errors.New("vfs: short read")
	}
	return n, nil
}

func (rf *memRandomAccessFile) Close() error {
	return nil
}

func (rf *memRandomAccessFile) Size() int64 {
	return int64(len(rf.data))
}
