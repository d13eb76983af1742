// Package vfs is a small filesystem abstraction so the table builder and
// ssttool can run against either a real file or an in-memory one, the
// way tests want to substitute a fake without touching disk.
package vfs

import (
	"io"
	"os"
)

// FS creates and opens the files this module needs: a writable sink to
// build a table into, and random-access read-back to inspect one.
type FS interface {
	Create(name string) (WritableFile, error)
	OpenRandomAccess(name string) (RandomAccessFile, error)
}

// WritableFile is an append-only sink. Append and Sync are the only two
// operations the table builder calls through.
type WritableFile interface {
	io.Closer
	Append(data []byte) error
	Sync() error
	Size() (int64, error)
}

// RandomAccessFile supports reading an already-finished table file at
// arbitrary offsets, which is all ssttool and the test suite need.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// FileWriter adapts a WritableFile to io.Writer plus a Flush method, the
// shape sstable.Writer expects its sink to have.
type FileWriter struct {
	f WritableFile
}

// NewFileWriter wraps f for use as a sstable.Writer sink.
func NewFileWriter(f WritableFile) *FileWriter {
	return &FileWriter{f: f}
}

// Write implements io.Writer by appending p to the underlying file.
func (fw *FileWriter) Write(p []byte) (int, error) {
	if err := fw.f.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush syncs the underlying file to stable storage.
func (fw *FileWriter) Flush() error {
	return fw.f.Sync()
}

// Close closes the underlying file.
func (fw *FileWriter) Close() error {
	return fw.f.Close()
}

type osFS struct{}

// Default returns the real OS filesystem.
func Default() FS {
	return osFS{}
}

func (osFS) Create(name string) (WritableFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &osWritableFile{f: f}, nil
}

func (osFS) OpenRandomAccess(name string) (RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &osRandomAccessFile{f: f, size: info.Size()}, nil
}

type osWritableFile struct {
	f *os.File
}

func (wf *osWritableFile) Append(data []byte) error {
	_, err := wf.f.Write(data)
	return err
}

func (wf *osWritableFile) Sync() error {
	return wf.f.Sync()
}

func (wf *osWritableFile) Close() error {
	return wf.f.Close()
}

func (wf *osWritableFile) Size() (int64, error) {
	info, err := wf.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type osRandomAccessFile struct {
	f    *os.File
	size int64
}

func (rf *osRandomAccessFile) ReadAt(p []byte, off int64) (int, error) {
	return rf.f.ReadAt(p, off)
}

func (rf *osRandomAccessFile) Close() error {
	return rf.f.Close()
}

func (rf *osRandomAccessFile) Size() int64 {
	return rf.size
}
