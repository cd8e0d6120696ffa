// Package fs is the raw file-system layer under the model store.
//
// The main types are:
//   - [FS]: interface for the file operations the store needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] and atomic replace
//   - [Faulty]: testing implementation that injects failures at failpoints
//   - [Lock]: advisory single-writer lock on a directory
//
// The layer offers ordinary create/read/write/rename/delete/list semantics.
// Nothing here is transactional; the only atomic primitive is
// [FS.WriteFileAtomic], which replaces a file through rename.
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.Open("/flash/eeprom.dir/model-0.bin")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fs

import (
	"io"
	"os"
)

// File represents an open file.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
//
// Like [os.File], implementations return an error from Write when the file
// wasn't opened for writing.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used by [Lock] for flock.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations used by the store.
//
// Implementations in this package include:
//   - [Real]: production use, wraps [os] package
//   - [Faulty]: testing use, injects failures
//
// All methods except WriteFileAtomic mirror their [os] package equivalents.
// Paths use OS semantics (like the os package and path/filepath).
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// Create creates or truncates a file for writing. See [os.Create].
	Create(path string) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces path with the contents of r.
	//
	// The data is written to a temp file in the same directory, synced, and
	// renamed over path. Readers see either the old or the new content,
	// never a mix. On error the previous content is left in place.
	WriteFileAtomic(path string, r io.Reader) error

	// ReadDir reads a directory and returns its entries sorted by name.
	// See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	// No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	// Returns [os.ErrNotExist] if file doesn't exist.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	// No error if path doesn't exist.
	RemoveAll(path string) error

	// Rename moves a file. See [os.Rename].
	// Atomic on the same filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
