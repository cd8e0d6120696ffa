package fs

import (
	"errors"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// Op identifies an operation that a [Failpoint] can target.
type Op string

// Valid Op values.
const (
	OpOpen        Op = "open"
	OpCreate      Op = "create"
	OpReadFile    Op = "readfile"
	OpWriteAtomic Op = "writeatomic"
	OpReadDir     Op = "readdir"
	OpMkdirAll    Op = "mkdirall"
	OpStat        Op = "stat"
	OpExists      Op = "exists"
	OpRemove      Op = "remove"
	OpRemoveAll   Op = "removeall"
	OpRename      Op = "rename"
	OpFileRead    Op = "file.read"
	OpFileWrite   Op = "file.write"
)

// Failpoint describes when [Faulty] injects an error.
//
// The zero value matches every operation and triggers on the first one.
type Failpoint struct {
	// Op restricts the failpoint to one operation. Empty matches all.
	Op Op

	// PathPrefix restricts eligibility to paths under this prefix.
	// Matching is directory-aware: "/a" matches "/a" and "/a/b" but not "/ab".
	// For [OpRename] either the source or the destination may match.
	// For file-handle operations the matched path is the one the handle
	// was opened with.
	PathPrefix string

	// After triggers on the Nth eligible operation (1-indexed).
	// If both After and Rate are zero, After defaults to 1.
	After uint64

	// Rate is the probability in [0,1] that an eligible operation fails.
	// Uses the seed given to [NewFaulty].
	Rate float64

	// Sticky keeps failing every eligible operation once triggered.
	Sticky bool

	// Errno is the injected error number. Defaults to EIO.
	Errno syscall.Errno

	// Partial makes an [OpFileWrite] failure write the first half of the
	// buffer before returning the error, like a device that fills up
	// mid-write.
	Partial bool
}

type failpoint struct {
	Failpoint

	count     uint64
	triggered bool
}

// injectedError marks an error as produced by [Faulty].
type injectedError struct {
	Err error
}

func (e *injectedError) Error() string {
	return "injected: " + e.Err.Error()
}

func (e *injectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Faulty]. Returns false if err is nil.
func IsInjected(err error) bool {
	var injected *injectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails selected operations.
//
// Injected errors are [*fs.PathError] values (or [*os.LinkError] for rename)
// carrying a real [syscall.Errno], so [errors.Is] checks such as
// errors.Is(err, syscall.ENOSPC) behave like real OS errors. [IsInjected]
// tells injected and real failures apart.
//
// A failed operation never touches the underlying filesystem, except for
// partial writes (see [Failpoint.Partial]).
//
// Faulty is safe for concurrent use.
type Faulty struct {
	fs FS

	mu       sync.Mutex
	points   []*failpoint
	rng      *rand.Rand
	injected int
}

// NewFaulty wraps underlying. seed drives [Failpoint.Rate].
func NewFaulty(underlying FS, seed uint64) *Faulty {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Faulty{
		fs:  underlying,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Arm adds a failpoint. Multiple failpoints are evaluated in order; the
// first that triggers wins.
func (f *Faulty) Arm(fp Failpoint) {
	if fp.After == 0 && fp.Rate == 0 {
		fp.After = 1
	}

	if fp.Errno == 0 {
		fp.Errno = syscall.EIO
	}

	if fp.PathPrefix != "" {
		fp.PathPrefix = filepath.Clean(fp.PathPrefix)
	}

	f.mu.Lock()
	f.points = append(f.points, &failpoint{Failpoint: fp})
	f.mu.Unlock()
}

// Disarm removes all failpoints. Operations pass straight through afterward.
func (f *Faulty) Disarm() {
	f.mu.Lock()
	f.points = nil
	f.mu.Unlock()
}

// Injected returns the number of errors injected so far.
func (f *Faulty) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.injected
}

// check decides whether op on path (and newPath for rename) fails.
// Returns the matching failpoint or nil.
func (f *Faulty) check(op Op, path, newPath string) *failpoint {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, fp := range f.points {
		if !fp.eligible(op, path, newPath) {
			continue
		}

		if fp.triggered && fp.Sticky {
			f.injected++

			return fp
		}

		fp.count++

		hit := fp.After > 0 && fp.count == fp.After
		if !hit && fp.Rate > 0 {
			hit = f.rng.Float64() < fp.Rate
		}

		if hit {
			fp.triggered = true
			f.injected++

			return fp
		}
	}

	return nil
}

func (fp *failpoint) eligible(op Op, path, newPath string) bool {
	if fp.Op != "" && fp.Op != op {
		return false
	}

	if fp.PathPrefix == "" {
		return true
	}

	if pathHasPrefix(path, fp.PathPrefix) {
		return true
	}

	return newPath != "" && pathHasPrefix(newPath, fp.PathPrefix)
}

// pathHasPrefix checks for a directory-aware prefix match.
func pathHasPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	if path == prefix {
		return true
	}

	if prefix == string(filepath.Separator) {
		return strings.HasPrefix(path, prefix)
	}

	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

func pathError(op Op, path string, errno syscall.Errno) error {
	return &injectedError{Err: &fs.PathError{Op: string(op), Path: path, Err: errno}}
}

func linkError(oldpath, newpath string, errno syscall.Errno) error {
	return &injectedError{Err: &os.LinkError{Op: string(OpRename), Old: oldpath, New: newpath, Err: errno}}
}

// --- File Operations ---

// Open opens a file with fault injection. The returned handle injects
// [OpFileRead] faults.
func (f *Faulty) Open(path string) (File, error) {
	if fp := f.check(OpOpen, path, ""); fp != nil {
		return nil, pathError(OpOpen, path, fp.Errno)
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{f: file, faulty: f, path: path}, nil
}

// Create creates a file with fault injection. The returned handle injects
// [OpFileWrite] faults.
func (f *Faulty) Create(path string) (File, error) {
	if fp := f.check(OpCreate, path, ""); fp != nil {
		return nil, pathError(OpCreate, path, fp.Errno)
	}

	file, err := f.fs.Create(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{f: file, faulty: f, path: path}, nil
}

// ReadFile reads a file with fault injection.
func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if fp := f.check(OpReadFile, path, ""); fp != nil {
		return nil, pathError(OpReadFile, path, fp.Errno)
	}

	return f.fs.ReadFile(path)
}

// WriteFileAtomic replaces a file with fault injection. An injected failure
// leaves the previous content untouched, matching the atomic contract.
func (f *Faulty) WriteFileAtomic(path string, r io.Reader) error {
	if fp := f.check(OpWriteAtomic, path, ""); fp != nil {
		return pathError(OpWriteAtomic, path, fp.Errno)
	}

	return f.fs.WriteFileAtomic(path, r)
}

// --- Directory Operations ---

// ReadDir lists a directory with fault injection.
func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	if fp := f.check(OpReadDir, path, ""); fp != nil {
		return nil, pathError(OpReadDir, path, fp.Errno)
	}

	return f.fs.ReadDir(path)
}

// MkdirAll creates directories with fault injection.
func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if fp := f.check(OpMkdirAll, path, ""); fp != nil {
		return pathError(OpMkdirAll, path, fp.Errno)
	}

	return f.fs.MkdirAll(path, perm)
}

// --- Metadata ---

// Stat returns file info with fault injection.
func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if fp := f.check(OpStat, path, ""); fp != nil {
		return nil, pathError(OpStat, path, fp.Errno)
	}

	return f.fs.Stat(path)
}

// Exists checks existence with fault injection.
func (f *Faulty) Exists(path string) (bool, error) {
	if fp := f.check(OpExists, path, ""); fp != nil {
		return false, pathError(OpExists, path, fp.Errno)
	}

	return f.fs.Exists(path)
}

// --- Mutations ---

// Remove removes a file with fault injection.
func (f *Faulty) Remove(path string) error {
	if fp := f.check(OpRemove, path, ""); fp != nil {
		return pathError(OpRemove, path, fp.Errno)
	}

	return f.fs.Remove(path)
}

// RemoveAll removes a tree with fault injection.
func (f *Faulty) RemoveAll(path string) error {
	if fp := f.check(OpRemoveAll, path, ""); fp != nil {
		return pathError(OpRemoveAll, path, fp.Errno)
	}

	return f.fs.RemoveAll(path)
}

// Rename renames a file with fault injection.
func (f *Faulty) Rename(oldpath, newpath string) error {
	if fp := f.check(OpRename, oldpath, newpath); fp != nil {
		return linkError(oldpath, newpath, fp.Errno)
	}

	return f.fs.Rename(oldpath, newpath)
}

// faultyFile wraps a [File] and injects faults on Read/Write.
type faultyFile struct {
	f      File
	faulty *Faulty
	path   string
}

func (ff *faultyFile) Read(buf []byte) (int, error) {
	if fp := ff.faulty.check(OpFileRead, ff.path, ""); fp != nil {
		return 0, pathError("read", ff.path, fp.Errno)
	}

	return ff.f.Read(buf)
}

func (ff *faultyFile) Write(data []byte) (int, error) {
	fp := ff.faulty.check(OpFileWrite, ff.path, "")
	if fp == nil {
		return ff.f.Write(data)
	}

	if fp.Partial && len(data) > 1 {
		n, err := ff.f.Write(data[:len(data)/2])
		if err != nil {
			return n, err
		}

		return n, pathError("write", ff.path, fp.Errno)
	}

	return 0, pathError("write", ff.path, fp.Errno)
}

func (ff *faultyFile) Close() error                                 { return ff.f.Close() }
func (ff *faultyFile) Seek(offset int64, whence int) (int64, error) { return ff.f.Seek(offset, whence) }
func (ff *faultyFile) Fd() uintptr                                  { return ff.f.Fd() }
func (ff *faultyFile) Stat() (os.FileInfo, error)                   { return ff.f.Stat() }
func (ff *faultyFile) Sync() error                                  { return ff.f.Sync() }

// Interface compliance.
var (
	_ FS   = (*Faulty)(nil)
	_ File = (*faultyFile)(nil)
)
