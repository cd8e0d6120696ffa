package modelstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DefaultExportDir is the directory on the media that holds backups.
const DefaultExportDir = "MODELS"

// Location names either a slot or an arbitrary file path.
// Build one with [SlotLocation] or [PathLocation].
type Location struct {
	slot   int
	path   string
	isPath bool
}

// SlotLocation refers to model slot i.
func SlotLocation(i int) Location {
	return Location{slot: i}
}

// PathLocation refers to the file at path.
func PathLocation(path string) Location {
	return Location{path: path, isPath: true}
}

// Slot returns the slot index and true if l is a slot.
func (l Location) Slot() (int, bool) {
	return l.slot, !l.isPath
}

// Path returns the file path and true if l is a path.
func (l Location) Path() (string, bool) {
	return l.path, l.isPath
}

func (l Location) String() string {
	if l.isPath {
		return l.path
	}

	return "slot " + strconv.Itoa(l.slot)
}

// Flusher forces pending writes to storage. [Scheduler] implements it.
type Flusher interface {
	Checkpoint(force bool) error
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithFlusher makes backup and restore flush pending writes first.
func WithFlusher(f Flusher) ManagerOption {
	return func(m *Manager) { m.flusher = f }
}

// WithExportDir overrides [DefaultExportDir].
func WithExportDir(dir string) ManagerOption {
	return func(m *Manager) { m.exportDir = dir }
}

// WithConverter sets the importer used for legacy-format restores.
// Without one, restoring a legacy backup fails with [ErrIncompatible].
func WithConverter(c Converter) ManagerOption {
	return func(m *Manager) { m.converter = c }
}

// Manager runs the operations that touch more than one file: copy, swap,
// format, backup, restore. Every slot it touches has its header refreshed
// before the call returns.
type Manager struct {
	store     *Store
	media     Media
	flusher   Flusher
	converter Converter
	exportDir string
	log       logrus.FieldLogger
}

// NewManager returns a manager over store. media may be nil when no
// removable media exists; backup and restore then fail with [ErrNoMedia].
func NewManager(store *Store, media Media, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		media:     media,
		exportDir: DefaultExportDir,
		log:       store.log,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Store returns the underlying record store.
func (m *Manager) Store() *Store {
	return m.store
}

// Copy copies the framed record at src to dst byte for byte.
//
// The source must exist and be non-empty, otherwise [ErrNotFound]. The
// destination is replaced atomically; a slot destination has its header
// refreshed. Copying a location onto itself is a no-op.
func (m *Manager) Copy(src, dst Location) error {
	err := m.copy(src, dst)
	m.store.metrics.slotOp("copy", err)

	if err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{"src": src.String(), "dst": dst.String()}).Info("record copied")

	return nil
}

func (m *Manager) copy(src, dst Location) error {
	srcPath := m.resolve(src)
	dstPath := m.resolve(dst)

	if srcPath == dstPath {
		return nil
	}

	data, err := m.store.fs.ReadFile(srcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, srcPath)
		}

		return fmt.Errorf("%w: read %s: %w", ErrIO, srcPath, err)
	}

	if len(data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNotFound, srcPath)
	}

	err = m.store.fs.WriteFileAtomic(dstPath, bytes.NewReader(data))

	if slot, ok := dst.Slot(); ok {
		m.store.refresh(slot)
	}

	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, dstPath, err)
	}

	return nil
}

func (m *Manager) resolve(l Location) string {
	if p, ok := l.Path(); ok {
		return filepath.Clean(p)
	}

	return m.store.paths.Model(l.slot)
}

// Swap exchanges the records in slots a and b through a scratch file
// named after the pair.
//
//  1. if a exists, move a to scratch
//  2. if b exists, move b to a, else make sure a is empty
//  3. if scratch exists, move scratch to b, else make sure b is empty
//
// If the scratch file of an interrupted swap of the same pair exists, in
// either order, Swap resumes that swap instead of starting over: with a
// empty it resumes at step 2, with a filled and b empty at step 3. A slot
// written to since the interruption is never overwritten; Swap returns
// [ErrSwapPending] instead. A leftover scratch file of any other pair
// blocks the swap with a [*SwapPendingError].
//
// The first failing step aborts. Both headers are refreshed on every
// return.
func (m *Manager) Swap(a, b int) (err error) {
	paths := m.store.paths
	paths.mustSlot(a)
	paths.mustSlot(b)

	if a == b {
		return nil
	}

	defer func() {
		m.store.refresh(a)
		m.store.refresh(b)
		m.store.metrics.slotOp("swap", err)

		entry := m.log.WithFields(logrus.Fields{"a": a, "b": b})
		if err != nil {
			entry.WithError(err).Warn("swap aborted")
		} else {
			entry.Info("slots swapped")
		}
	}()

	from, to, resume, err := m.pendingSwap(a, b)
	if err != nil {
		return fmt.Errorf("swap %d<->%d: %w", a, b, err)
	}

	pa, pb, scratch := paths.Model(from), paths.Model(to), paths.Scratch(from, to)

	skipMove := false

	if resume {
		skipMove, err = m.resumePoint(pa, pb, scratch)
		if err != nil {
			return fmt.Errorf("swap %d<->%d: %w", from, to, err)
		}

		m.log.WithFields(logrus.Fields{"a": from, "b": to}).Info("resuming interrupted swap")
	} else {
		err = m.moveIfExists(pa, scratch)
		if err != nil {
			return fmt.Errorf("swap %d<->%d: step 1: %w", from, to, err)
		}
	}

	if !skipMove {
		err = m.moveOrClear(pb, pa)
		if err != nil {
			return fmt.Errorf("swap %d<->%d: step 2: %w", from, to, err)
		}
	}

	err = m.moveOrClear(scratch, pb)
	if err != nil {
		return fmt.Errorf("swap %d<->%d: step 3: %w", from, to, err)
	}

	return nil
}

// pendingSwap inspects leftover scratch files. It returns the direction
// to swap in and whether an interrupted swap of the pair is resumed.
func (m *Manager) pendingSwap(a, b int) (from, to int, resume bool, err error) {
	root := m.store.paths.Root()

	entries, err := m.store.fs.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a, b, false, nil
		}

		return 0, 0, false, fmt.Errorf("%w: list %s: %w", ErrIO, root, err)
	}

	var own [][2]int

	for _, entry := range entries {
		x, y, ok := m.store.paths.ScratchOf(entry.Name())
		if !ok || entry.IsDir() {
			continue
		}

		if (x != a || y != b) && (x != b || y != a) {
			return 0, 0, false, &SwapPendingError{A: x, B: y, Scratch: filepath.Join(root, entry.Name())}
		}

		own = append(own, [2]int{x, y})
	}

	switch len(own) {
	case 0:
		return a, b, false, nil
	case 1:
		return own[0][0], own[0][1], true, nil
	default:
		return 0, 0, false, fmt.Errorf("%w: scratch files for both orders of slots %d and %d", ErrSwapPending, a, b)
	}
}

// resumePoint decides where an interrupted swap continues. scratch holds
// the record of a. It reports whether step 2 already ran.
func (m *Manager) resumePoint(pa, pb, scratch string) (bool, error) {
	aOK, err := m.store.exists(pa)
	if err != nil {
		return false, err
	}

	bOK, err := m.store.exists(pb)
	if err != nil {
		return false, err
	}

	switch {
	case aOK && bOK:
		return false, fmt.Errorf("%w: %s and both slots hold records", ErrSwapPending, scratch)
	case aOK:
		return true, nil
	default:
		return false, nil
	}
}

func (m *Manager) moveIfExists(from, to string) error {
	ok, err := m.store.exists(from)
	if err != nil || !ok {
		return err
	}

	err = m.store.fs.Rename(from, to)
	if err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrIO, from, err)
	}

	return nil
}

// moveOrClear moves from onto to, or removes to when from is absent.
func (m *Manager) moveOrClear(from, to string) error {
	ok, err := m.store.exists(from)
	if err != nil {
		return err
	}

	if !ok {
		return m.store.removeIfExists(to)
	}

	err = m.store.fs.Rename(from, to)
	if err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrIO, from, err)
	}

	return nil
}

// FormatAll deletes everything under the storage root, creating the root
// if needed. It keeps going past individual failures and joins them. There
// is no rollback: a failure leaves a partially formatted store. Afterwards
// the header cache is re-read so it matches whatever survived.
func (m *Manager) FormatAll() error {
	root := m.store.paths.Root()

	err := m.formatAll(root)
	m.store.metrics.slotOp("format", err)

	refreshErr := m.store.headers.RefreshAll()
	if refreshErr != nil {
		m.log.WithError(refreshErr).Warn("header refresh after format")
	}

	if err != nil {
		m.log.WithField("path", root).WithError(err).Warn("format incomplete")

		return err
	}

	m.log.WithField("path", root).Info("storage formatted")

	return nil
}

func (m *Manager) formatAll(root string) error {
	fsys := m.store.fs

	err := fsys.MkdirAll(root, dirPerms)
	if err != nil {
		return fmt.Errorf("%w: create root %s: %w", ErrIO, root, err)
	}

	entries, err := fsys.ReadDir(root)
	if err != nil {
		return fmt.Errorf("%w: list %s: %w", ErrIO, root, err)
	}

	var errs []error

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		err := fsys.RemoveAll(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: remove %s: %w", ErrIO, path, err))
		}
	}

	return errors.Join(errs...)
}
