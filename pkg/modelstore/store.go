package modelstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/modelstore/pkg/fs"
	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

const dirPerms = 0o755

// Options configures [Open].
type Options struct {
	// Root is the storage directory. Required. Created if absent.
	Root string

	// Layout is the record geometry. The zero value means [DefaultLayout].
	Layout Layout

	// FS is the file-system layer. Defaults to [fs.NewReal].
	FS fs.FS

	// Logger receives operational logs. Defaults to a logger that discards.
	Logger logrus.FieldLogger

	// Registerer receives the store's counters. Nil skips registration;
	// the counters are still maintained.
	Registerer prometheus.Registerer
}

// Store loads and saves single records. It owns every file under Root.
//
// Store is not safe for concurrent use.
type Store struct {
	fs      fs.FS
	paths   Paths
	layout  Layout
	headers *HeaderCache
	log     logrus.FieldLogger
	metrics *metrics
}

// Open validates opts and prepares the storage root. It does not read any
// record; call [HeaderCache.RefreshAll] or [Manager.Boot] next.
func Open(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("%w: root is empty", ErrInvalidInput)
	}

	layout := opts.Layout
	if layout == (Layout{}) {
		layout = DefaultLayout()
	}

	err := layout.Validate()
	if err != nil {
		return nil, err
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	paths := NewPaths(opts.Root, layout.Slots)

	err = fsys.MkdirAll(paths.Root(), dirPerms)
	if err != nil {
		return nil, fmt.Errorf("%w: create root %s: %w", ErrIO, paths.Root(), err)
	}

	return &Store{
		fs:      fsys,
		paths:   paths,
		layout:  layout,
		headers: newHeaderCache(fsys, paths, layout, log),
		log:     log,
		metrics: newMetrics(opts.Registerer),
	}, nil
}

// Layout returns the store geometry.
func (s *Store) Layout() Layout { return s.layout }

// Paths returns the path resolver.
func (s *Store) Paths() Paths { return s.paths }

// Headers returns the slot header cache.
func (s *Store) Headers() *HeaderCache { return s.headers }

// FS returns the file-system layer the store writes through.
func (s *Store) FS() fs.FS { return s.fs }

// --- Settings ---

// LoadSettings returns the settings payload and the version it was stored
// with. A [frame.VersionLegacy] result needs conversion by the caller.
// Returns [ErrNotFound] if the settings file does not exist.
func (s *Store) LoadSettings() ([]byte, frame.Version, error) {
	return s.load(s.paths.Settings(), frame.KindSettings, s.layout.SettingsSize, false)
}

// SaveSettings replaces the settings record atomically.
func (s *Store) SaveSettings(payload []byte) error {
	err := s.save(s.paths.Settings(), frame.KindSettings, payload, s.layout.SettingsSize)
	s.metrics.write(frame.KindSettings.String(), err)

	if err != nil {
		return err
	}

	s.log.WithField("path", s.paths.Settings()).Info("settings saved")

	return nil
}

// --- Models ---

// LoadModel returns the payload stored in slot and its version.
// Returns [ErrNotFound] if the slot file is absent or empty.
func (s *Store) LoadModel(slot int) ([]byte, frame.Version, error) {
	return s.load(s.paths.Model(slot), frame.KindModel, s.layout.ModelSize, true)
}

// SaveModel replaces the record in slot atomically and refreshes its
// header.
func (s *Store) SaveModel(slot int, payload []byte) error {
	path := s.paths.Model(slot)

	err := s.save(path, frame.KindModel, payload, s.layout.ModelSize)
	s.metrics.write(frame.KindModel.String(), err)

	if err != nil {
		return err
	}

	s.refresh(slot)
	s.log.WithFields(logrus.Fields{"slot": slot, "path": path}).Info("model saved")

	return nil
}

// DeleteModel removes the record in slot. Deleting an empty slot is not an
// error. The header entry is cleared either way.
func (s *Store) DeleteModel(slot int) error {
	path := s.paths.Model(slot)

	err := s.fs.Remove(path)

	s.refresh(slot)

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrIO, path, err)
	}

	s.log.WithFields(logrus.Fields{"slot": slot, "path": path}).Info("model deleted")

	return nil
}

// ModelSize returns the file size of slot in bytes, 0 if absent.
// It reads metadata only.
func (s *Store) ModelSize(slot int) (int64, error) {
	path := s.paths.Model(slot)

	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	return info.Size(), nil
}

// ModelExists reports whether slot holds a non-empty file.
// It reads metadata only; the record may still fail to decode.
func (s *Store) ModelExists(slot int) (bool, error) {
	size, err := s.ModelSize(slot)

	return size > 0, err
}

// --- Private api ---

func (s *Store) load(path string, kind frame.Kind, capacity int, emptyIsAbsent bool) ([]byte, frame.Version, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, 0, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	defer func() { _ = f.Close() }()

	if emptyIsAbsent {
		info, err := f.Stat()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
		}

		if info.Size() == 0 {
			return nil, 0, fmt.Errorf("%w: %s is empty", ErrNotFound, path)
		}
	}

	payload, version, err := frame.Decode(f, kind, capacity)
	if err != nil {
		return nil, 0, fmt.Errorf("load %s: %w", path, classifyDecode(err))
	}

	s.log.WithFields(logrus.Fields{"path": path, "kind": kind.String(), "version": version}).Debug("record loaded")

	return payload, version, nil
}

func (s *Store) save(path string, kind frame.Kind, payload []byte, size int) error {
	if len(payload) != size {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrInvalidInput, kind, len(payload), size)
	}

	data, err := frame.Encode(kind, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	err = s.fs.WriteFileAtomic(path, bytes.NewReader(data))
	if err != nil {
		s.log.WithFields(logrus.Fields{"path": path, "kind": kind.String()}).WithError(err).Warn("record write failed")

		return fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}

	return nil
}

// refresh updates the header of slot after a mutation. Decode failures
// leave the entry cleared; they are logged, not returned, because the
// mutation itself already succeeded or failed on its own terms.
func (s *Store) refresh(slot int) {
	err := s.headers.Refresh(slot)
	if err != nil {
		s.log.WithField("slot", slot).WithError(err).Warn("slot header refresh failed")
	}
}

// exists reports whether path is present, regardless of size.
func (s *Store) exists(path string) (bool, error) {
	ok, err := s.fs.Exists(path)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	return ok, nil
}

// removeIfExists deletes path, treating absence as success.
func (s *Store) removeIfExists(path string) error {
	err := s.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrIO, path, err)
	}

	return nil
}

// classifyDecode keeps frame sentinels and marks reader failures as I/O.
func classifyDecode(err error) error {
	if errors.Is(err, frame.ErrCorruptHeader) ||
		errors.Is(err, frame.ErrIncompatibleFormat) ||
		errors.Is(err, frame.ErrTruncatedPayload) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrIO, err)
}
