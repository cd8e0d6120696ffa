package modelstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/modelstore/pkg/fs"
	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// BackupExt is the extension of backup files on the media.
const BackupExt = ".bin"

// Media is removable storage used for backups.
type Media interface {
	// Present reports whether the media is inserted and usable.
	Present() bool

	// Dir returns the media root directory.
	Dir() string

	// EnsureDir creates path (and parents) on the media.
	EnsureDir(path string) error
}

// Converter imports a legacy-format record at srcPath into slot dst.
// Conversion lives outside this package.
type Converter func(dst int, srcPath string) error

// DirMedia is media backed by a plain directory. It is present whenever the
// directory exists.
type DirMedia struct {
	fs  fs.FS
	dir string
}

// NewDirMedia returns media rooted at dir.
func NewDirMedia(fsys fs.FS, dir string) *DirMedia {
	return &DirMedia{fs: fsys, dir: filepath.Clean(dir)}
}

// Present reports whether the directory exists.
func (d *DirMedia) Present() bool {
	info, err := d.fs.Stat(d.dir)

	return err == nil && info.IsDir()
}

// Dir returns the media root.
func (d *DirMedia) Dir() string { return d.dir }

// EnsureDir creates path.
func (d *DirMedia) EnsureDir(path string) error {
	return d.fs.MkdirAll(path, dirPerms)
}

// MountedMedia is media at a mount point. It is present only while
// something is mounted there, so an unmounted card never receives writes
// into the bare mount directory.
type MountedMedia struct {
	DirMedia
}

// NewMountedMedia returns media for the mount point mountpoint.
func NewMountedMedia(fsys fs.FS, mountpoint string) *MountedMedia {
	return &MountedMedia{DirMedia: *NewDirMedia(fsys, mountpoint)}
}

// Present reports whether mountpoint is an active mount.
func (m *MountedMedia) Present() bool {
	mounted, err := mountinfo.Mounted(m.dir)

	return err == nil && mounted
}

var (
	_ Media = (*DirMedia)(nil)
	_ Media = (*MountedMedia)(nil)
)

// BackupName returns the file name (without extension) used to back up a
// model called name in slot. Characters that are unsafe in FAT file names
// become '_'. A blank name falls back to "MODEL<NN>".
func BackupName(name string, slot int) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(`\/:*?"<>|`, r) {
			return '_'
		}

		return r
	}, strings.TrimSpace(name))

	if name == "" {
		return defaultModelName(slot)
	}

	return name
}

// Backup copies the record in slot to the media export directory and
// returns the written path. Pending writes are flushed first.
func (m *Manager) Backup(slot int) (path string, err error) {
	src := m.store.paths.Model(slot)

	defer func() {
		m.store.metrics.slotOp("backup", err)
	}()

	m.flush()

	dir, err := m.exportPath()
	if err != nil {
		return "", err
	}

	ok, err := m.store.ModelExists(slot)
	if err != nil {
		return "", err
	}

	if !ok {
		return "", fmt.Errorf("backup slot %d: %w", slot, ErrNotFound)
	}

	err = m.media.EnsureDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrMedia, dir, err)
	}

	name := BackupName(m.store.headers.Header(slot).Name, slot)
	path = filepath.Join(dir, name+BackupExt)

	err = m.copyFile(src, ErrIO, path, ErrMedia)
	if err != nil {
		return "", fmt.Errorf("backup slot %d: %w", slot, err)
	}

	m.log.WithFields(logrus.Fields{"slot": slot, "path": path}).Info("model backed up")

	return path, nil
}

// Restore imports the backup called name into slot. name is a file name in
// the export directory, with or without [BackupExt].
//
// A legacy-format backup is handed to the [Converter]; anything else is
// copied verbatim. The slot header is refreshed afterwards either way.
func (m *Manager) Restore(slot int, name string) (err error) {
	dst := m.store.paths.Model(slot)

	defer func() {
		m.store.metrics.slotOp("restore", err)
	}()

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: backup name %q", ErrInvalidInput, name)
	}

	m.flush()

	dir, err := m.exportPath()
	if err != nil {
		return err
	}

	if !strings.HasSuffix(name, BackupExt) {
		name += BackupExt
	}

	src := filepath.Join(dir, name)

	hdr, err := m.peekHeader(src)
	if err != nil {
		return err
	}

	log := m.log.WithFields(logrus.Fields{"slot": slot, "path": src, "version": hdr.Version})

	if hdr.Version == frame.VersionLegacy {
		if m.converter == nil {
			return fmt.Errorf("%w: %s needs conversion", ErrIncompatible, src)
		}

		err = m.converter(slot, src)

		m.store.refresh(slot)

		if err != nil {
			return fmt.Errorf("convert %s: %w", src, err)
		}

		log.Info("legacy model converted")

		return nil
	}

	err = m.copyFile(src, ErrMedia, dst, ErrIO)

	m.store.refresh(slot)

	if err != nil {
		return fmt.Errorf("restore %s: %w", src, err)
	}

	log.Info("model restored")

	return nil
}

// Backups lists the restorable names in the export directory, sorted.
// A missing export directory yields no names.
func (m *Manager) Backups() ([]string, error) {
	dir, err := m.exportPath()
	if err != nil {
		return nil, err
	}

	entries, err := m.store.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("%w: list %s: %w", ErrMedia, dir, err)
	}

	var names []string

	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), BackupExt)
		if !ok || name == "" || entry.IsDir() {
			continue
		}

		names = append(names, name)
	}

	return names, nil
}

// exportPath returns the export directory, or [ErrNoMedia].
func (m *Manager) exportPath() (string, error) {
	if m.media == nil || !m.media.Present() {
		return "", ErrNoMedia
	}

	return filepath.Join(m.media.Dir(), m.exportDir), nil
}

// flush forces pending writes. A failure is logged and the caller goes on:
// the dirty bits stay set, and the media operation does not depend on it.
func (m *Manager) flush() {
	if m.flusher == nil {
		return
	}

	err := m.flusher.Checkpoint(true)
	if err != nil {
		m.log.WithError(err).Warn("flush before media operation failed")
	}
}

func (m *Manager) peekHeader(src string) (frame.Header, error) {
	f, err := m.store.fs.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return frame.Header{}, fmt.Errorf("%w: %s", ErrNotFound, src)
		}

		return frame.Header{}, fmt.Errorf("%w: open %s: %w", ErrMedia, src, err)
	}

	defer func() { _ = f.Close() }()

	hdr, err := frame.ReadHeader(f)
	if err != nil {
		if errors.Is(err, frame.ErrCorruptHeader) {
			return frame.Header{}, fmt.Errorf("%w: %s: %w", ErrIncompatible, src, err)
		}

		return frame.Header{}, fmt.Errorf("%w: read %s: %w", ErrMedia, src, err)
	}

	err = hdr.Validate(frame.KindModel)
	if err != nil {
		return frame.Header{}, fmt.Errorf("%s: %w", src, err)
	}

	return hdr, nil
}

// copyFile copies src to dst, tagging a failure on either side with the
// sentinel of the device it happened on.
func (m *Manager) copyFile(src string, srcKind error, dst string, dstKind error) error {
	data, err := m.store.fs.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", srcKind, src, err)
	}

	err = m.store.fs.WriteFileAtomic(dst, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", dstKind, dst, err)
	}

	return nil
}
