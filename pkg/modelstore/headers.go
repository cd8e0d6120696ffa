package modelstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/modelstore/pkg/fs"
	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// SlotHeader is the cached prefix of one model record.
type SlotHeader struct {
	// Raw is the first Layout.HeaderSize payload bytes, nil for an empty slot.
	Raw []byte

	// Name is the display name stored in the record, trimmed. It may be
	// empty for a used slot; see [HeaderCache.DisplayName].
	Name string

	// Version is the frame version the record was stored with.
	Version frame.Version
}

// Empty reports whether the slot holds no readable record.
func (h SlotHeader) Empty() bool {
	return h.Raw == nil
}

// HeaderCache holds one [SlotHeader] per slot so listings never read full
// records. It is a derived view: every entry is either empty or re-read in
// full from disk, and it never writes.
type HeaderCache struct {
	fs      fs.FS
	paths   Paths
	layout  Layout
	entries []SlotHeader
	log     logrus.FieldLogger
}

func newHeaderCache(fsys fs.FS, paths Paths, layout Layout, log logrus.FieldLogger) *HeaderCache {
	return &HeaderCache{
		fs:      fsys,
		paths:   paths,
		layout:  layout,
		entries: make([]SlotHeader, layout.Slots),
		log:     log,
	}
}

// Refresh re-reads the header of slot. An absent or zero-length file clears
// the entry and returns nil. A record that fails to decode also clears the
// entry, and the decode error is returned.
func (c *HeaderCache) Refresh(slot int) error {
	path := c.paths.Model(slot)
	c.entries[slot] = SlotHeader{}

	f, err := c.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	if info.Size() == 0 {
		return nil
	}

	raw, version, err := frame.Decode(f, frame.KindModel, c.layout.HeaderSize)
	if err != nil {
		c.log.WithFields(logrus.Fields{"slot": slot, "path": path}).WithError(err).Debug("slot header unreadable")

		return fmt.Errorf("slot %d: %w", slot, classifyDecode(err))
	}

	c.entries[slot] = SlotHeader{
		Raw:     raw,
		Name:    trimName(raw[:c.layout.NameSize]),
		Version: version,
	}

	return nil
}

// RefreshAll refreshes every slot. Every entry is updated even when some
// slots fail; the failures are joined.
func (c *HeaderCache) RefreshAll() error {
	var errs []error

	for slot := range c.entries {
		err := c.Refresh(slot)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Header returns the cached entry for slot. No I/O.
func (c *HeaderCache) Header(slot int) SlotHeader {
	c.paths.mustSlot(slot)

	h := c.entries[slot]
	h.Raw = bytes.Clone(h.Raw)

	return h
}

// DisplayName returns the stored name, or "MODEL<NN>" (1-based) when the
// stored name is blank. Returns "" for an empty slot.
func (c *HeaderCache) DisplayName(slot int) string {
	c.paths.mustSlot(slot)

	h := c.entries[slot]
	if h.Empty() {
		return ""
	}

	if h.Name != "" {
		return h.Name
	}

	return defaultModelName(slot)
}

// Used returns the occupied slots in ascending order.
func (c *HeaderCache) Used() []int {
	var used []int

	for slot, h := range c.entries {
		if !h.Empty() {
			used = append(used, slot)
		}
	}

	return used
}

// Len returns the number of slots.
func (c *HeaderCache) Len() int {
	return len(c.entries)
}

func defaultModelName(slot int) string {
	return fmt.Sprintf("MODEL%02d", slot+1)
}

// trimName cuts at the first NUL and drops trailing padding.
func trimName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return strings.TrimRight(string(b), " ")
}
