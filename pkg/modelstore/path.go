package modelstore

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	settingsFileName = "general.bin"
	modelFilePrefix  = "model-"
	modelFileExt     = ".bin"
	scratchPrefix    = "model-swap-"
	scratchExt       = ".tmp"
)

// Paths maps records to file paths under a storage root.
type Paths struct {
	root  string
	slots int
}

// NewPaths returns the resolver for root with the given slot count.
func NewPaths(root string, slots int) Paths {
	return Paths{root: filepath.Clean(root), slots: slots}
}

// Root returns the storage root.
func (p Paths) Root() string {
	return p.root
}

// Settings returns the general settings path.
func (p Paths) Settings() string {
	return filepath.Join(p.root, settingsFileName)
}

// Model returns the path of slot. Panics if slot is out of range.
func (p Paths) Model(slot int) string {
	p.mustSlot(slot)

	return filepath.Join(p.root, modelFilePrefix+strconv.Itoa(slot)+modelFileExt)
}

// Scratch returns the scratch path used while swapping a and b. It holds
// the record of a on its way to b and never collides with a slot.
// Panics if either slot is out of range.
func (p Paths) Scratch(a, b int) string {
	p.mustSlot(a)
	p.mustSlot(b)

	name := scratchPrefix + strconv.Itoa(a) + "-" + strconv.Itoa(b) + scratchExt

	return filepath.Join(p.root, name)
}

// ScratchOf parses a base file name produced by [Paths.Scratch].
func (p Paths) ScratchOf(name string) (a, b int, ok bool) {
	pair, ok := strings.CutPrefix(name, scratchPrefix)
	if !ok {
		return 0, 0, false
	}

	pair, ok = strings.CutSuffix(pair, scratchExt)
	if !ok {
		return 0, 0, false
	}

	first, second, ok := strings.Cut(pair, "-")
	if !ok {
		return 0, 0, false
	}

	a, okA := p.parseSlot(first)
	b, okB := p.parseSlot(second)

	if !okA || !okB || a == b {
		return 0, 0, false
	}

	return a, b, true
}

// SlotOf parses a base file name produced by [Paths.Model].
// Returns false for anything else, including out-of-range slots.
func (p Paths) SlotOf(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, modelFilePrefix)
	if !ok {
		return 0, false
	}

	digits, ok = strings.CutSuffix(digits, modelFileExt)
	if !ok {
		return 0, false
	}

	return p.parseSlot(digits)
}

// parseSlot accepts canonical decimal slot numbers only.
func (p Paths) parseSlot(digits string) (int, bool) {
	if digits == "" {
		return 0, false
	}

	slot, err := strconv.Atoi(digits)
	if err != nil || slot < 0 || slot >= p.slots || strconv.Itoa(slot) != digits {
		return 0, false
	}

	return slot, true
}

func (p Paths) mustSlot(slot int) {
	if slot < 0 || slot >= p.slots {
		panic(fmt.Sprintf("modelstore: slot %d out of range [0,%d)", slot, p.slots))
	}
}
