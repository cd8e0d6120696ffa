package modelstore

import (
	"fmt"
)

// maxPayload is the largest payload the 16-bit frame length can describe.
const maxPayload = 0xFFFF

// Layout fixes the geometry of a store. Firmware builds compile these in;
// the same values must be used for every open of a given directory.
type Layout struct {
	// Slots is the number of model slots.
	Slots int

	// SettingsSize is the payload size of the general settings record.
	SettingsSize int

	// ModelSize is the payload size of a model record.
	ModelSize int

	// HeaderSize is the length of the model payload prefix cached per slot
	// by [HeaderCache].
	HeaderSize int

	// NameSize is the length of the display name at the start of the
	// model header.
	NameSize int
}

// DefaultLayout returns the geometry of the color-screen targets.
func DefaultLayout() Layout {
	return Layout{
		Slots:        60,
		SettingsSize: 1024,
		ModelSize:    4096,
		HeaderSize:   27,
		NameSize:     15,
	}
}

// Validate reports the first inconsistent field.
func (l Layout) Validate() error {
	switch {
	case l.Slots < 1:
		return fmt.Errorf("%w: slots must be >= 1, got %d", ErrInvalidInput, l.Slots)
	case l.SettingsSize < 1 || l.SettingsSize > maxPayload:
		return fmt.Errorf("%w: settings size %d out of range [1,%d]", ErrInvalidInput, l.SettingsSize, maxPayload)
	case l.ModelSize < 1 || l.ModelSize > maxPayload:
		return fmt.Errorf("%w: model size %d out of range [1,%d]", ErrInvalidInput, l.ModelSize, maxPayload)
	case l.HeaderSize < 1 || l.HeaderSize > l.ModelSize:
		return fmt.Errorf("%w: header size %d out of range [1,%d]", ErrInvalidInput, l.HeaderSize, l.ModelSize)
	case l.NameSize < 0 || l.NameSize > l.HeaderSize:
		return fmt.Errorf("%w: name size %d out of range [0,%d]", ErrInvalidInput, l.NameSize, l.HeaderSize)
	}

	return nil
}
