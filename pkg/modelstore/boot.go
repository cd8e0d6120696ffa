package modelstore

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// Defaults generates the records written when storage has to be
// initialized. Each call returns a fresh buffer of the layout's size.
type Defaults interface {
	Settings() []byte
	Model(slot int) []byte
}

// BootResult reports what [Manager.Boot] loaded.
type BootResult struct {
	// Settings is the loaded (or default) settings payload.
	Settings []byte

	// Version is the version Settings was stored with. A
	// [frame.VersionLegacy] result needs conversion by the caller.
	Version frame.Version

	// Defaulted is true when storage was formatted and seeded with
	// defaults because the settings were absent or unreadable.
	Defaulted bool
}

// Boot loads the settings at startup.
//
// When the settings load, every slot header is read and the settings are
// returned. When they are absent, corrupt, truncated, or incompatible, the
// store is formatted and seeded with default settings plus a default model
// in slot 0. A storage I/O failure is returned as is, without formatting,
// so a flaky device does not wipe user data.
func (m *Manager) Boot(defaults Defaults) (BootResult, error) {
	settings, version, err := m.store.LoadSettings()
	if err == nil {
		refreshErr := m.store.headers.RefreshAll()
		if refreshErr != nil {
			m.log.WithError(refreshErr).Warn("some slot headers are unreadable")
		}

		return BootResult{Settings: settings, Version: version}, nil
	}

	if !needsDefaults(err) {
		return BootResult{}, fmt.Errorf("boot: %w", err)
	}

	m.log.WithError(err).Warn("settings unusable, formatting storage")

	err = m.FormatAll()
	if err != nil {
		return BootResult{}, fmt.Errorf("boot: %w", err)
	}

	settings = defaults.Settings()

	err = m.store.SaveSettings(settings)
	if err != nil {
		return BootResult{}, fmt.Errorf("boot: default settings: %w", err)
	}

	err = m.store.SaveModel(0, defaults.Model(0))
	if err != nil {
		return BootResult{}, fmt.Errorf("boot: default model: %w", err)
	}

	return BootResult{Settings: settings, Version: frame.VersionCurrent, Defaulted: true}, nil
}

func needsDefaults(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCorruptHeader) ||
		errors.Is(err, ErrIncompatibleFormat) ||
		errors.Is(err, ErrTruncatedPayload)
}
