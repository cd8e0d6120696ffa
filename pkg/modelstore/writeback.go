package modelstore

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// PendingWrites tracks in-memory records that still have to reach storage.
//
// Settings and Model reference buffers owned by the application. The
// scheduler reads them when it writes, and [Scheduler.SwitchModel] loads
// into Model in place. Slot is the slot Model belongs to.
type PendingWrites struct {
	Settings []byte
	Model    []byte
	Slot     int

	settingsDirty bool
	modelDirty    bool
}

// MarkSettings records that Settings changed.
func (p *PendingWrites) MarkSettings() { p.settingsDirty = true }

// MarkModel records that Model changed.
func (p *PendingWrites) MarkModel() { p.modelDirty = true }

// SettingsDirty reports whether Settings has unsaved changes.
func (p *PendingWrites) SettingsDirty() bool { return p.settingsDirty }

// ModelDirty reports whether Model has unsaved changes.
func (p *PendingWrites) ModelDirty() bool { return p.modelDirty }

// Scheduler decides when pending records are written.
//
// Routine checkpoints write settings only; model writes are deferred until a
// forced checkpoint (slot switch, backup, restore, shutdown). There is no
// retry loop: a failed write keeps its dirty bit and is retried by the next
// checkpoint.
type Scheduler struct {
	store   *Store
	pending *PendingWrites
	log     logrus.FieldLogger
}

// NewScheduler returns a scheduler writing pending through store.
func NewScheduler(store *Store, pending *PendingWrites) *Scheduler {
	if pending == nil {
		panic("modelstore: pending writes is nil")
	}

	return &Scheduler{
		store:   store,
		pending: pending,
		log:     store.log,
	}
}

// Pending returns the tracked buffers.
func (s *Scheduler) Pending() *PendingWrites {
	return s.pending
}

// Checkpoint writes dirty records. Without force only settings are
// considered. With force the model is written even if the settings write
// failed; both failures are joined.
func (s *Scheduler) Checkpoint(force bool) error {
	s.store.metrics.checkpoint(force)

	var errs []error

	if s.pending.settingsDirty {
		err := s.store.SaveSettings(s.pending.Settings)
		if err != nil {
			errs = append(errs, fmt.Errorf("checkpoint settings: %w", err))
		} else {
			s.pending.settingsDirty = false
		}
	}

	if force && s.pending.modelDirty {
		err := s.store.SaveModel(s.pending.Slot, s.pending.Model)
		if err != nil {
			errs = append(errs, fmt.Errorf("checkpoint model %d: %w", s.pending.Slot, err))
		} else {
			s.pending.modelDirty = false
		}
	}

	err := errors.Join(errs...)

	s.log.WithFields(logrus.Fields{
		"force":          force,
		"settings_dirty": s.pending.settingsDirty,
		"model_dirty":    s.pending.modelDirty,
	}).WithError(err).Debug("checkpoint")

	return err
}

// SwitchModel flushes pending writes and loads slot into the model buffer.
//
// The buffer and current slot are left untouched if the flush or the load
// fails, so no unsaved edits are lost. A [frame.VersionLegacy] result means
// the buffer holds a record the caller has to convert.
func (s *Scheduler) SwitchModel(slot int) (frame.Version, error) {
	err := s.Checkpoint(true)
	if err != nil {
		return 0, fmt.Errorf("switch to slot %d: flush: %w", slot, err)
	}

	payload, version, err := s.store.LoadModel(slot)
	if err != nil {
		return 0, fmt.Errorf("switch to slot %d: %w", slot, err)
	}

	if len(s.pending.Model) != len(payload) {
		s.pending.Model = make([]byte, len(payload))
	}

	copy(s.pending.Model, payload)
	s.pending.Slot = slot
	s.pending.modelDirty = false

	s.log.WithFields(logrus.Fields{"slot": slot, "version": version}).Info("model switched")

	return version, nil
}
