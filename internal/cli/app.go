package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/modelstore/internal/config"
	"github.com/calvinalkan/modelstore/pkg/fs"
	"github.com/calvinalkan/modelstore/pkg/modelstore"
	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

// app is one opened store plus everything the commands act through.
// It holds the directory lock until close.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	fs      fs.FS
	lock    *fs.Lock
	store   *modelstore.Store
	mgr     *modelstore.Manager
	sched   *modelstore.Scheduler
	pending *modelstore.PendingWrites
}

func newLogger(errOut io.Writer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(errOut)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	return log
}

// openApp locks the storage root and opens the store. The header cache is
// loaded; settings are not touched.
func openApp(cfg *config.Config, fsys fs.FS, log *logrus.Logger) (*app, error) {
	lock, err := fs.LockDir(fsys, cfg.RootAbs)
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, fmt.Errorf("%s is in use by another mstore process", cfg.RootAbs)
		}

		return nil, err
	}

	store, err := modelstore.Open(modelstore.Options{
		Root:   cfg.RootAbs,
		Layout: cfg.Layout(),
		FS:     fsys,
		Logger: log,
	})
	if err != nil {
		return nil, errors.Join(err, lock.Close())
	}

	layout := store.Layout()
	pending := &modelstore.PendingWrites{
		Settings: make([]byte, layout.SettingsSize),
		Model:    make([]byte, layout.ModelSize),
	}
	sched := modelstore.NewScheduler(store, pending)

	a := &app{
		cfg:     cfg,
		log:     log,
		fs:      fsys,
		lock:    lock,
		store:   store,
		sched:   sched,
		pending: pending,
	}

	a.mgr = modelstore.NewManager(store, a.media(),
		modelstore.WithFlusher(sched),
		modelstore.WithExportDir(cfg.ExportDir),
		modelstore.WithConverter(a.repack),
	)

	refreshErr := store.Headers().RefreshAll()
	if refreshErr != nil {
		log.WithError(refreshErr).Debug("unreadable slots at open")
	}

	return a, nil
}

func (a *app) media() modelstore.Media {
	switch {
	case a.cfg.MediaDirAbs == "":
		return nil
	case a.cfg.MediaMounted:
		return modelstore.NewMountedMedia(a.fs, a.cfg.MediaDirAbs)
	default:
		return modelstore.NewDirMedia(a.fs, a.cfg.MediaDirAbs)
	}
}

// close flushes everything still pending and releases the lock.
func (a *app) close() error {
	flushErr := a.sched.Checkpoint(true)

	return errors.Join(flushErr, a.lock.Close())
}

// repack is the legacy importer: it decodes the compressed record and
// stores it again in the current format.
func (a *app) repack(dst int, srcPath string) error {
	f, err := a.fs.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}

	defer func() { _ = f.Close() }()

	payload, _, err := frame.Decode(f, frame.KindModel, a.store.Layout().ModelSize)
	if err != nil {
		return fmt.Errorf("decode %s: %w", srcPath, err)
	}

	return a.store.SaveModel(dst, payload)
}

// zeroDefaults seeds a fresh store with all-zero records.
type zeroDefaults struct {
	layout modelstore.Layout
}

func (d zeroDefaults) Settings() []byte { return make([]byte, d.layout.SettingsSize) }

func (d zeroDefaults) Model(int) []byte { return make([]byte, d.layout.ModelSize) }
