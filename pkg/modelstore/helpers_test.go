package modelstore_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/modelstore/pkg/fs"
	"github.com/calvinalkan/modelstore/pkg/modelstore"
	"github.com/calvinalkan/modelstore/pkg/modelstore/frame"
)

func testLayout() modelstore.Layout {
	return modelstore.Layout{
		Slots:        4,
		SettingsSize: 16,
		ModelSize:    32,
		HeaderSize:   8,
		NameSize:     6,
	}
}

type fixture struct {
	root  string
	fs    fs.FS
	store *modelstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	return newFixtureFS(t, fs.NewReal())
}

func newFixtureFS(t *testing.T, fsys fs.FS) *fixture {
	t.Helper()

	root := filepath.Join(t.TempDir(), "eeprom")

	store, err := modelstore.Open(modelstore.Options{Root: root, Layout: testLayout(), FS: fsys})
	require.NoError(t, err, "Open")

	return &fixture{root: root, fs: fsys, store: store}
}

// modelPayload returns a model payload whose name field is name and whose
// remaining bytes are derived from fill.
func modelPayload(name string, fill byte) []byte {
	l := testLayout()
	b := bytes.Repeat([]byte{fill}, l.ModelSize)
	n := copy(b[:l.NameSize], name)

	for i := n; i < l.NameSize; i++ {
		b[i] = 0
	}

	return b
}

func settingsPayload(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, testLayout().SettingsSize)
}

func (f *fixture) saveModel(t *testing.T, slot int, name string, fill byte) []byte {
	t.Helper()

	p := modelPayload(name, fill)
	require.NoError(t, f.store.SaveModel(slot, p), "SaveModel(%d)", slot)

	return p
}

func (f *fixture) modelBytes(t *testing.T, slot int) []byte {
	t.Helper()

	data, err := os.ReadFile(f.store.Paths().Model(slot))
	if os.IsNotExist(err) {
		return nil
	}

	require.NoError(t, err)

	return data
}

func writeRaw(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// legacyModelFrame builds a version 217 model frame whose RLE stream is
// one literal run of payload.
func legacyModelFrame(payload []byte) []byte {
	buf := make([]byte, frame.HeaderSize, frame.HeaderSize+len(payload)+2)
	binary.LittleEndian.PutUint32(buf[0:], uint32(frame.MagicO9X))
	buf[4] = byte(frame.VersionLegacy)
	buf[5] = byte(frame.KindModel)
	binary.LittleEndian.PutUint16(buf[6:], uint16(len(payload)))

	for len(payload) > 0 {
		n := min(len(payload), 63)
		buf = append(buf, byte(n))
		buf = append(buf, payload[:n]...)
		payload = payload[n:]
	}

	return append(buf, 0)
}

type memMedia struct {
	dir     string
	present bool
}

func (m *memMedia) Present() bool {
	return m.present
}

func (m *memMedia) Dir() string {
	return m.dir
}

func (m *memMedia) EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func newMedia(t *testing.T) *memMedia {
	t.Helper()

	return &memMedia{dir: filepath.Join(t.TempDir(), "sd"), present: true}
}
