package modelstore_test

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/modelstore/pkg/fs"
	"github.com/calvinalkan/modelstore/pkg/modelstore"
)

func Test_Copy_Slot_To_Slot_Is_Byte_Identical_And_Refreshes_Destination(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.saveModel(t, 0, "Src", 4)
	m := modelstore.NewManager(f.store, nil)

	require.NoError(t, m.Copy(modelstore.SlotLocation(0), modelstore.SlotLocation(3)))

	if diff := cmp.Diff(f.modelBytes(t, 0), f.modelBytes(t, 3)); diff != "" {
		t.Fatalf("copy mismatch (-src +dst):\n%s", diff)
	}

	assert.Equal(t, "Src", f.store.Headers().Header(3).Name)
}

func Test_Copy_Between_Slot_And_Path_Round_Trips(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	want := f.saveModel(t, 1, "Ext", 8)
	m := modelstore.NewManager(f.store, nil)
	out := filepath.Join(t.TempDir(), "out.bin")

	require.NoError(t, m.Copy(modelstore.SlotLocation(1), modelstore.PathLocation(out)))
	require.NoError(t, f.store.DeleteModel(1))
	require.NoError(t, m.Copy(modelstore.PathLocation(out), modelstore.SlotLocation(2)))

	got, _, err := f.store.LoadModel(2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func Test_Copy_Returns_ErrNotFound_When_Source_Is_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := modelstore.NewManager(f.store, nil)

	err := m.Copy(modelstore.SlotLocation(0), modelstore.SlotLocation(1))
	require.ErrorIs(t, err, modelstore.ErrNotFound)
	assert.Nil(t, f.modelBytes(t, 1))
}

func Test_Copy_Is_NoOp_When_Source_Equals_Destination(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := modelstore.NewManager(f.store, nil)

	require.NoError(t, m.Copy(modelstore.SlotLocation(2), modelstore.SlotLocation(2)))
}

func Test_Location_Reports_Its_Variant(t *testing.T) {
	t.Parallel()

	slot, ok := modelstore.SlotLocation(5).Slot()
	assert.True(t, ok)
	assert.Equal(t, 5, slot)

	_, ok = modelstore.SlotLocation(5).Path()
	assert.False(t, ok)

	path, ok := modelstore.PathLocation("/x").Path()
	assert.True(t, ok)
	assert.Equal(t, "/x", path)
	assert.Equal(t, "slot 5", modelstore.SlotLocation(5).String())
}

func Test_Swap_Exchanges_Slots_And_Swapping_Twice_Restores_Them(t *testing.T) {
	t.Parallel()

	for _, aPresent := range []bool{false, true} {
		for _, bPresent := range []bool{false, true} {
			t.Run(fmt.Sprintf("a=%v,b=%v", aPresent, bPresent), func(t *testing.T) {
				t.Parallel()

				f := newFixture(t)
				m := modelstore.NewManager(f.store, nil)

				if aPresent {
					f.saveModel(t, 0, "Alpha", 1)
				}

				if bPresent {
					f.saveModel(t, 2, "Bravo", 2)
				}

				origA, origB := f.modelBytes(t, 0), f.modelBytes(t, 2)

				require.NoError(t, m.Swap(0, 2))
				assert.Equal(t, origB, f.modelBytes(t, 0), "a after swap")
				assert.Equal(t, origA, f.modelBytes(t, 2), "b after swap")
				assert.Equal(t, bPresent, !f.store.Headers().Header(0).Empty())
				assert.Equal(t, aPresent, !f.store.Headers().Header(2).Empty())

				require.NoError(t, m.Swap(0, 2))
				assert.Equal(t, origA, f.modelBytes(t, 0), "a after second swap")
				assert.Equal(t, origB, f.modelBytes(t, 2), "b after second swap")

				_, err := os.Stat(f.store.Paths().Scratch(0, 2))
				assert.True(t, os.IsNotExist(err), "scratch left behind")
			})
		}
	}
}

func Test_Swap_Is_NoOp_When_Slots_Are_Equal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	want := f.saveModel(t, 1, "Same", 1)
	m := modelstore.NewManager(f.store, nil)

	require.NoError(t, m.Swap(1, 1))

	got, _, err := f.store.LoadModel(1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func Test_Swap_Completes_On_Rerun_When_Interrupted_After_Step_One(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal(), 1)
	f := newFixtureFS(t, faulty)
	m := modelstore.NewManager(f.store, nil)

	f.saveModel(t, 0, "Alpha", 1)
	f.saveModel(t, 1, "Bravo", 2)
	origA, origB := f.modelBytes(t, 0), f.modelBytes(t, 1)

	faulty.Arm(fs.Failpoint{Op: fs.OpRename, After: 2, Errno: syscall.ENOSPC})

	err := m.Swap(0, 1)
	require.ErrorIs(t, err, modelstore.ErrIO)
	require.ErrorIs(t, err, syscall.ENOSPC)
	require.True(t, fs.IsInjected(err))

	assert.Nil(t, f.modelBytes(t, 0), "a must be empty after step 1")
	assert.Equal(t, origB, f.modelBytes(t, 1), "b must be untouched")
	assert.True(t, f.store.Headers().Header(0).Empty(), "cache refreshed on failure")
	assert.Equal(t, "Bravo", f.store.Headers().Header(1).Name)

	faulty.Disarm()

	require.NoError(t, m.Swap(0, 1))
	assert.Equal(t, origB, f.modelBytes(t, 0))
	assert.Equal(t, origA, f.modelBytes(t, 1))
	assert.Equal(t, "Bravo", f.store.Headers().Header(0).Name)
	assert.Equal(t, "Alpha", f.store.Headers().Header(1).Name)
}

func Test_Swap_Completes_On_Rerun_When_Interrupted_After_Step_Two(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal(), 1)
	f := newFixtureFS(t, faulty)
	m := modelstore.NewManager(f.store, nil)

	f.saveModel(t, 0, "Alpha", 1)
	f.saveModel(t, 1, "Bravo", 2)
	origA, origB := f.modelBytes(t, 0), f.modelBytes(t, 1)

	faulty.Arm(fs.Failpoint{Op: fs.OpRename, After: 3, Errno: syscall.EIO})

	err := m.Swap(0, 1)
	require.ErrorIs(t, err, modelstore.ErrIO)
	require.True(t, fs.IsInjected(err))

	assert.Equal(t, origB, f.modelBytes(t, 0), "a holds b after step 2")
	assert.Nil(t, f.modelBytes(t, 1), "b moved away in step 2")
	assert.FileExists(t, f.store.Paths().Scratch(0, 1))

	faulty.Disarm()

	require.NoError(t, m.Swap(0, 1))
	assert.Equal(t, origB, f.modelBytes(t, 0))
	assert.Equal(t, origA, f.modelBytes(t, 1))
	assert.NoFileExists(t, f.store.Paths().Scratch(0, 1))
	assert.Equal(t, "Alpha", f.store.Headers().Header(1).Name)
}

func Test_Swap_Resumes_Interrupted_Swap_When_Called_With_Reversed_Slots(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal(), 1)
	f := newFixtureFS(t, faulty)
	m := modelstore.NewManager(f.store, nil)

	f.saveModel(t, 0, "Alpha", 1)
	f.saveModel(t, 1, "Bravo", 2)
	origA, origB := f.modelBytes(t, 0), f.modelBytes(t, 1)

	faulty.Arm(fs.Failpoint{Op: fs.OpRename, After: 3, Errno: syscall.EIO})
	require.Error(t, m.Swap(0, 1))
	faulty.Disarm()

	require.NoError(t, m.Swap(1, 0))
	assert.Equal(t, origB, f.modelBytes(t, 0))
	assert.Equal(t, origA, f.modelBytes(t, 1))
	assert.NoFileExists(t, f.store.Paths().Scratch(0, 1))
}

func Test_Swap_Refuses_Other_Pair_When_Scratch_Of_Interrupted_Swap_Remains(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal(), 1)
	f := newFixtureFS(t, faulty)
	m := modelstore.NewManager(f.store, nil)

	f.saveModel(t, 0, "Alpha", 1)
	f.saveModel(t, 1, "Bravo", 2)
	origA, origB := f.modelBytes(t, 0), f.modelBytes(t, 1)

	faulty.Arm(fs.Failpoint{Op: fs.OpRename, After: 2, Errno: syscall.EIO})
	require.Error(t, m.Swap(0, 1))
	faulty.Disarm()

	delta := f.saveModel(t, 3, "Delta", 4)

	err := m.Swap(2, 3)
	require.ErrorIs(t, err, modelstore.ErrSwapPending)

	var pending *modelstore.SwapPendingError

	require.ErrorAs(t, err, &pending)
	assert.Equal(t, 0, pending.A)
	assert.Equal(t, 1, pending.B)
	assert.Equal(t, f.store.Paths().Scratch(0, 1), pending.Scratch)
	assert.Equal(t, modelstore.MsgSwapPending, modelstore.Message(err))

	assert.Nil(t, f.modelBytes(t, 2), "slot 2 untouched")
	assert.Equal(t, "Delta", f.store.Headers().Header(3).Name)

	got, _, err := f.store.LoadModel(3)
	require.NoError(t, err)
	assert.Equal(t, delta, got)

	require.NoError(t, m.Swap(0, 1))
	assert.Equal(t, origB, f.modelBytes(t, 0))
	assert.Equal(t, origA, f.modelBytes(t, 1))

	require.NoError(t, m.Swap(2, 3))
	assert.Equal(t, "Delta", f.store.Headers().Header(2).Name)
	assert.True(t, f.store.Headers().Header(3).Empty())
}

func Test_Swap_Keeps_Every_Record_When_Slot_Was_Written_After_Interruption(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal(), 1)
	f := newFixtureFS(t, faulty)
	m := modelstore.NewManager(f.store, nil)

	f.saveModel(t, 0, "Alpha", 1)
	f.saveModel(t, 1, "Bravo", 2)
	origB := f.modelBytes(t, 1)

	faulty.Arm(fs.Failpoint{Op: fs.OpRename, After: 2, Errno: syscall.EIO})
	require.Error(t, m.Swap(0, 1))
	faulty.Disarm()

	f.saveModel(t, 0, "Charlie", 3)
	charlie := f.modelBytes(t, 0)

	err := m.Swap(0, 1)
	require.ErrorIs(t, err, modelstore.ErrSwapPending)

	assert.Equal(t, charlie, f.modelBytes(t, 0))
	assert.Equal(t, origB, f.modelBytes(t, 1))
	assert.FileExists(t, f.store.Paths().Scratch(0, 1))
}

func Test_FormatAll_Leaves_Every_Header_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := modelstore.NewManager(f.store, nil)

	for slot := range testLayout().Slots {
		f.saveModel(t, slot, "M", byte(slot))
	}

	require.NoError(t, f.store.SaveSettings(settingsPayload(1)))
	writeRaw(t, filepath.Join(f.root, "stray", "junk"), []byte("x"))

	require.NoError(t, m.FormatAll())
	require.NoError(t, f.store.Headers().RefreshAll())

	for slot := range testLayout().Slots {
		assert.True(t, f.store.Headers().Header(slot).Empty(), "slot %d", slot)
	}

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_FormatAll_Creates_Root_When_Missing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := modelstore.NewManager(f.store, nil)
	require.NoError(t, os.RemoveAll(f.root))

	require.NoError(t, m.FormatAll())

	info, err := os.Stat(f.root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func Test_FormatAll_Continues_Past_Failures_And_Joins_Them(t *testing.T) {
	t.Parallel()

	faulty := fs.NewFaulty(fs.NewReal(), 1)
	f := newFixtureFS(t, faulty)
	m := modelstore.NewManager(f.store, nil)

	f.saveModel(t, 0, "Keep", 1)
	f.saveModel(t, 1, "Gone", 2)

	faulty.Arm(fs.Failpoint{Op: fs.OpRemoveAll, PathPrefix: f.store.Paths().Model(0)})

	err := m.FormatAll()
	require.ErrorIs(t, err, modelstore.ErrIO)

	assert.NotNil(t, f.modelBytes(t, 0), "failed delete keeps the file")
	assert.Nil(t, f.modelBytes(t, 1), "other files are still deleted")
	assert.Equal(t, "Keep", f.store.Headers().Header(0).Name, "cache matches disk")
	assert.True(t, f.store.Headers().Header(1).Empty())
}
