package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileProps(version string) StorageProps {
	return StorageProps{VersionID: version, ModifiedDate: time.Unix(100, 0), Size: 3}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		same bool
	}{
		{"Case insensitive", []string{"Docs", "A.TXT"}, []string{"docs", "a.txt"}, true},
		{"NFC vs NFD", []string{"caf\u00e9"}, []string{"cafe\u0301"}, true},
		{"Different names", []string{"a"}, []string{"b"}, false},
		{"Different depth", []string{"a", "b"}, []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, Normalize(tt.a).Equal(Normalize(tt.b)))
		})
	}
}

func TestPath(t *testing.T) {
	p := Normalize([]string{"A", "B", "c.txt"})

	assert.Equal(t, "a/b/c.txt", p.Key())
	assert.Equal(t, "/a/b/c.txt", p.String())
	assert.Equal(t, "c.txt", p.Name())
	assert.True(t, p.HasPrefix(Path{"a", "b"}))
	assert.False(t, p.HasPrefix(Path{"b"}))
	assert.True(t, ParseKey(p.Key()).Equal(p))
	assert.True(t, ParseKey("").IsRoot())
	assert.True(t, Path{}.Parent().IsRoot())
}

func TestUpdateStorageProps(t *testing.T) {
	t.Run("New entry requires version and dir flag", func(t *testing.T) {
		n := New().GetOrCreate(Path{"a.txt"})

		changed, err := n.UpdateStorageProps("local", Update{VersionID: Set("1")})
		assert.ErrorIs(t, err, ErrMandatoryField)
		assert.False(t, changed)
		assert.Empty(t, n.Storages, "failed update must not leave an entry behind")
	})

	t.Run("Clearing a mandatory field is rejected", func(t *testing.T) {
		n := New().GetOrCreate(Path{"a.txt"})
		_, err := n.UpdateStorageProps("local", UpdateFrom(fileProps("1")))
		require.NoError(t, err)

		for name, u := range map[string]Update{
			"version":  {VersionID: Clear[string]()},
			"modified": {ModifiedDate: Clear[time.Time]()},
			"size":     {Size: Clear[int64]()},
			"is_dir":   {IsDir: Clear[bool]()},
		} {
			_, err := n.UpdateStorageProps("local", u)
			assert.ErrorIs(t, err, ErrMandatoryField, name)
		}
		assert.Equal(t, "1", n.Storages["local"].VersionID)
	})

	t.Run("Clearing optional fields removes them", func(t *testing.T) {
		n := New().GetOrCreate(Path{"a.txt"})
		props := fileProps("1")
		props.ShareID = "share-1"
		props.Shared = true
		_, err := n.UpdateStorageProps("csp", UpdateFrom(props))
		require.NoError(t, err)

		changed, err := n.UpdateStorageProps("csp", Update{ShareID: Clear[string](), Shared: Clear[bool]()})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Empty(t, n.Storages["csp"].ShareID)
		assert.False(t, n.Storages["csp"].Shared)
	})

	t.Run("Identical update is not a change", func(t *testing.T) {
		n := New().GetOrCreate(Path{"a.txt"})
		changed, err := n.UpdateStorageProps("local", UpdateFrom(fileProps("1")))
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = n.UpdateStorageProps("local", UpdateFrom(fileProps("1")))
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("Update revives a deleted entry", func(t *testing.T) {
		n := New().GetOrCreate(Path{"a.txt"})
		_, err := n.UpdateStorageProps("local", UpdateFrom(fileProps("1")))
		require.NoError(t, err)
		require.True(t, n.MarkDeleted("local"))
		assert.Empty(t, n.Storages["local"].VersionID)

		_, err = n.UpdateStorageProps("local", UpdateFrom(fileProps("2")))
		require.NoError(t, err)
		assert.False(t, n.Storages["local"].Deleted)
		assert.Equal(t, "2", n.Storages["local"].VersionID)
	})
}

func TestTree_GetOrCreateAndRemove(t *testing.T) {
	tr := New()
	leaf := tr.GetOrCreate(Path{"a", "b", "c.txt"})
	_, err := leaf.UpdateStorageProps("local", UpdateFrom(fileProps("1")))
	require.NoError(t, err)

	assert.Equal(t, 3, tr.Len())
	parent, ok := tr.Parent(leaf)
	require.True(t, ok)
	assert.Equal(t, Path{"a", "b"}, parent.Path())

	t.Run("Node with children stays as placeholder", func(t *testing.T) {
		a, _ := tr.Get(Path{"a"})
		assert.False(t, tr.Remove(a))
		_, ok := tr.Get(Path{"a"})
		assert.True(t, ok)
	})

	t.Run("Removing the leaf prunes empty ancestors", func(t *testing.T) {
		assert.True(t, tr.Remove(leaf))
		assert.Equal(t, 0, tr.Len())
		assert.Equal(t, 0, tr.Root().ChildCount())
	})
}

func TestTree_RemoveKeepsAncestorWithStorages(t *testing.T) {
	tr := New()
	dir := tr.GetOrCreate(Path{"dir"})
	_, err := dir.UpdateStorageProps("local", Update{VersionID: Set("d"), IsDir: Set(true)})
	require.NoError(t, err)
	leaf := tr.GetOrCreate(Path{"dir", "x"})

	assert.True(t, tr.Remove(leaf))
	_, ok := tr.Get(Path{"dir"})
	assert.True(t, ok)
}

func TestTree_SubtreeAndLineage(t *testing.T) {
	tr := New()
	tr.GetOrCreate(Path{"a", "b"})
	tr.GetOrCreate(Path{"a", "c"})
	tr.GetOrCreate(Path{"d"})

	a, _ := tr.Get(Path{"a"})
	var keys []string
	for _, n := range tr.Subtree(a) {
		keys = append(keys, n.Path().Key())
	}
	assert.Equal(t, []string{"a", "a/b", "a/c"}, keys)

	lineage := tr.Lineage(Path{"a", "b", "missing"})
	require.Len(t, lineage, 2)
	assert.Equal(t, "a/b", lineage[0].Path().Key())
	assert.Equal(t, "a", lineage[1].Path().Key())
}

func TestTree_MergeSnapshot(t *testing.T) {
	tr := New()
	stale := tr.GetOrCreate(Path{"stale.txt"})
	_, err := stale.UpdateStorageProps("csp", UpdateFrom(fileProps("9")))
	require.NoError(t, err)
	_, err = stale.UpdateStorageProps("local", UpdateFrom(fileProps("8")))
	require.NoError(t, err)

	snap := &Snapshot{}
	snap.Add([]string{"Docs"}, StorageProps{VersionID: "d", IsDir: true})
	snap.Add([]string{"Docs", "Report.PDF"}, fileProps("1"))

	touched, err := tr.MergeSnapshot("csp", snap)
	require.NoError(t, err)
	assert.Len(t, touched, 3)

	report, ok := tr.Get(Path{"docs", "report.pdf"})
	require.True(t, ok)
	assert.Equal(t, "1", report.Storages["csp"].VersionID)
	assert.Equal(t, "Report.PDF", report.Names["csp"])

	docs, _ := tr.Get(Path{"docs"})
	assert.Equal(t, "Docs", docs.Names["csp"])

	assert.NotContains(t, stale.Storages, "csp", "absent items lose the storage entry")
	assert.Contains(t, stale.Storages, "local")
}

func TestDiff(t *testing.T) {
	prev := &Snapshot{}
	prev.Add([]string{"keep.txt"}, fileProps("1"))
	prev.Add([]string{"change.txt"}, fileProps("1"))
	prev.Add([]string{"gone"}, StorageProps{VersionID: "d", IsDir: true})
	prev.Add([]string{"gone", "inner.txt"}, fileProps("1"))

	next := &Snapshot{}
	next.Add([]string{"keep.txt"}, fileProps("1"))
	next.Add([]string{"change.txt"}, fileProps("2"))
	next.Add([]string{"new.txt"}, fileProps("1"))

	changes := Diff(prev, next)
	require.Len(t, changes, 3)
	assert.Equal(t, ChangeModify, changes[0].Kind)
	assert.Equal(t, []string{"change.txt"}, changes[0].Path)
	assert.Equal(t, ChangeCreate, changes[1].Kind)
	assert.Equal(t, []string{"new.txt"}, changes[1].Path)
	assert.Equal(t, ChangeDelete, changes[2].Kind)
	assert.Equal(t, []string{"gone"}, changes[2].Path)

	assert.Empty(t, Diff(next, next))
	assert.Len(t, Diff(nil, next), 3)
}

func TestExportImport(t *testing.T) {
	tr := New()
	n := tr.GetOrCreate(Path{"a.txt"})
	n.Desired["local"] = struct{}{}
	n.Desired["csp"] = struct{}{}
	n.Equivalents.New = map[string]string{"local": "2", "csp": "4"}
	tr.GetOrCreate(Path{"untracked"})

	m := tr.Export()
	require.Len(t, m.Nodes, 1)
	assert.Equal(t, []string{"csp", "local"}, m.Nodes[0].Desired)

	restored := Import(m)
	got, ok := restored.Get(Path{"a.txt"})
	require.True(t, ok)
	assert.Equal(t, map[string]string{"local": "2", "csp": "4"}, got.Equivalents.New)
	assert.True(t, got.IsDesired("csp"))
	assert.Empty(t, got.Storages)
}
