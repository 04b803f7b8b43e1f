package workspace

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velvetcode/internal/models"
)

// sequentialIDs makes ids predictable in assertions.
func sequentialIDs(t *Tree) {
	n := 0
	t.newID = func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func TestNewDefaultSeedsWelcomeFile(t *testing.T) {
	tree := NewDefault()

	files, root := tree.Snapshot()
	require.Len(t, files, 1)
	require.Len(t, root, 1)

	welcome := files[root[0]]
	assert.Equal(t, DefaultFileName, welcome.Name)
	assert.Equal(t, DefaultFileContent, welcome.File.Content)
	assert.Equal(t, "javascript", welcome.File.Language)
	assert.Equal(t, root[0], tree.ActiveFileID())
	assert.NoError(t, tree.Check())
}

func TestCreateFileSetsActiveAndLanguage(t *testing.T) {
	tree := New()
	node, err := tree.CreateNode("a.ts", models.KindFile, "")
	require.NoError(t, err)

	assert.Equal(t, models.KindFile, node.Kind())
	assert.Equal(t, "typescript", node.File.Language)
	assert.Equal(t, "", node.File.Content)
	assert.Equal(t, node.ID, tree.ActiveFileID())
}

func TestCreateFolderKeepsActive(t *testing.T) {
	tree := NewDefault()
	before := tree.ActiveFileID()

	folder, err := tree.CreateNode("src", models.KindFolder, "")
	require.NoError(t, err)

	assert.True(t, folder.IsFolder())
	assert.Empty(t, folder.Folder.Children)
	assert.Equal(t, before, tree.ActiveFileID())
}

func TestCreateUnderParentAppendsInOrder(t *testing.T) {
	tree := New()
	sequentialIDs(tree)
	folder, err := tree.CreateNode("src", models.KindFolder, "")
	require.NoError(t, err)

	a, err := tree.CreateNode("a.py", models.KindFile, folder.ID)
	require.NoError(t, err)
	b, err := tree.CreateNode("b.py", models.KindFile, folder.ID)
	require.NoError(t, err)

	got, err := tree.Get(folder.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, got.Folder.Children)
	assert.Equal(t, folder.ID, a.ParentID)

	_, root := tree.Snapshot()
	assert.Equal(t, []string{folder.ID}, root)
	assert.NoError(t, tree.Check())
}

func TestCreateRejectsBadParentNameAndKind(t *testing.T) {
	tree := NewDefault()
	fileID := tree.ActiveFileID()

	_, err := tree.CreateNode("x.js", models.KindFile, "missing")
	assert.ErrorIs(t, err, ErrParentNotFound)

	_, err = tree.CreateNode("x.js", models.KindFile, fileID)
	assert.ErrorIs(t, err, ErrParentNotFound, "files cannot hold children")

	_, err = tree.CreateNode("   ", models.KindFolder, "")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = tree.CreateNode("x", models.NodeKind("symlink"), "")
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.Equal(t, 1, tree.Len())
	assert.NoError(t, tree.Check())
}

func TestUploadNodeKeepsContent(t *testing.T) {
	tree := NewDefault()
	node, err := tree.UploadNode("main.java", "class Main {}", "")
	require.NoError(t, err)

	assert.Equal(t, "class Main {}", node.File.Content)
	assert.Equal(t, "java", node.File.Language)
	assert.Equal(t, node.ID, tree.ActiveFileID())
}

func TestUpdateContentOnlyTouchesFiles(t *testing.T) {
	tree := NewDefault()
	welcome := tree.ActiveFileID()
	other, _ := tree.CreateNode("b.md", models.KindFile, "")
	folder, _ := tree.CreateNode("docs", models.KindFolder, "")

	assert.True(t, tree.UpdateContent(welcome, "new"))
	assert.False(t, tree.UpdateContent(folder.ID, "nope"))
	assert.False(t, tree.UpdateContent("missing", "nope"))

	w, _ := tree.Get(welcome)
	b, _ := tree.Get(other.ID)
	assert.Equal(t, "new", w.File.Content)
	assert.Equal(t, "", b.File.Content)
}

func TestRenameRederivesLanguage(t *testing.T) {
	tree := NewDefault()
	id := tree.ActiveFileID()

	lang, ok := tree.RenameNode(id, "x.py")
	require.True(t, ok)
	assert.Equal(t, "python", lang)

	lang, ok = tree.RenameNode(id, "x.unknownext")
	require.True(t, ok)
	assert.Equal(t, "plaintext", lang)

	n, _ := tree.Get(id)
	assert.Equal(t, "x.unknownext", n.Name)
	assert.Equal(t, "plaintext", n.File.Language)
}

func TestRenameFolderAndMissing(t *testing.T) {
	tree := New()
	folder, _ := tree.CreateNode("src", models.KindFolder, "")

	lang, ok := tree.RenameNode(folder.ID, "lib.js")
	assert.True(t, ok)
	assert.Equal(t, "", lang)

	_, ok = tree.RenameNode("missing", "a.js")
	assert.False(t, ok)
	_, ok = tree.RenameNode(folder.ID, "")
	assert.False(t, ok)
}

func TestDeleteFolderRemovesDescendants(t *testing.T) {
	tree := NewDefault()
	welcome := tree.ActiveFileID()
	src, _ := tree.CreateNode("src", models.KindFolder, "")
	lib, _ := tree.CreateNode("lib", models.KindFolder, src.ID)
	deep, _ := tree.CreateNode("deep.go", models.KindFile, lib.ID)
	top, _ := tree.CreateNode("top.c", models.KindFile, src.ID)

	newActive, ok := tree.DeleteNode(src.ID)
	require.True(t, ok)

	for _, id := range []string{src.ID, lib.ID, deep.ID, top.ID} {
		_, err := tree.Get(id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	assert.Equal(t, welcome, newActive)
	assert.Equal(t, 1, tree.Len())
	assert.NoError(t, tree.Check())
}

func TestDeleteNestedDetachesFromParent(t *testing.T) {
	tree := New()
	src, _ := tree.CreateNode("src", models.KindFolder, "")
	a, _ := tree.CreateNode("a.js", models.KindFile, src.ID)
	b, _ := tree.CreateNode("b.js", models.KindFile, src.ID)

	_, ok := tree.DeleteNode(a.ID)
	require.True(t, ok)

	got, _ := tree.Get(src.ID)
	assert.Equal(t, []string{b.ID}, got.Folder.Children)
	assert.NoError(t, tree.Check())
}

func TestDeleteActivePicksMostRecentRemainingFile(t *testing.T) {
	tree := NewDefault()
	older, _ := tree.CreateNode("older.js", models.KindFile, "")
	newer, _ := tree.CreateNode("newer.js", models.KindFile, "")
	tree.SetActive(older.ID)

	newActive, ok := tree.DeleteNode(older.ID)
	require.True(t, ok)
	assert.Equal(t, newer.ID, newActive)
}

func TestDeleteLastFileClearsActive(t *testing.T) {
	tree := NewDefault()
	folder, _ := tree.CreateNode("empty", models.KindFolder, "")

	newActive, ok := tree.DeleteNode(tree.ActiveFileID())
	require.True(t, ok)
	assert.Equal(t, "", newActive)
	assert.Equal(t, "", tree.ActiveFileID())
	assert.Equal(t, 1, tree.Len())

	_, err := tree.Get(folder.ID)
	assert.NoError(t, err)
}

func TestDeleteFolderHoldingActiveFile(t *testing.T) {
	tree := NewDefault()
	welcome := tree.ActiveFileID()
	src, _ := tree.CreateNode("src", models.KindFolder, "")
	inner, _ := tree.CreateNode("inner.ts", models.KindFile, src.ID)
	require.Equal(t, inner.ID, tree.ActiveFileID())

	newActive, _ := tree.DeleteNode(src.ID)
	assert.Equal(t, welcome, newActive)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	tree := NewDefault()
	active := tree.ActiveFileID()

	newActive, ok := tree.DeleteNode("missing")
	assert.False(t, ok)
	assert.Equal(t, active, newActive)
	assert.Equal(t, 1, tree.Len())
}

func TestSetActiveValidates(t *testing.T) {
	tree := NewDefault()
	welcome := tree.ActiveFileID()
	folder, _ := tree.CreateNode("src", models.KindFolder, "")

	assert.False(t, tree.SetActive(folder.ID))
	assert.False(t, tree.SetActive("missing"))
	assert.Equal(t, welcome, tree.ActiveFileID())

	other, _ := tree.CreateNode("b.js", models.KindFile, "")
	assert.True(t, tree.SetActive(welcome))
	assert.Equal(t, welcome, tree.ActiveFileID())
	assert.True(t, tree.SetActive(other.ID))
}

func TestSnapshotIsDetached(t *testing.T) {
	tree := NewDefault()
	id := tree.ActiveFileID()
	files, root := tree.Snapshot()

	tree.UpdateContent(id, "changed")
	tree.CreateNode("b.js", models.KindFile, "")

	assert.Equal(t, DefaultFileContent, files[id].File.Content)
	assert.Len(t, root, 1)
}

func TestIDCollisionIsRerolled(t *testing.T) {
	tree := New()
	draws := []string{"dup", "dup", "fresh"}
	tree.newID = func() string {
		id := draws[0]
		draws = draws[1:]
		return id
	}
	a, err := tree.CreateNode("a.js", models.KindFile, "")
	require.NoError(t, err)
	b, err := tree.CreateNode("b.js", models.KindFile, "")
	require.NoError(t, err)

	assert.Equal(t, "dup", a.ID)
	assert.Equal(t, "fresh", b.ID)
}

func TestRandomCreateDeleteKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tree := NewDefault()

	for step := 0; step < 2000; step++ {
		files, _ := tree.Snapshot()
		ids := make([]string, 0, len(files))
		var folders []string
		for id, n := range files {
			ids = append(ids, id)
			if n.IsFolder() {
				folders = append(folders, id)
			}
		}

		switch op := rng.Intn(10); {
		case op < 4:
			parent := ""
			if len(folders) > 0 && rng.Intn(2) == 0 {
				parent = folders[rng.Intn(len(folders))]
			}
			_, err := tree.CreateNode(fmt.Sprintf("f%d.js", step), models.KindFile, parent)
			require.NoError(t, err)
		case op < 7:
			parent := ""
			if len(folders) > 0 && rng.Intn(2) == 0 {
				parent = folders[rng.Intn(len(folders))]
			}
			_, err := tree.CreateNode(fmt.Sprintf("d%d", step), models.KindFolder, parent)
			require.NoError(t, err)
		default:
			if len(ids) > 0 {
				tree.DeleteNode(ids[rng.Intn(len(ids))])
			}
		}

		require.NoError(t, tree.Check(), "step %d", step)
	}
}

func TestLanguageFor(t *testing.T) {
	cases := map[string]string{
		"a.js":       "javascript",
		"a.JSX":      "javascript",
		"a.tsx":      "typescript",
		"main.c":     "cpp",
		"README.md":  "markdown",
		"Makefile":   "plaintext",
		"notes.txt":  "plaintext",
		"archive.gz": "plaintext",
		"a.b.py":     "python",
	}
	for name, want := range cases {
		assert.Equal(t, want, LanguageFor(name), name)
	}
}
