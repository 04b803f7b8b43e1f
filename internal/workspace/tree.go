// Package workspace holds a room's file tree: the node mapping, the root
// order, and the active file pointer. A Tree is not safe for concurrent use;
// the owning room serializes access.
package workspace

import (
	"errors"
	"fmt"
	"strings"

	"velvetcode/internal/models"
	"velvetcode/internal/utils"
)

const (
	DefaultFileName    = "welcome.js"
	DefaultFileContent = "// Welcome to VelvetCode!\n// Start collaborating by creating files and folders\n\nconsole.log('Hello, World!');\n"
)

var (
	ErrNotFound       = errors.New("node not found")
	ErrParentNotFound = errors.New("parent folder not found")
	ErrInvalidName    = errors.New("invalid node name")
	ErrInvalidKind    = errors.New("invalid node kind")
)

type Tree struct {
	nodes  map[string]*models.Node
	root   []string
	active string

	// creation sequence per node, used to pick a replacement active file
	created map[string]uint64
	seq     uint64

	newID func() string
}

func New() *Tree {
	return &Tree{
		nodes:   make(map[string]*models.Node),
		root:    []string{},
		created: make(map[string]uint64),
		newID:   utils.NewID,
	}
}

// NewDefault returns a tree seeded with the welcome file, which is also active.
func NewDefault() *Tree {
	t := New()
	if _, err := t.UploadNode(DefaultFileName, DefaultFileContent, ""); err != nil {
		panic(fmt.Sprintf("seed default tree: %v", err))
	}
	return t
}

func (t *Tree) allocID() string {
	for {
		id := t.newID()
		if _, taken := t.nodes[id]; !taken {
			return id
		}
	}
}

// CreateNode adds an empty file or folder under parentID, or at the root when
// parentID is empty. New files become the active file.
func (t *Tree) CreateNode(name string, kind models.NodeKind, parentID string) (*models.Node, error) {
	switch kind {
	case models.KindFile:
		return t.addFile(name, "", parentID)
	case models.KindFolder:
		return t.addFolder(name, parentID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// UploadNode adds a file with caller-supplied content and makes it active.
func (t *Tree) UploadNode(name, content, parentID string) (*models.Node, error) {
	return t.addFile(name, content, parentID)
}

func (t *Tree) addFile(name, content, parentID string) (*models.Node, error) {
	n := &models.Node{
		Name:     name,
		ParentID: parentID,
		File:     &models.FileBody{Content: content, Language: LanguageFor(name)},
	}
	if err := t.attach(n); err != nil {
		return nil, err
	}
	t.active = n.ID
	return n.Clone(), nil
}

func (t *Tree) addFolder(name, parentID string) (*models.Node, error) {
	n := &models.Node{
		Name:     name,
		ParentID: parentID,
		Folder:   &models.FolderBody{Children: []string{}},
	}
	if err := t.attach(n); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (t *Tree) attach(n *models.Node) error {
	if strings.TrimSpace(n.Name) == "" {
		return ErrInvalidName
	}
	var parent *models.Node
	if n.ParentID != "" {
		p, ok := t.nodes[n.ParentID]
		if !ok || !p.IsFolder() {
			return fmt.Errorf("%w: %s", ErrParentNotFound, n.ParentID)
		}
		parent = p
	}

	n.ID = t.allocID()
	t.nodes[n.ID] = n
	t.seq++
	t.created[n.ID] = t.seq
	if parent != nil {
		parent.Folder.Children = append(parent.Folder.Children, n.ID)
	} else {
		t.root = append(t.root, n.ID)
	}
	return nil
}

// UpdateContent overwrites a file's content. Last write wins.
func (t *Tree) UpdateContent(fileID, content string) bool {
	n, ok := t.nodes[fileID]
	if !ok || !n.IsFile() {
		return false
	}
	n.File.Content = content
	return true
}

// RenameNode changes a node's name. For files the language is re-derived and
// returned; folders report an empty language.
func (t *Tree) RenameNode(id, newName string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok || strings.TrimSpace(newName) == "" {
		return "", false
	}
	n.Name = newName
	switch n.Kind() {
	case models.KindFile:
		n.File.Language = LanguageFor(newName)
		return n.File.Language, true
	default:
		return "", true
	}
}

// DeleteNode removes a node and, for folders, every descendant. It returns the
// active file afterwards, which is empty when no file remains.
func (t *Tree) DeleteNode(id string) (string, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return t.active, false
	}
	t.removeSubtree(id)

	if n.ParentID != "" {
		if parent, ok := t.nodes[n.ParentID]; ok && parent.IsFolder() {
			parent.Folder.Children = without(parent.Folder.Children, id)
		}
	} else {
		t.root = without(t.root, id)
	}

	if _, alive := t.nodes[t.active]; !alive {
		t.active = t.latestFile()
	}
	return t.active, true
}

// removeSubtree deletes children before their parent.
func (t *Tree) removeSubtree(id string) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	if n.IsFolder() {
		for _, child := range n.Folder.Children {
			t.removeSubtree(child)
		}
	}
	delete(t.nodes, id)
	delete(t.created, id)
}

func (t *Tree) latestFile() string {
	var (
		best    string
		bestSeq uint64
	)
	for id, n := range t.nodes {
		if !n.IsFile() {
			continue
		}
		if s := t.created[id]; s > bestSeq {
			best, bestSeq = id, s
		}
	}
	return best
}

// SetActive focuses an existing file. Folders and unknown ids are ignored.
func (t *Tree) SetActive(fileID string) bool {
	n, ok := t.nodes[fileID]
	if !ok || !n.IsFile() {
		return false
	}
	t.active = fileID
	return true
}

func (t *Tree) ActiveFileID() string { return t.active }

func (t *Tree) Len() int { return len(t.nodes) }

// Get returns a copy of the node with the given id.
func (t *Tree) Get(id string) (*models.Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n.Clone(), nil
}

// Snapshot copies the node mapping and root order.
func (t *Tree) Snapshot() (map[string]*models.Node, []string) {
	files := make(map[string]*models.Node, len(t.nodes))
	for id, n := range t.nodes {
		files[id] = n.Clone()
	}
	root := make([]string, len(t.root))
	copy(root, t.root)
	return files, root
}

// Check verifies the structural invariants: every non-root node is listed
// exactly once by its parent folder, every root node appears exactly once in
// the root order, and the active file (if any) is a live file.
func (t *Tree) Check() error {
	listed := make(map[string]int, len(t.nodes))
	for _, id := range t.root {
		listed[id]++
		n, ok := t.nodes[id]
		if !ok {
			return fmt.Errorf("root lists missing node %s", id)
		}
		if n.ParentID != "" {
			return fmt.Errorf("root lists node %s with parent %s", id, n.ParentID)
		}
	}
	for id, n := range t.nodes {
		if !n.IsFolder() {
			continue
		}
		for _, child := range n.Folder.Children {
			listed[child]++
			c, ok := t.nodes[child]
			if !ok {
				return fmt.Errorf("folder %s lists missing child %s", id, child)
			}
			if c.ParentID != id {
				return fmt.Errorf("folder %s lists %s whose parent is %q", id, child, c.ParentID)
			}
		}
	}
	for id := range t.nodes {
		if listed[id] != 1 {
			return fmt.Errorf("node %s listed %d times", id, listed[id])
		}
	}
	if t.active != "" {
		n, ok := t.nodes[t.active]
		if !ok || !n.IsFile() {
			return fmt.Errorf("active file %s is not a live file", t.active)
		}
	}
	return nil
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
