package gitmirror

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"devunity/internal/domain"
)

// File is one mirrored document, Path being slash separated and relative to
// the folder root.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// Mirror manages the local working trees, one per folder.
type Mirror struct {
	root string
}

func NewMirror(root string) *Mirror {
	return &Mirror{root: root}
}

func (m *Mirror) Dir(folderID uint64) string {
	return filepath.Join(m.root, strconv.FormatUint(folderID, 10))
}

func (m *Mirror) Ensure(folderID uint64) (string, error) {
	dir := m.Dir(folderID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Mirror) HasRepository(folderID uint64) bool {
	info, err := os.Stat(filepath.Join(m.Dir(folderID), ".git"))
	return err == nil && info.IsDir()
}

func safePath(p string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") ||
		clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return "", fmt.Errorf("invalid mirror path %q", p)
	}
	return clean, nil
}

// WriteDocuments makes the working tree match files. Anything else outside
// .git is removed.
func (m *Mirror) WriteDocuments(folderID uint64, files []File) error {
	dir, err := m.Ensure(folderID)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(files))
	for _, f := range files {
		p, err := safePath(f.Path)
		if err != nil {
			return err
		}
		keep[p] = true
		target := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}

	existing, err := m.ListFiles(folderID)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if keep[p] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(p))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return removeEmptyDirs(dir)
}

// ListFiles returns the sorted relative paths of every file outside .git.
func (m *Mirror) ListFiles(folderID uint64) ([]string, error) {
	dir := m.Dir(folderID)
	files := []string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func (m *Mirror) ReadFiles(folderID uint64) ([]File, error) {
	paths, err := m.ListFiles(folderID)
	if err != nil {
		return nil, err
	}
	dir := m.Dir(folderID)
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: p, Content: string(b)})
	}
	return files, nil
}

func removeEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			if p != root {
				dirs = append(dirs, p)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// deepest first
	slices.Reverse(dirs)
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
	return nil
}

func fileName(title string) string {
	name := strings.TrimSpace(strings.NewReplacer("/", "_", "\\", "_").Replace(title))
	if name == "" || name == "." || name == ".." || name == ".git" {
		name = "untitled"
	}
	return name
}

// Layout maps every document under rootID to a unique folder-relative path.
// Documents whose folder is not reachable from the root are skipped. Within a
// directory the lower id keeps its name; a later sibling with the same name,
// file or folder, gets its id appended.
func Layout(rootID uint64, folders []domain.Folder, documents []domain.Document) map[uint64]string {
	children := make(map[uint64][]domain.Folder)
	for _, f := range folders {
		if f.ParentFolderID != nil && f.ID != rootID {
			children[*f.ParentFolderID] = append(children[*f.ParentFolderID], f)
		}
	}

	taken := make(map[string]bool)
	claim := func(dir, name string, id uint64) string {
		for taken[dir+name] {
			name = withID(name, id)
		}
		taken[dir+name] = true
		return name
	}

	// folders first, breadth-first, so they keep their names over documents
	prefixes := map[uint64]string{rootID: ""}
	queue := []uint64{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		subs := children[id]
		slices.SortFunc(subs, func(a, b domain.Folder) int { return cmp.Compare(a.ID, b.ID) })
		for _, f := range subs {
			if _, seen := prefixes[f.ID]; seen {
				continue
			}
			dir := prefixes[id]
			prefixes[f.ID] = dir + claim(dir, fileName(f.Name), f.ID) + "/"
			queue = append(queue, f.ID)
		}
	}

	docs := slices.Clone(documents)
	slices.SortFunc(docs, func(a, b domain.Document) int { return cmp.Compare(a.ID, b.ID) })
	paths := make(map[uint64]string, len(docs))
	for _, doc := range docs {
		if doc.FolderID == nil {
			continue
		}
		dir, ok := prefixes[*doc.FolderID]
		if !ok {
			continue
		}
		paths[doc.ID] = dir + claim(dir, fileName(doc.Title), doc.ID)
	}
	return paths
}

// withID inserts "-<id>" before the extension: main.go becomes main-7.go.
func withID(name string, id uint64) string {
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + "-" + strconv.FormatUint(id, 10) + ext
}
