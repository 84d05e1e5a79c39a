package filesystem

import (
	"path/filepath"
)

// TreeNode is a directory along with everything beneath it. Each node owns its
// children, there are no references back up the tree.
type TreeNode struct {
	Name    string      `json:"name"`
	Path    string      `json:"path"`
	Folders []*TreeNode `json:"folders"`
	Files   []FileEntry `json:"files"`
}

// FileEntry is a regular file within a TreeNode.
type FileEntry struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	MimeType *string `json:"mimeType"`
}

// Tree returns the full directory tree starting at the given directory. The
// paths of every node are relative to the root of the filesystem rather than
// the starting directory. If any entry in the tree cannot be validated or read
// no tree is returned at all.
func (fs *Filesystem) Tree(p string) (*TreeNode, error) {
	root, err := fs.canonicalRoot()
	if err != nil {
		return nil, err
	}
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, err
	}
	if err := fs.requireDirectory(p, cleaned); err != nil {
		return nil, err
	}
	return fs.readFolder(root, filepath.Base(cleaned), cleaned, map[string]struct{}{})
}

// readFolder builds the node for dir. The visiting set holds the resolved
// directories currently being read on the way down to dir.
func (fs *Filesystem) readFolder(root string, name string, dir string, visiting map[string]struct{}) (*TreeNode, error) {
	rel, err := relativePath(root, dir)
	if err != nil {
		return nil, err
	}
	node := &TreeNode{
		Name:    name,
		Path:    rel,
		Folders: []*TreeNode{},
		Files:   []FileEntry{},
	}

	visiting[dir] = struct{}{}
	defer delete(visiting, dir)

	children, err := fs.readDir(root, dir)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.info.IsDir() {
			// A directory that resolves to the one being read, to any of its
			// parents, or to any directory already open further up this
			// branch would never finish recursing.
			if _, ok := visiting[c.resolved]; ok || isWithin(c.resolved, dir) {
				fs.log().WithField("path", c.resolved).Debug("skipping symlink cycle while building directory tree")
				continue
			}
			sub, err := fs.readFolder(root, c.name, c.resolved, visiting)
			if err != nil {
				return nil, err
			}
			node.Folders = append(node.Folders, sub)
			continue
		}
		if !c.info.Mode().IsRegular() {
			fs.log().WithField("path", c.resolved).WithField("mode", c.info.Mode().String()).Debug("skipping special file while building directory tree")
			continue
		}
		st, err := fs.unsafeStat(c.relative, c.resolved)
		if err != nil {
			return nil, err
		}
		node.Files = append(node.Files, FileEntry{
			Name:     c.name,
			Path:     c.relative,
			Size:     st.Bytes(),
			MimeType: st.MimeType(),
		})
	}
	return node, nil
}
