package filesystem

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/karrick/godirwalk"
)

// entry is a single validated child of a directory.
type entry struct {
	// The name of the child as it appears in its parent directory.
	name string
	// The resolved location of the child on the disk.
	resolved string
	// The resolved location relative to the root, using forward slashes.
	relative string
	info     os.FileInfo
}

// readDir returns the validated children of an already resolved directory.
// Every child is passed back through the sandbox since any of them can be a
// symlink pointing somewhere else. Symlinks whose target does not exist are
// skipped since they are neither a file nor a directory.
func (fs *Filesystem) readDir(root string, dir string) ([]entry, error) {
	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newPathError(ErrCodeInvalidPath, dir, err)
		}
		return nil, newPathError(ErrCodeAccess, dir, err)
	}
	sort.Slice(dirents, func(i, j int) bool {
		return compareNames(dirents[i].Name(), dirents[j].Name()) < 0
	})

	out := make([]entry, 0, len(dirents))
	for _, de := range dirents {
		child, err := fs.listChild(root, dir, de)
		if err != nil {
			return nil, err
		}
		if child != nil {
			out = append(out, *child)
		}
	}
	return out, nil
}

func (fs *Filesystem) listChild(root string, dir string, de *godirwalk.Dirent) (*entry, error) {
	p := filepath.Join(dir, de.Name())
	resolved, err := fs.safeChild(root, p)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && de.IsSymlink() {
			fs.log().WithField("path", p).Debug("skipping symlink with a missing target")
			return nil, nil
		}
		return nil, newPathError(ErrCodeAccess, p, err)
	}
	rel, err := relativePath(root, resolved)
	if err != nil {
		return nil, err
	}
	return &entry{name: de.Name(), resolved: resolved, relative: rel, info: st}, nil
}

// removeTree deletes a directory and all of its contents. Files are removed as
// they are visited, and directories once all of their children are gone. The
// walk does not follow symlinks, so a link is removed rather than its target.
func (fs *Filesystem) removeTree(dir string) error {
	var failure error
	remove := func(p string) error {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			failure = newDeletionError(p, err)
			return failure
		}
		return nil
	}

	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de.IsDir() && !de.IsSymlink() {
				return nil
			}
			return remove(p)
		},
		PostChildrenCallback: func(p string, _ *godirwalk.Dirent) error {
			return remove(p)
		},
	})
	// Walk may wrap the error returned by a callback, so prefer the one that
	// was captured since it carries the path that failed.
	if failure != nil {
		return failure
	}
	if err != nil {
		return newDeletionError(dir, err)
	}
	return nil
}

// compareNames orders two names alphabetically, ignoring case.
func compareNames(a string, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
