package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"emperror.dev/errors"
	"golang.org/x/sync/errgroup"
)

// The maximum number of dangling symlinks that will be followed while
// resolving a single path that does not exist yet.
const maxLinkHops = 40

// IsIgnored checks if the given file or path is in the file denylist. If so,
// an Error is returned, otherwise nil is returned.
func (fs *Filesystem) IsIgnored(paths ...string) error {
	for _, p := range paths {
		sp, err := fs.SafePath(p)
		if err != nil {
			return err
		}
		root, err := fs.canonicalRoot()
		if err != nil {
			return err
		}
		rel, err := relativePath(root, sp)
		if err != nil {
			return err
		}
		if fs.denylist.MatchesPath(rel) {
			return errors.WithStack(&Error{code: ErrCodeDenylistFile, path: p, resolved: rel})
		}
	}
	return nil
}

// SafePath normalizes a path being passed in to ensure the caller is not able
// to escape from the root directory. Any symlinks along the path are resolved,
// and if the path does not exist yet the closest existing ancestor is resolved
// instead with the missing components appended to it. If the resulting path is
// still within the root it is returned, otherwise a path resolution error is.
func (fs *Filesystem) SafePath(p string) (string, error) {
	root, err := fs.canonicalRoot()
	if err != nil {
		return "", err
	}
	return fs.resolve(root, p, fs.unsafeFilePath(p), 0)
}

// safeChild validates an absolute path discovered while walking a directory
// that has already been resolved within the root.
func (fs *Filesystem) safeChild(root string, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		rel = p
	}
	return fs.resolve(root, rel, filepath.Clean(p), 0)
}

// resolve evaluates the symlinks for the cleaned absolute path r and confirms
// that the result is within the canonical root. The original request is only
// carried along for error reporting.
func (fs *Filesystem) resolve(root string, p string, r string, hops int) (string, error) {
	ep, err := filepath.EvalSymlinks(r)
	if err == nil {
		if !isWithin(root, ep) {
			return "", NewBadPathResolution(p, ep)
		}
		return ep, nil
	}
	if !isMissing(err) {
		return "", newPathError(ErrCodeAccess, p, errors.Wrap(err, "failed to evaluate symlink"))
	}

	// The requested path doesn't exist, so at this point we need to iterate up
	// the path chain until we hit a directory that _does_ exist and can be
	// validated.
	var suffix []string
	try := r
	for {
		parent := filepath.Dir(try)
		suffix = append([]string{filepath.Base(try)}, suffix...)
		if parent == try {
			return "", NewBadPathResolution(p, r)
		}
		try = parent

		t, err := filepath.EvalSymlinks(try)
		if err != nil {
			if isMissing(err) {
				continue
			}
			return "", newPathError(ErrCodeAccess, p, errors.Wrap(err, "failed to evaluate symlink"))
		}

		// If the closest existing ancestor isn't in the root there is clearly
		// an escape attempt going on, and we should NOT resolve this path.
		if !isWithin(root, t) {
			return "", NewBadPathResolution(p, t)
		}

		// The first missing component can still exist on the disk as a symlink
		// whose target is missing. Follow it so that writing through the link
		// cannot land outside the root.
		first := filepath.Join(t, suffix[0])
		if st, err := os.Lstat(first); err == nil && st.Mode()&os.ModeSymlink != 0 {
			if hops >= maxLinkHops {
				return "", newPathError(ErrCodeAccess, p, errors.New("too many levels of symbolic links"))
			}
			target, err := os.Readlink(first)
			if err != nil {
				return "", newPathError(ErrCodeAccess, p, err)
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(t, target)
			}
			return fs.resolve(root, p, filepath.Join(append([]string{target}, suffix[1:]...)...), hops+1)
		}

		// The components that are missing cannot be resolved any further, so
		// they are appended as-is to the resolved ancestor.
		return filepath.Join(append([]string{t}, suffix...)...), nil
	}
}

// canonicalRoot returns the root directory with all symlinks resolved. The
// root must exist and be a directory.
func (fs *Filesystem) canonicalRoot() (string, error) {
	abs, err := filepath.Abs(fs.root)
	if err != nil {
		return "", newPathError(ErrCodeInvalidPath, fs.root, err)
	}
	r, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", newPathError(ErrCodeInvalidPath, fs.root, errors.WithMessage(err, "root directory does not exist"))
	}
	st, err := os.Stat(r)
	if err != nil {
		return "", newPathError(ErrCodeInvalidPath, fs.root, err)
	}
	if !st.IsDir() {
		return "", newPathError(ErrCodeInvalidPath, fs.root, errors.New("root is not a directory"))
	}
	return r, nil
}

// Generate a path to the file by cleaning it up and appending the root path to
// it. This DOES NOT guarantee that the file resolves within the root directory.
func (fs *Filesystem) unsafeFilePath(p string) string {
	// Calling filepath.Clean on the joined directory will resolve it to the
	// absolute path, removing any ../ type of resolution arguments, and leaving
	// us with a direct path link.
	root, err := filepath.Abs(fs.root)
	if err != nil {
		root = fs.root
	}
	return filepath.Clean(filepath.Join(root, p))
}

// isWithin checks that the path is the root itself or one of its descendants,
// comparing whole path components so that "/data-evil" is not inside "/data".
func isWithin(root string, p string) bool {
	sep := string(filepath.Separator)
	return strings.HasPrefix(strings.TrimSuffix(p, sep)+sep, strings.TrimSuffix(root, sep)+sep)
}

// isMissing reports whether an error from resolving a path means that some
// component of it does not exist.
func isMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// relativePath returns the location of p relative to the root using forward
// slashes. The root itself is returned as ".".
func relativePath(root string, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", newPathError(ErrCodeAccess, p, err)
	}
	return filepath.ToSlash(rel), nil
}

// ParallelSafePath executes the fs.SafePath function in parallel against an
// array of paths. If any of the calls fails an error will be returned. The
// cleaned paths are returned in the same order they were provided.
func (fs *Filesystem) ParallelSafePath(paths []string) ([]string, error) {
	// Every routine writes to its own index, so no locking is needed here.
	cleaned := make([]string, len(paths))

	// Create an error group that we can use to run processes in parallel while
	// retaining the ability to cancel the entire process immediately should any
	// of it fail.
	g, ctx := errgroup.WithContext(context.Background())

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				c, err := fs.SafePath(p)
				if err != nil {
					return err
				}
				cleaned[i] = c
				return nil
			}
		})
	}

	// Block until all of the routines finish and have returned a value.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cleaned, nil
}
