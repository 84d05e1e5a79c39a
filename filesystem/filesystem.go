package filesystem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/juju/ratelimit"
	ignore "github.com/sabhiram/go-gitignore"
)

type Filesystem struct {
	// The root data directory path for this Filesystem instance. Every path
	// handed to the public methods is interpreted relative to it.
	root string

	denylist *ignore.GitIgnore
	prober   MimeProber

	// The maximum number of bytes per second that uploads can be written to
	// the disk at. Zero disables throttling.
	writeLimit int64

	// The number of workers used to stat the children of a directory listing.
	listWorkers int
}

// Option configures optional behavior of a Filesystem instance.
type Option func(fs *Filesystem)

// WithDenylist sets gitignore style patterns for paths that cannot be
// modified through this Filesystem.
func WithDenylist(patterns []string) Option {
	return func(fs *Filesystem) {
		fs.denylist = ignore.CompileIgnoreLines(patterns...)
	}
}

// WithMimeProber replaces the mime type detection used for files.
func WithMimeProber(p MimeProber) Option {
	return func(fs *Filesystem) {
		fs.prober = p
	}
}

// WithWriteLimit throttles file writes to the given number of bytes per second.
func WithWriteLimit(bps int64) Option {
	return func(fs *Filesystem) {
		fs.writeLimit = bps
	}
}

// WithListWorkers sets how many children of a directory are inspected at the
// same time when building a listing.
func WithListWorkers(n int) Option {
	return func(fs *Filesystem) {
		if n > 0 {
			fs.listWorkers = n
		}
	}
}

// New creates a new Filesystem instance rooted at the given directory. The
// directory is not touched until an operation is performed.
func New(root string, opts ...Option) *Filesystem {
	fs := &Filesystem{
		root:        root,
		denylist:    ignore.CompileIgnoreLines(),
		prober:      DetectProber{},
		listWorkers: 4,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Path returns the root path for the Filesystem instance.
func (fs *Filesystem) Path() string {
	return fs.root
}

// CreateDirectory creates a new directory (name) inside an existing parent
// directory (p) and returns the resolved location of the new directory.
func (fs *Filesystem) CreateDirectory(name string, p string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	parent, err := fs.SafePath(p)
	if err != nil {
		return "", err
	}
	if err := fs.requireDirectory(p, parent); err != nil {
		return "", err
	}
	cleaned, err := fs.SafePath(filepath.Join(p, name))
	if err != nil {
		return "", err
	}
	if err := fs.IsIgnored(filepath.Join(p, name)); err != nil {
		return "", err
	}
	if _, err := os.Lstat(cleaned); err == nil {
		return "", newPathError(ErrCodeAlreadyExists, filepath.Join(p, name), nil)
	}
	if err := os.Mkdir(cleaned, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", newPathError(ErrCodeAlreadyExists, filepath.Join(p, name), err)
		}
		return "", newPathError(ErrCodeAccess, filepath.Join(p, name), err)
	}
	return cleaned, nil
}

// DeleteDirectory removes a directory and everything beneath it. Entries are
// removed deepest first, and the first entry that cannot be removed stops the
// process. Anything removed before that point stays removed.
func (fs *Filesystem) DeleteDirectory(p string) error {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return err
	}
	root, err := fs.canonicalRoot()
	if err != nil {
		return err
	}
	// Block any whoopsies.
	if cleaned == root {
		return newPathError(ErrCodeInvalidPath, p, errors.New("cannot delete the root directory"))
	}
	if err := fs.IsIgnored(p); err != nil {
		return err
	}
	if err := fs.requireDirectory(p, cleaned); err != nil {
		return err
	}
	return fs.removeTree(cleaned)
}

// Rename moves (or renames) a file or directory. The destination itself does
// not need to exist, but the directory it is being moved into must. If the
// destination does exist it is replaced when the platform allows it.
func (fs *Filesystem) Rename(from string, to string) error {
	cleanedFrom, err := fs.SafePath(from)
	if err != nil {
		return errors.WithStack(err)
	}

	// Clean the destination before splitting it so that a trailing "/.." or
	// "/." cannot produce a different parent than the one being validated.
	dest := filepath.Clean(to)
	base := filepath.Base(dest)
	if base == string(filepath.Separator) || base == "." || base == ".." {
		return newFilesystemError(ErrCodeInvalidArgument, errors.New("a destination name must be provided"))
	}
	parent, err := fs.SafePath(filepath.Dir(dest))
	if err != nil {
		return errors.WithStack(err)
	}
	if err := fs.requireDirectory(filepath.Dir(dest), parent); err != nil {
		return err
	}
	cleanedTo := filepath.Join(parent, base)

	root, err := fs.canonicalRoot()
	if err != nil {
		return err
	}
	if cleanedFrom == root {
		return newPathError(ErrCodeInvalidPath, from, errors.New("cannot move the root directory"))
	}
	if err := fs.IsIgnored(from, to); err != nil {
		return err
	}
	if _, err := os.Lstat(cleanedFrom); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newPathError(ErrNotExist, from, err)
		}
		return newPathError(ErrCodeAccess, from, err)
	}

	if err := os.Rename(cleanedFrom, cleanedTo); err != nil {
		return newPathError(ErrCodeAccess, to, err)
	}
	return nil
}

// Writefile writes the contents of the reader to a file called name inside
// the given directory. The directory is created if it does not exist yet, and
// any existing file with the same name is truncated.
func (fs *Filesystem) Writefile(dir string, name string, r io.Reader) error {
	if err := validateName(name); err != nil {
		return err
	}
	folder, err := fs.SafePath(dir)
	if err != nil {
		return err
	}
	target := filepath.Join(dir, name)
	if err := fs.IsIgnored(target); err != nil {
		return err
	}

	if st, err := os.Stat(folder); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return newPathError(ErrCodeAccess, dir, err)
		}
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return newPathError(ErrCodeAccess, dir, err)
		}
	} else if !st.IsDir() {
		return newPathError(ErrCodeInvalidPath, dir, errors.New("not a directory"))
	}

	// The folder may have just been created, so resolve the file path again
	// now that the whole chain exists.
	cleaned, err := fs.SafePath(target)
	if err != nil {
		return err
	}
	if st, err := os.Stat(cleaned); err == nil && st.IsDir() {
		return errors.WithStack(&Error{code: ErrCodeIsDirectory, path: target, resolved: cleaned})
	}

	file, err := os.OpenFile(cleaned, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return newPathError(ErrCodeAccess, target, err)
	}

	var w io.Writer = file
	if fs.writeLimit > 0 {
		w = ratelimit.Writer(file, ratelimit.NewBucketWithRate(float64(fs.writeLimit), fs.writeLimit))
	}

	buf := make([]byte, 1024*4)
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		_ = file.Close()
		return newPathError(ErrCodeAccess, target, err)
	}
	// Some write failures are only reported once the file is closed, so the
	// upload has not landed until this succeeds.
	if err := file.Close(); err != nil {
		return newPathError(ErrCodeAccess, target, err)
	}
	return nil
}

// Delete removes a single file. Removing a file that is already gone is not
// an error. Directories must be removed using DeleteDirectory.
func (fs *Filesystem) Delete(p string) error {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return err
	}
	if err := fs.IsIgnored(p); err != nil {
		return err
	}
	st, err := os.Lstat(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return newPathError(ErrCodeAccess, p, err)
	}
	if st.IsDir() {
		return errors.WithStack(&Error{code: ErrCodeIsDirectory, path: p, resolved: cleaned})
	}
	if err := os.Remove(cleaned); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newPathError(ErrCodeAccess, p, err)
	}
	return nil
}

// Readfile writes the contents of a regular file into the provided writer.
func (fs *Filesystem) Readfile(p string, w io.Writer) error {
	f, _, err := fs.openRegular(p)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := bufio.NewReader(f).WriteTo(w); err != nil {
		return newPathError(ErrCodeAccess, p, err)
	}
	return nil
}

// Resource is an open file along with the details needed to serve it.
type Resource struct {
	File         *os.File
	Stat         Stat
	ETag         string
	LastModified time.Time
}

// Close closes the underlying file handle.
func (r *Resource) Close() error {
	return r.File.Close()
}

// Open returns an open handle to a regular file. The caller is responsible for
// closing the returned Resource.
func (fs *Filesystem) Open(p string) (*Resource, error) {
	f, st, err := fs.openRegular(p)
	if err != nil {
		return nil, err
	}
	mod := st.ModTime()
	return &Resource{
		File:         f,
		Stat:         st,
		ETag:         fmt.Sprintf("\"%d-%d\"", st.Size(), mod.UnixMilli()),
		LastModified: mod,
	}, nil
}

func (fs *Filesystem) openRegular(p string) (*os.File, Stat, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return nil, Stat{}, err
	}
	st, err := os.Stat(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Stat{}, newPathError(ErrNotExist, p, err)
		}
		return nil, Stat{}, newPathError(ErrCodeAccess, p, err)
	}
	if !st.Mode().IsRegular() {
		return nil, Stat{}, newPathError(ErrNotExist, p, nil)
	}
	f, err := os.Open(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, Stat{}, newPathError(ErrNotExist, p, err)
		}
		return nil, Stat{}, newPathError(ErrCodeAccess, p, err)
	}
	return f, Stat{FileInfo: st, Mimetype: fs.probe(cleaned, st)}, nil
}

// requireDirectory returns an InvalidPath error if the resolved path is not an
// existing directory.
func (fs *Filesystem) requireDirectory(p string, cleaned string) error {
	st, err := os.Stat(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newPathError(ErrCodeInvalidPath, p, errors.New("directory does not exist"))
		}
		return newPathError(ErrCodeAccess, p, err)
	}
	if !st.IsDir() {
		return newPathError(ErrCodeInvalidPath, p, errors.New("not a directory"))
	}
	return nil
}

// validateName ensures that a name provided for a new entry is a single path
// component.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return newFilesystemError(ErrCodeInvalidArgument, errors.Errorf("invalid entry name %q", name))
	}
	return nil
}
