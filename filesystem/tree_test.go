package filesystem

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	. "github.com/franela/goblin"
)

type staticProber string

func (p staticProber) ProbeType(string) (string, error) {
	return string(p), nil
}

func TestFilesystem_Tree(t *testing.T) {
	g := Goblin(t)
	fs, rfs := NewFs(WithMimeProber(staticProber("text/plain")))
	defer rfs.cleanup()

	g.Describe("Tree", func() {
		g.It("returns an empty node for an empty root", func() {
			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(tree.Name).Equal("root")
			g.Assert(tree.Path).Equal(".")
			g.Assert(len(tree.Folders)).Equal(0)
			g.Assert(len(tree.Files)).Equal(0)
			g.Assert(tree.Folders == nil).IsFalse()
			g.Assert(tree.Files == nil).IsFalse()
		})

		g.It("includes a directory that was just created", func() {
			_, err := fs.CreateDirectory("x", "")
			g.Assert(err).IsNil()

			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(len(tree.Folders)).Equal(1)
			g.Assert(tree.Folders[0].Name).Equal("x")
			g.Assert(tree.Folders[0].Path).Equal("x")
		})

		g.It("returns every nested folder and file", func() {
			g.Assert(rfs.CreateRootFileFromString("top.txt", "top")).IsNil()
			g.Assert(rfs.CreateRootFileFromString("docs/a.txt", "aaaa")).IsNil()
			g.Assert(rfs.CreateRootFileFromString("docs/sub/b.txt", "bb")).IsNil()
			g.Assert(rfs.CreateRootDirectory("Archive")).IsNil()

			tree, err := fs.Tree("/")
			g.Assert(err).IsNil()

			g.Assert(len(tree.Files)).Equal(1)
			g.Assert(tree.Files[0].Name).Equal("top.txt")
			g.Assert(tree.Files[0].Path).Equal("top.txt")
			g.Assert(tree.Files[0].Size).Equal(int64(3))
			g.Assert(*tree.Files[0].MimeType).Equal("text/plain")

			g.Assert(len(tree.Folders)).Equal(2)
			g.Assert(tree.Folders[0].Name).Equal("Archive")
			g.Assert(tree.Folders[1].Name).Equal("docs")

			docs := tree.Folders[1]
			g.Assert(docs.Path).Equal("docs")
			g.Assert(len(docs.Files)).Equal(1)
			g.Assert(docs.Files[0].Path).Equal("docs/a.txt")
			g.Assert(docs.Files[0].Size).Equal(int64(4))
			g.Assert(len(docs.Folders)).Equal(1)
			g.Assert(docs.Folders[0].Path).Equal("docs/sub")
			g.Assert(docs.Folders[0].Files[0].Path).Equal("docs/sub/b.txt")
		})

		g.It("uses paths relative to the root when starting below it", func() {
			g.Assert(rfs.CreateRootFileFromString("docs/sub/b.txt", "bb")).IsNil()

			tree, err := fs.Tree("docs/sub")
			g.Assert(err).IsNil()
			g.Assert(tree.Name).Equal("sub")
			g.Assert(tree.Path).Equal("docs/sub")
			g.Assert(tree.Files[0].Path).Equal("docs/sub/b.txt")
		})

		g.It("skips symlinks that point back to a parent directory", func() {
			g.Assert(rfs.CreateRootFileFromString("docs/a.txt", "a")).IsNil()
			g.Assert(os.Symlink(rfs.path("docs"), rfs.path("docs/loop"))).IsNil()
			g.Assert(os.Symlink(rfs.path(""), rfs.path("docs/up"))).IsNil()

			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(len(tree.Folders)).Equal(1)
			g.Assert(len(tree.Folders[0].Folders)).Equal(0)
			g.Assert(len(tree.Folders[0].Files)).Equal(1)
		})

		g.It("skips symlinks that point at each other from sibling directories", func() {
			g.Assert(rfs.CreateRootDirectory("x")).IsNil()
			g.Assert(rfs.CreateRootDirectory("y")).IsNil()
			g.Assert(os.Symlink(rfs.path("y"), rfs.path("x/toy"))).IsNil()
			g.Assert(os.Symlink(rfs.path("x"), rfs.path("y/tox"))).IsNil()

			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(len(tree.Folders)).Equal(2)

			x := tree.Folders[0]
			g.Assert(x.Name).Equal("x")
			g.Assert(len(x.Folders)).Equal(1)
			g.Assert(x.Folders[0].Name).Equal("toy")
			g.Assert(x.Folders[0].Path).Equal("y")
			g.Assert(len(x.Folders[0].Folders)).Equal(0)

			y := tree.Folders[1]
			g.Assert(y.Name).Equal("y")
			g.Assert(len(y.Folders)).Equal(1)
			g.Assert(y.Folders[0].Name).Equal("tox")
			g.Assert(y.Folders[0].Path).Equal("x")
			g.Assert(len(y.Folders[0].Folders)).Equal(0)
		})

		g.It("skips entries that are not regular files or directories", func() {
			g.Assert(rfs.CreateRootFileFromString("file.txt", "a")).IsNil()
			g.Assert(syscall.Mkfifo(rfs.path("pipe"), 0o644)).IsNil()

			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(len(tree.Folders)).Equal(0)
			g.Assert(len(tree.Files)).Equal(1)
			g.Assert(tree.Files[0].Name).Equal("file.txt")
		})

		g.It("skips symlinks whose target does not exist", func() {
			g.Assert(os.Symlink(rfs.path("missing"), rfs.path("broken"))).IsNil()
			g.Assert(rfs.CreateRootFileFromString("file.txt", "a")).IsNil()

			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(len(tree.Files)).Equal(1)
			g.Assert(tree.Files[0].Name).Equal("file.txt")
		})

		g.It("reports symlinked files by their resolved location", func() {
			g.Assert(rfs.CreateRootFileFromString("real/data.txt", "data")).IsNil()
			g.Assert(os.Symlink(rfs.path("real/data.txt"), rfs.path("link.txt"))).IsNil()

			tree, err := fs.Tree("")
			g.Assert(err).IsNil()
			g.Assert(len(tree.Files)).Equal(1)
			g.Assert(tree.Files[0].Name).Equal("link.txt")
			g.Assert(tree.Files[0].Path).Equal("real/data.txt")
		})

		g.It("returns an error if the directory does not exist", func() {
			_, err := fs.Tree("missing")
			g.Assert(IsErrorCode(err, ErrCodeInvalidPath)).IsTrue()
		})

		g.It("returns an error if the path is a file", func() {
			g.Assert(rfs.CreateRootFileFromString("file.txt", "a")).IsNil()

			_, err := fs.Tree("file.txt")
			g.Assert(IsErrorCode(err, ErrCodeInvalidPath)).IsTrue()
		})

		g.It("returns an error if the path is outside the root", func() {
			g.Assert(os.MkdirAll(filepath.Join(rfs.root, "outside"), 0o755)).IsNil()

			_, err := fs.Tree("../outside")
			g.Assert(IsErrorCode(err, ErrCodePathResolution)).IsTrue()
		})

		g.AfterEach(func() {
			rfs.reset()
		})
	})
}
