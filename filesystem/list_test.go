package filesystem

import (
	"fmt"
	"os"
	"testing"

	. "github.com/franela/goblin"
)

func names(items []ListingItem) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.Name)
	}
	return out
}

func TestFilesystem_ListDirectory(t *testing.T) {
	g := Goblin(t)
	fs, rfs := NewFs(WithMimeProber(staticProber("text/plain")), WithListWorkers(2))
	defer rfs.cleanup()

	g.Describe("ListDirectory", func() {
		g.It("returns the immediate children of a directory", func() {
			g.Assert(rfs.CreateRootFileFromString("docs/a.txt", "aaa")).IsNil()
			g.Assert(rfs.CreateRootFileFromString("docs/sub/deep.txt", "deep")).IsNil()

			page, err := fs.ListDirectory("docs", 0, 10, "")
			g.Assert(err).IsNil()
			g.Assert(page.TotalElements).Equal(int64(2))
			g.Assert(page.TotalPages).Equal(1)
			g.Assert(page.PageNumber).Equal(0)
			g.Assert(len(page.Content)).Equal(2)

			file := page.Content[0]
			g.Assert(file.Name).Equal("a.txt")
			g.Assert(file.Path).Equal("docs/a.txt")
			g.Assert(file.Directory).IsFalse()
			g.Assert(file.Size).Equal(int64(3))
			g.Assert(*file.MimeType).Equal("text/plain")

			dir := page.Content[1]
			g.Assert(dir.Name).Equal("sub")
			g.Assert(dir.Path).Equal("docs/sub")
			g.Assert(dir.Directory).IsTrue()
			g.Assert(dir.Size).Equal(int64(0))
			g.Assert(dir.MimeType == nil).IsTrue()
		})

		g.It("returns an empty page for an empty directory", func() {
			page, err := fs.ListDirectory("", 0, 10, "")
			g.Assert(err).IsNil()
			g.Assert(page.TotalElements).Equal(int64(0))
			g.Assert(page.TotalPages).Equal(0)
			g.Assert(page.Content == nil).IsFalse()
			g.Assert(len(page.Content)).Equal(0)
		})

		g.It("returns an empty page past the end of the listing", func() {
			for i := 0; i < 5; i++ {
				g.Assert(rfs.CreateRootFileFromString(fmt.Sprintf("file_%d.txt", i), "x")).IsNil()
			}

			page, err := fs.ListDirectory("", 2, 10, "")
			g.Assert(err).IsNil()
			g.Assert(page.TotalElements).Equal(int64(5))
			g.Assert(page.TotalPages).Equal(1)
			g.Assert(page.PageNumber).Equal(2)
			g.Assert(len(page.Content)).Equal(0)
		})

		g.It("returns the remaining entries on the last page", func() {
			for i := 0; i < 23; i++ {
				g.Assert(rfs.CreateRootFileFromString(fmt.Sprintf("file_%02d.txt", i), "x")).IsNil()
			}

			page, err := fs.ListDirectory("", 2, 10, "name,asc")
			g.Assert(err).IsNil()
			g.Assert(page.TotalElements).Equal(int64(23))
			g.Assert(page.TotalPages).Equal(3)
			g.Assert(names(page.Content)).Equal([]string{"file_20.txt", "file_21.txt", "file_22.txt"})

			page, err = fs.ListDirectory("", 1, 10, "name,asc")
			g.Assert(err).IsNil()
			g.Assert(len(page.Content)).Equal(10)
			g.Assert(page.Content[0].Name).Equal("file_10.txt")
		})

		g.It("sorts entries by name ignoring case", func() {
			g.Assert(rfs.CreateRootFileFromString("b.txt", "x")).IsNil()
			g.Assert(rfs.CreateRootFileFromString("A.txt", "x")).IsNil()
			g.Assert(rfs.CreateRootFileFromString("c.txt", "x")).IsNil()

			page, err := fs.ListDirectory("", 0, 10, "name,asc")
			g.Assert(err).IsNil()
			g.Assert(names(page.Content)).Equal([]string{"A.txt", "b.txt", "c.txt"})

			page, err = fs.ListDirectory("", 0, 10, "name,desc")
			g.Assert(err).IsNil()
			g.Assert(names(page.Content)).Equal([]string{"c.txt", "b.txt", "A.txt"})

			page, err = fs.ListDirectory("", 0, 10, "")
			g.Assert(err).IsNil()
			g.Assert(names(page.Content)).Equal([]string{"A.txt", "b.txt", "c.txt"})

			page, err = fs.ListDirectory("", 0, 10, "size,desc")
			g.Assert(err).IsNil()
			g.Assert(names(page.Content)).Equal([]string{"c.txt", "b.txt", "A.txt"})
		})

		g.It("sorts before cutting out a page", func() {
			for _, n := range []string{"e", "d", "c", "b", "a"} {
				g.Assert(rfs.CreateRootFileFromString(n+".txt", "x")).IsNil()
			}

			page, err := fs.ListDirectory("", 0, 2, "name,desc")
			g.Assert(err).IsNil()
			g.Assert(names(page.Content)).Equal([]string{"e.txt", "d.txt"})
			g.Assert(page.TotalPages).Equal(3)
		})

		g.It("skips symlinks whose target does not exist", func() {
			g.Assert(os.Symlink(rfs.path("missing"), rfs.path("broken"))).IsNil()
			g.Assert(rfs.CreateRootFileFromString("file.txt", "x")).IsNil()

			page, err := fs.ListDirectory("", 0, 10, "")
			g.Assert(err).IsNil()
			g.Assert(names(page.Content)).Equal([]string{"file.txt"})
		})

		g.It("lists a symlink to a parent directory as a directory", func() {
			g.Assert(rfs.CreateRootDirectory("docs")).IsNil()
			g.Assert(os.Symlink(rfs.path(""), rfs.path("docs/up"))).IsNil()

			page, err := fs.ListDirectory("docs", 0, 10, "")
			g.Assert(err).IsNil()
			g.Assert(len(page.Content)).Equal(1)
			g.Assert(page.Content[0].Name).Equal("up")
			g.Assert(page.Content[0].Path).Equal(".")
			g.Assert(page.Content[0].Directory).IsTrue()
		})

		g.It("returns an error for an invalid page or size", func() {
			_, err := fs.ListDirectory("", -1, 10, "")
			g.Assert(IsErrorCode(err, ErrCodeInvalidArgument)).IsTrue()

			_, err = fs.ListDirectory("", 0, 0, "")
			g.Assert(IsErrorCode(err, ErrCodeInvalidArgument)).IsTrue()

			_, err = fs.ListDirectory("", 0, -5, "")
			g.Assert(IsErrorCode(err, ErrCodeInvalidArgument)).IsTrue()
		})

		g.It("returns an error if the directory does not exist", func() {
			_, err := fs.ListDirectory("missing", 0, 10, "")
			g.Assert(IsErrorCode(err, ErrCodeInvalidPath)).IsTrue()
		})

		g.It("returns an error if the path is a file", func() {
			g.Assert(rfs.CreateRootFileFromString("file.txt", "x")).IsNil()

			_, err := fs.ListDirectory("file.txt", 0, 10, "")
			g.Assert(IsErrorCode(err, ErrCodeInvalidPath)).IsTrue()
		})

		g.AfterEach(func() {
			rfs.reset()
		})
	})
}

func TestParseSort(t *testing.T) {
	g := Goblin(t)

	g.Describe("ParseSort", func() {
		g.It("parses a field and direction", func() {
			g.Assert(ParseSort("name,desc")).Equal(Sort{Key: SortByName, Descending: true})
			g.Assert(ParseSort("name,DESC")).Equal(Sort{Key: SortByName, Descending: true})
			g.Assert(ParseSort("name,asc")).Equal(Sort{Key: SortByName})
			g.Assert(ParseSort(" name , desc ")).Equal(Sort{Key: SortByName, Descending: true})
		})

		g.It("falls back to sorting by name in ascending order", func() {
			g.Assert(ParseSort("")).Equal(Sort{Key: SortByName})
			g.Assert(ParseSort("name")).Equal(Sort{Key: SortByName})
			g.Assert(ParseSort("modified,sideways")).Equal(Sort{Key: SortByName})
			g.Assert(ParseSort(",desc")).Equal(Sort{Key: SortByName, Descending: true})
		})
	})
}

func TestPaginate(t *testing.T) {
	g := Goblin(t)

	g.Describe("paginate", func() {
		items := []int{1, 2, 3, 4, 5, 6, 7}

		g.It("cuts out the requested window", func() {
			p := paginate(items, 1, 3)
			g.Assert(p.Content).Equal([]int{4, 5, 6})
			g.Assert(p.TotalPages).Equal(3)
			g.Assert(p.TotalElements).Equal(int64(7))

			p = paginate(items, 2, 3)
			g.Assert(p.Content).Equal([]int{7})
		})

		g.It("counts an exact multiple of the page size correctly", func() {
			p := paginate(items[:6], 0, 3)
			g.Assert(p.TotalPages).Equal(2)
		})

		g.It("does not overflow for very large page numbers", func() {
			p := paginate(items, int(^uint(0)>>1), 3)
			g.Assert(len(p.Content)).Equal(0)
			g.Assert(p.TotalPages).Equal(3)
		})
	})
}
