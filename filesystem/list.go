package filesystem

import (
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/gammazero/workerpool"
)

// ListingItem is a single entry in a directory listing.
type ListingItem struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	Directory bool    `json:"directory"`
	Size      int64   `json:"size"`
	MimeType  *string `json:"mimeType"`
}

// Page is one window of a larger sorted result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	PageNumber    int   `json:"pageNumber"`
}

// SortKey is a field that a directory listing can be ordered by.
type SortKey string

const SortByName SortKey = "name"

type comparator func(a, b *ListingItem) int

var comparators = map[SortKey]comparator{
	SortByName: func(a, b *ListingItem) int {
		return compareNames(a.Name, b.Name)
	},
}

// Sort is a parsed sort token.
type Sort struct {
	Key        SortKey
	Descending bool
}

// ParseSort parses a "<field>,<asc|desc>" token. Unknown or missing fields
// fall back to sorting by name, and anything other than "desc" is ascending.
func ParseSort(s string) Sort {
	out := Sort{Key: SortByName}
	parts := strings.Split(s, ",")
	if f := strings.TrimSpace(parts[0]); f != "" {
		if _, ok := comparators[SortKey(f)]; ok {
			out.Key = SortKey(f)
		}
	}
	if len(parts) > 1 {
		out.Descending = strings.EqualFold(strings.TrimSpace(parts[1]), "desc")
	}
	return out
}

func (s Sort) apply(items []ListingItem) {
	cmp := comparators[s.Key]
	sort.SliceStable(items, func(i, j int) bool {
		if s.Descending {
			return cmp(&items[j], &items[i]) < 0
		}
		return cmp(&items[i], &items[j]) < 0
	})
}

// ListDirectory returns a single sorted page of the immediate children of the
// given directory. The page number starts at zero. Sorting is applied to every
// child before the page is cut out so that ordering does not depend on the
// size of a page.
func (fs *Filesystem) ListDirectory(p string, page int, size int, order string) (*Page[ListingItem], error) {
	if page < 0 {
		return nil, newFilesystemError(ErrCodeInvalidArgument, errors.New("page must be greater than or equal to 0"))
	}
	if size <= 0 {
		return nil, newFilesystemError(ErrCodeInvalidArgument, errors.New("size must be greater than 0"))
	}

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
	children, err := fs.readDir(root, cleaned)
	if err != nil {
		return nil, err
	}

	items, err := fs.listingItems(children)
	if err != nil {
		return nil, err
	}
	ParseSort(order).apply(items)

	return paginate(items, page, size), nil
}

// listingItems reads the metadata for every child using a pool of workers. If
// more than one child fails, the error for the first one in the listing is
// returned.
func (fs *Filesystem) listingItems(children []entry) ([]ListingItem, error) {
	// You must initialize the output of this directory as a non-nil value otherwise
	// when it is marshaled into a JSON object you'll just get 'null' back.
	out := make([]ListingItem, len(children))
	errs := make([]error, len(children))

	pool := workerpool.New(fs.listWorkers)
	for i, c := range children {
		i, c := i, c
		pool.Submit(func() {
			item := ListingItem{Name: c.name, Path: c.relative, Directory: c.info.IsDir()}
			if !item.Directory {
				st, err := fs.unsafeStat(c.relative, c.resolved)
				if err != nil {
					errs[i] = err
					return
				}
				item.Size = st.Bytes()
				item.MimeType = st.MimeType()
			}
			out[i] = item
		})
	}
	pool.StopWait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func paginate[T any](items []T, page int, size int) *Page[T] {
	total := len(items)
	out := &Page[T]{
		Content:       []T{},
		TotalElements: int64(total),
		TotalPages:    total / size,
		PageNumber:    page,
	}
	if total%size != 0 {
		out.TotalPages++
	}
	// Comparing against the page count first keeps page*size from overflowing.
	if page >= out.TotalPages {
		return out
	}
	from := page * size
	to := from + size
	if to > total {
		to = total
	}
	out.Content = items[from:to]
	return out
}
