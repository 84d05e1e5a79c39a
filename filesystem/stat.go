package filesystem

import (
	"os"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"
)

// MimeProber determines the mime type of a file on the disk. An empty string
// or an error both mean that the type could not be determined.
type MimeProber interface {
	ProbeType(path string) (string, error)
}

// DetectProber detects mime types by inspecting the contents of a file.
type DetectProber struct{}

// ProbeType implements MimeProber. The generic binary fallback is treated as
// an undetermined type.
func (DetectProber) ProbeType(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	if m.Is("application/octet-stream") {
		return "", nil
	}
	return m.String(), nil
}

type Stat struct {
	os.FileInfo
	// The detected mime type of a regular file. Empty for directories and for
	// files whose type could not be determined.
	Mimetype string
}

// Bytes returns the size of the entry. Directories always report zero.
func (s Stat) Bytes() int64 {
	if s.IsDir() {
		return 0
	}
	return s.Size()
}

// MimeType returns the detected mime type, or nil if there is none.
func (s Stat) MimeType() *string {
	if s.IsDir() || s.Mimetype == "" {
		return nil
	}
	m := s.Mimetype
	return &m
}

func (s Stat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string  `json:"name"`
		Modified  string  `json:"modified"`
		Mode      string  `json:"mode"`
		ModeBits  string  `json:"mode_bits"`
		Size      int64   `json:"size"`
		Directory bool    `json:"directory"`
		File      bool    `json:"file"`
		Mime      *string `json:"mimeType"`
	}{
		Name:     s.Name(),
		Modified: s.ModTime().Format(time.RFC3339),
		Mode:     s.Mode().String(),
		// Using `&os.ModePerm` on the file's mode will cause the mode to only have the permission values, and nothing else.
		ModeBits:  strconv.FormatUint(uint64(s.Mode()&os.ModePerm), 8),
		Size:      s.Bytes(),
		Directory: s.IsDir(),
		File:      s.Mode().IsRegular(),
		Mime:      s.MimeType(),
	})
}

// Stat returns the size and mime type of a file or folder within the root.
func (fs *Filesystem) Stat(p string) (Stat, error) {
	cleaned, err := fs.SafePath(p)
	if err != nil {
		return Stat{}, err
	}
	return fs.unsafeStat(p, cleaned)
}

// unsafeStat reads the metadata for a path that has already been resolved.
// The requested path is only used for error reporting.
func (fs *Filesystem) unsafeStat(p string, cleaned string) (Stat, error) {
	s, err := os.Stat(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stat{}, newPathError(ErrCodeAccess, p, errors.WithMessage(err, "entry disappeared while reading attributes"))
		}
		return Stat{}, newPathError(ErrCodeAccess, p, err)
	}
	return Stat{FileInfo: s, Mimetype: fs.probe(cleaned, s)}, nil
}

// probe returns the mime type of a regular file, or an empty string if it
// cannot be determined. Don't try to detect the type on a pipe or any other
// special file, it will just hang the application.
func (fs *Filesystem) probe(cleaned string, s os.FileInfo) string {
	if !s.Mode().IsRegular() || fs.prober == nil {
		return ""
	}
	m, err := fs.prober.ProbeType(cleaned)
	if err != nil {
		fs.error(err).WithField("path", cleaned).Debug("failed to detect mime type for file")
		return ""
	}
	return m
}
