// Package corpus reads training corpora from disk.
package corpus

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// File is a memory-mapped corpus file. It keeps the file mapped until Close,
// so large corpora are paged in by the OS instead of read up front.
type File struct {
	path   string
	reader *mmap.ReaderAt
}

// Open memory-maps the corpus file at path.
func Open(path string) (*File, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap corpus %q", path)
	}
	return &File{path: path, reader: reader}, nil
}

// Len returns the corpus size in bytes.
func (f *File) Len() int {
	return f.reader.Len()
}

// Text returns the full corpus contents.
func (f *File) Text() (string, error) {
	buf := make([]byte, f.reader.Len())
	if len(buf) == 0 {
		return "", nil
	}
	if _, err := f.reader.ReadAt(buf, 0); err != nil {
		return "", errors.Wrapf(err, "failed to read corpus %q", f.path)
	}
	return string(buf), nil
}

// Close unmaps the file. The File is unusable afterwards.
func (f *File) Close() error {
	return errors.Wrapf(f.reader.Close(), "failed to close corpus %q", f.path)
}
