package safe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize bounds ReadFile when no limit is given (1MB).
const DefaultMaxFileSize = 1 << 20

// ReadOptions configures ReadFile.
type ReadOptions struct {
	// MaxSize is the largest accepted file in bytes; zero means DefaultMaxFileSize.
	MaxSize int64
	// AllowSymlinks permits path itself to be a symlink.
	AllowSymlinks bool
}

// ReadFile reads a small regular file such as the config file. Under sudo
// resmon reads files in the operator's home, so a symlink at path is refused
// unless allowed and the size is checked on the opened file.
func ReadFile(path string, opts *ReadOptions) ([]byte, error) {
	var o ReadOptions
	if opts != nil {
		o = *opts
	}
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxFileSize
	}

	path = filepath.Clean(path)
	if !o.AllowSymlinks {
		link, err := os.Lstat(path)
		if err != nil {
			return nil, err
		}
		if link.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("file %q is a symlink, which is not allowed", path)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path %q is not a regular file", path)
	}
	if info.Size() > o.MaxSize {
		return nil, fmt.Errorf("file %q exceeds maximum allowed size of %d bytes", path, o.MaxSize)
	}

	// The file may grow between Stat and read.
	data, err := io.ReadAll(io.LimitReader(f, o.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > o.MaxSize {
		return nil, fmt.Errorf("file %q exceeds maximum allowed size of %d bytes", path, o.MaxSize)
	}
	return data, nil
}
