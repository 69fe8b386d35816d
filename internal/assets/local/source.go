// Package local implements an asset source over a directory on disk.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/JakeFAU/empire-server/internal/assets"
)

// Config captures the parameters for the local directory source.
type Config struct {
	// BaseDir is the directory holding the built files.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Source reads assets from BaseDir. Names cannot escape the directory.
type Source struct {
	baseDir string
	fsys    fs.FS
}

// New checks BaseDir is an existing directory.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory path %q is not a directory", cfg.BaseDir)
	}
	return &Source{baseDir: cfg.BaseDir, fsys: os.DirFS(cfg.BaseDir)}, nil
}

// Dir returns the configured directory.
func (s *Source) Dir() string {
	return s.baseDir
}

// Open returns the named file. Directories and invalid names report
// fs.ErrNotExist.
func (s *Source) Open(_ context.Context, name string) (*assets.Object, error) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if !fs.ValidPath(name) || name == "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("stat asset: %w", err)
	}
	if info.IsDir() {
		_ = f.Close() //nolint:errcheck // directories are not served
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &assets.Object{
		Body:    f,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
