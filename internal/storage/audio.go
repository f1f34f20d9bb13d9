package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrTooLarge          = errors.New("file exceeds upload limit")
	ErrOutsideUploads    = errors.New("file is not inside the upload directory")
)

// AllowedExtensions lists the upload formats ffmpeg can decode for us.
var AllowedExtensions = []string{".m4a", ".mp3", ".wav", ".aac", ".ogg", ".flac", ".webm", ".mp4", ".caf", ".aiff", ".aif"}

// Uploads stores incoming audio files under one directory.
type Uploads struct {
	dir      string
	maxBytes int64
}

func NewUploads(dir string, maxBytes int64) *Uploads {
	return &Uploads{dir: dir, maxBytes: maxBytes}
}

// Dir returns the upload directory.
func (u *Uploads) Dir() string { return u.dir }

// Validate checks the file name and declared size before anything is written.
func (u *Uploads) Validate(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(AllowedExtensions, ext) {
		return fmt.Errorf("%w %q, supported: %s", ErrUnsupportedFormat, ext, strings.Join(AllowedExtensions, ", "))
	}
	if u.maxBytes > 0 && size > u.maxBytes {
		return fmt.Errorf("%w of %d MB", ErrTooLarge, u.maxBytes>>20)
	}
	return nil
}

// Save writes an uploaded file and returns its path on disk.
func (u *Uploads) Save(file *multipart.FileHeader) (string, error) {
	if err := u.Validate(file.Filename, file.Size); err != nil {
		return "", err
	}
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return u.write(file.Filename, src)
}

// Resolve checks that path names an existing file inside the upload
// directory, following symlinks, and returns its absolute path.
func (u *Uploads) Resolve(path string) (string, error) {
	root, err := filepath.Abs(u.dir)
	if err != nil {
		return "", fmt.Errorf("resolve upload directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutsideUploads, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", ErrOutsideUploads
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ErrOutsideUploads
	}
	return resolved, nil
}

// Remove deletes a stored upload. Missing files are not an error.
func (u *Uploads) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (u *Uploads) write(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	dst := filepath.Join(u.dir, uuid.NewString()+"_"+filepath.Base(name))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	// Cap the copy in case the declared size was wrong.
	limit := u.maxBytes
	if limit <= 0 {
		limit = 1<<63 - 1
	}
	n, err := io.Copy(out, io.LimitReader(src, limit+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("%w of %d MB", ErrTooLarge, u.maxBytes>>20)
	}
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return dst, nil
}
