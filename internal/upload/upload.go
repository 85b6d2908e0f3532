// Package upload stores files referenced by file messages.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

var (
	ErrUnsupportedType = errors.New("invalid file type. Allowed: images (jpg, png, gif), videos (mp4), documents (pdf, doc, xls), audio (mp3, wav)")
	ErrTooLarge        = errors.New("file too large")
)

var allowedTypes = map[string][]string{
	"image":    {"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"},
	"video":    {"video/mp4", "video/mpeg", "video/quicktime", "video/x-msvideo"},
	"document": {"application/pdf", "application/msword", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/vnd.ms-excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "text/plain", "application/zip"},
	"audio":    {"audio/mpeg", "audio/wav", "audio/ogg", "audio/mp4"},
}

type SavedFile struct {
	// Filename is the stored name, unique within the store.
	Filename string
	// Name is the name the file was uploaded with.
	Name     string
	Size     int64
	MimeType string
}

// Store keeps uploaded files in a directory.
type Store struct {
	log     *log.Logger
	dir     string
	maxSize int64
	now     func() time.Time
	suffix  func() int64
}

func NewStore(logger *log.Logger, dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &Store{
		log:     logger,
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
		suffix:  func() int64 { return rand.Int64N(1e9) },
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Save writes the contents of r under a unique name derived from name. The
// type is taken from the content, not from the name or the client.
func (s *Store) Save(name string, r io.Reader) (SavedFile, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return SavedFile{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !Allowed(mt) {
		return SavedFile{}, ErrUnsupportedType
	}

	filename := s.filename(name)
	path := filepath.Join(s.dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return SavedFile{}, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(r, s.maxSize-int64(n)+1))
	size, err := io.Copy(f, body)
	if err == nil && size > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		f.Close()
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Printf("remove partial upload %q: %v", path, rmErr)
		}
		return SavedFile{}, err
	}

	return SavedFile{
		Filename: filename,
		Name:     name,
		Size:     size,
		MimeType: baseType(mt.String()),
	}, nil
}

// filename builds <base>-<unix ms>-<random><ext> from the uploaded name.
func (s *Store) filename(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || base == "/" || base == "." {
		base = "file"
	}

	return fmt.Sprintf("%s-%d-%d%s", base, s.now().UnixMilli(), s.suffix(), ext)
}

// Allowed reports whether mt is an accepted upload type.
func Allowed(mt *mimetype.MIME) bool {
	for _, types := range allowedTypes {
		for _, t := range types {
			if mt.Is(t) {
				return true
			}
		}
	}
	return false
}

func baseType(mimeType string) string {
	t, _, _ := strings.Cut(mimeType, ";")
	return strings.TrimSpace(t)
}
