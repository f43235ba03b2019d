package storage

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-surveys/internal/engine"
)

type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

// path resolves key inside the base directory; ".." segments cannot
// escape it.
func (s *FSStore) path(key string) (string, error) {
	clean := strings.TrimPrefix(filepath.Clean("/"+key), string(filepath.Separator))
	if clean == "" || clean == "." {
		return "", errors.New("empty key")
	}
	return filepath.Join(s.base, clean), nil
}

func (s *FSStore) Put(key string, r io.Reader) (string, error) {
	dst, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	rel, _ := filepath.Rel(s.base, dst)
	return filepath.ToSlash(rel), nil
}

func (s *FSStore) Get(key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *FSStore) SignedURL(key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// PutExport stores an export document under a random directory named
// after its conventional file name and returns the stored key. The last
// key segment is the download file name.
func PutExport(bs BlobStore, surveyID string, at time.Time, doc []byte) (string, error) {
	return bs.Put(uuid.NewString()+"/"+engine.ExportFileName(surveyID, at), bytes.NewReader(doc))
}
