package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/pkg/observability"
)

// ObjectStore is the slice of object storage the clinic needs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// FromMultipart reads a form file into memory.
func FromMultipart(fh *multipart.FileHeader) (Upload, error) {
	src, err := fh.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	return Upload{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}

// FileResult is the outcome of one file in a batch. Key is set on success,
// Err on failure.
type FileResult struct {
	Name string
	Key  string
	Err  error
}

func (r FileResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Name  string `json:"name"`
		Key   string `json:"key,omitempty"`
		Error string `json:"error,omitempty"`
	}{Name: r.Name, Key: r.Key}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Manifest lists every file of a batch in input order.
type Manifest []FileResult

// Keys returns the object keys of the stored files.
func (m Manifest) Keys() []string {
	var keys []string
	for _, r := range m {
		if r.Err == nil && r.Key != "" {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

func (m Manifest) Failed() []FileResult {
	var out []FileResult
	for _, r := range m {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m Manifest) Complete() bool { return len(m.Failed()) == 0 }

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	// UploadBatch stores files one after another. A failed file is recorded
	// in the manifest and does not stop the rest.
	UploadBatch(ctx context.Context, prefix string, files []Upload) Manifest
	DownloadURL(ctx context.Context, key string) (string, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type fileService struct {
	objects ObjectStore
	log     *slog.Logger
	metrics *observability.ClinicMetrics
}

func New(objects ObjectStore, log *slog.Logger, metrics *observability.ClinicMetrics) Service {
	if log == nil {
		log = slog.Default()
	}
	return &fileService{objects: objects, log: log, metrics: metrics}
}

func (s *fileService) UploadBatch(ctx context.Context, prefix string, files []Upload) Manifest {
	manifest := make(Manifest, 0, len(files))
	for _, f := range files {
		res := FileResult{Name: f.Name}
		key, err := s.put(ctx, prefix, f)
		if err != nil {
			res.Err = err
			s.log.WarnContext(ctx, "file: upload failed", "name", f.Name, "prefix", prefix, "err", err)
		} else {
			res.Key = key
		}
		manifest = append(manifest, res)
	}
	if failed := len(manifest.Failed()); failed > 0 {
		s.metrics.UploadFailed(ctx, failed)
	}
	return manifest
}

func (s *fileService) put(ctx context.Context, prefix string, f Upload) (string, error) {
	if len(f.Data) == 0 {
		return "", ErrEmptyFile
	}
	if s.objects == nil {
		return "", ErrObjectStore
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	key := path.Join(strings.Trim(prefix, "/"), uuid.NewString()+ext)

	mime := f.ContentType
	if mime == "" {
		mime = "application/octet-stream"
	}
	if err := s.objects.Put(ctx, key, mime, bytes.NewReader(f.Data), int64(len(f.Data))); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

func (s *fileService) DownloadURL(ctx context.Context, key string) (string, error) {
	if s.objects == nil {
		return "", ErrObjectStore
	}
	url, err := s.objects.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return url, nil
}
