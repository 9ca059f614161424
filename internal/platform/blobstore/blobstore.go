// Package blobstore archives generated exports (CSV, XLSX and PDF files) per
// clinic. The in-memory store serves development. S3Store or GCSStore is
// used when an export bucket is configured.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/woundcare/clinic/internal/platform/auth"
	"github.com/woundcare/clinic/internal/platform/db"
	"github.com/woundcare/clinic/internal/platform/httperr"
	"github.com/woundcare/clinic/pkg/pagination"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrMissingClinic   = errors.New("clinic is required")
)

// MaxFileSize bounds a single archived export (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// Export kinds.
const (
	KindCommissionReport = "commission-report"
	KindInvoices         = "invoices"
	KindInvoicePDF       = "invoice-pdf"
)

// Metadata describes an archived export.
type Metadata struct {
	ID          string    `json:"id"`
	Clinic      string    `json:"-"`
	Kind        string    `json:"kind"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy,omitempty"`
}

// Store is implemented by the archive backends.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Get(ctx context.Context, clinic, id string) (io.ReadCloser, *Metadata, error)
	// List returns the clinic's exports newest first, optionally of one kind.
	List(ctx context.Context, clinic, kind string, limit, offset int) ([]*Metadata, int, error)
}

// prepare reads content and fills the generated metadata fields.
func prepare(meta Metadata, content io.Reader) (Metadata, []byte, error) {
	if meta.Clinic == "" {
		return meta, nil, ErrMissingClinic
	}
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}
	h := sha256.Sum256(data)
	meta.ID = uuid.NewString()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return meta, data, nil
}

func page(all []*Metadata, limit, offset int) []*Metadata {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func sortNewestFirst(items []*Metadata) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// InMemoryStore keeps exports in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, clinic, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok || blob.metadata.Clinic != clinic {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryStore) List(_ context.Context, clinic, kind string, limit, offset int) ([]*Metadata, int, error) {
	s.mu.RLock()
	var matched []*Metadata
	for _, b := range s.blobs {
		if b.metadata.Clinic != clinic {
			continue
		}
		if kind != "" && b.metadata.Kind != kind {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	return page(matched, limit, offset), len(matched), nil
}

// Archiver saves a copy of every generated export. A failed archive is
// logged; the caller's download still succeeds.
type Archiver struct {
	store  Store
	logger zerolog.Logger
}

func NewArchiver(store Store, logger zerolog.Logger) *Archiver {
	return &Archiver{store: store, logger: logger}
}

func (a *Archiver) Save(ctx context.Context, kind, fileName, contentType string, data []byte) {
	if a == nil || a.store == nil {
		return
	}
	meta := Metadata{
		Clinic:      db.ClinicFromContext(ctx),
		Kind:        kind,
		FileName:    fileName,
		ContentType: contentType,
		CreatedBy:   auth.Actor(ctx),
	}
	saved, err := a.store.Put(ctx, meta, bytes.NewReader(data))
	if err != nil {
		a.logger.Warn().Err(err).Str("kind", kind).Str("file", fileName).Msg("export archive failed")
		return
	}
	a.logger.Debug().Str("id", saved.ID).Str("kind", kind).Int64("size", saved.Size).Msg("export archived")
}

// Handler serves the export archive.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/exports", auth.RequireRole(auth.RoleBilling, auth.RoleSales))
	g.GET("", h.List)
	g.GET("/:id", h.Download)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	p := pagination.FromContext(c)
	items, total, err := h.store.List(ctx, db.ClinicFromContext(ctx), c.QueryParam("kind"), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Metadata{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	rc, meta, err := h.store.Get(ctx, db.ClinicFromContext(ctx), id)
	if errors.Is(err, ErrBlobNotFound) {
		return httperr.NotFound("export", id)
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
