package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/config"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
	"github.com/sellerhub/marking/common/queue"
)

const (
	validGTIN = "04600000000017"
	otherGTIN = "04699999999990"
)

func codeFor(gtin, serial string) string {
	return "01" + gtin + "21" + serial
}

// fakeRaster serves page files the test laid down in workDir; the render of
// a page is simply its own content copied into a png, so two pages with the
// same content hash identically.
type fakeRaster struct {
	pages []string
}

func (r *fakeRaster) PreparePages(_ context.Context, _ string, workDir string) ([]string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	return r.pages, nil
}

func (r *fakeRaster) RenderPage(_ context.Context, pagePDF string) (string, error) {
	content, err := os.ReadFile(pagePDF)
	if err != nil {
		return "", err
	}
	imgPath := pagePDF + ".png"
	if err := os.WriteFile(imgPath, content, 0o644); err != nil {
		return "", err
	}
	return imgPath, nil
}

// fakeDecoder treats the rendered image content as the decoded payload;
// pages containing "NOISE" fail to decode
type fakeDecoder struct{}

func (d *fakeDecoder) Decode(imgPath string) (string, error) {
	content, err := os.ReadFile(imgPath)
	if err != nil {
		return "", err
	}
	if string(content) == "NOISE" {
		return "", errors.New("no datamatrix region found")
	}
	return string(content), nil
}

type fakeStore struct {
	mu      sync.Mutex
	created []*models.NewCode
	byValue map[string]bool
	tuples  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byValue: map[string]bool{}}
}

func (s *fakeStore) CreateScanned(_ context.Context, _ pgx.Tx, code *models.NewCode) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := code.OwnerID.String() + ":" + code.Value
	if s.byValue[key] {
		return uuid.Nil, &faults.DuplicateError{OwnerID: code.OwnerID, Value: code.Value}
	}
	s.byValue[key] = true
	s.created = append(s.created, code)
	return uuid.New(), nil
}

func (s *fakeStore) ValueExists(_ context.Context, ownerID uuid.UUID, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byValue[ownerID.String()+":"+value], nil
}

func (s *fakeStore) CountByTuple(_ context.Context, _ uuid.UUID, _ models.ProductTuple) (int, error) {
	return s.tuples, nil
}

type fakeCatalog struct {
	known    map[string]bool
	calls    int
	failures int
}

func (c *fakeCatalog) Exists(_ context.Context, gtin string, _ models.ProductTuple) (bool, error) {
	c.calls++
	if c.failures > 0 {
		c.failures--
		return false, errors.New("catalog unavailable")
	}
	return c.known[gtin], nil
}

type nopRunner struct{}

func (nopRunner) WithTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type fixture struct {
	pipeline *Pipeline
	store    *fakeStore
	catalog  *fakeCatalog
	uploads  *queue.MemoryPublisher
	workRoot string
	docPath  string
	pages    []string
}

// newFixture builds a pipeline over fakes and lays down one page file per
// entry of pageContents inside the work dir the pipeline will use
func newFixture(t *testing.T, pageContents []string) *fixture {
	t.Helper()

	workRoot := t.TempDir()
	docPath := filepath.Join(t.TempDir(), "part.pdf")
	workDir := filepath.Join(workRoot, documentKey(docPath))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}

	pages := make([]string, len(pageContents))
	for i, content := range pageContents {
		pages[i] = filepath.Join(workDir, fmt.Sprintf("page_%04d.pdf", i+1))
		if err := os.WriteFile(pages[i], []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := newFakeStore()
	catalog := &fakeCatalog{known: map[string]bool{validGTIN: true}}
	uploads := queue.NewMemoryPublisher()

	p := NewPipeline(PipelineOpts{
		Log:     logger.New("error", "json"),
		Runner:  nopRunner{},
		Codes:   store,
		Catalog: catalog,
		Uploads: uploads,
		Raster:  &fakeRaster{pages: pages},
		Decoder: &fakeDecoder{},
		Config:  config.IngestConfig{WorkDir: workRoot, MaxPages: 500},
	})

	return &fixture{pipeline: p, store: store, catalog: catalog, uploads: uploads, workRoot: workRoot, docPath: docPath, pages: pages}
}

func (f *fixture) request() *models.IngestRequest {
	return &models.IngestRequest{
		OwnerID:      uuid.New(),
		ProfileID:    uuid.New(),
		Tuple:        models.ProductTuple{MaterialID: uuid.New()},
		PartID:       uuid.New(),
		DocumentPath: f.docPath,
		Shareable:    true,
	}
}

func TestPipelinePersistsVerifiedPages(t *testing.T) {
	f := newFixture(t, []string{
		codeFor(validGTIN, "serial01"),
		codeFor(validGTIN, "serial02"),
	})

	report, err := f.pipeline.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Persisted != 2 {
		t.Fatalf("persisted = %d, want 2", report.Persisted)
	}
	if got := len(f.uploads.Messages(queue.StreamImageUploads)); got != 2 {
		t.Fatalf("upload requests = %d, want 2", got)
	}
	for _, code := range f.store.created {
		if code.Status != models.StatusNew {
			t.Fatalf("status = %s, want new", code.Status)
		}
	}

	// terminal pages are consumed
	for _, page := range f.pages {
		if _, err := os.Stat(page); !os.IsNotExist(err) {
			t.Fatalf("page artifact %s should be removed", page)
		}
	}
}

func TestPipelineDecodeFailureIsolatedToPage(t *testing.T) {
	f := newFixture(t, []string{
		codeFor(validGTIN, "serial01"),
		"NOISE",
		codeFor(validGTIN, "serial03"),
	})

	report, err := f.pipeline.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Persisted != 2 || report.Errors != 1 {
		t.Fatalf("report = %+v, want 2 persisted and 1 error", report)
	}

	var errRecord *models.NewCode
	for _, code := range f.store.created {
		if code.Status == models.StatusError {
			errRecord = code
		}
	}
	if errRecord == nil {
		t.Fatal("expected an error record for the undecodable page")
	}
	if _, perr := ParseValue(errRecord.Value); perr == nil {
		t.Fatal("error record should carry a placeholder value, not a real one")
	}

	// error records never reach the upload stream
	if got := len(f.uploads.Messages(queue.StreamImageUploads)); got != 2 {
		t.Fatalf("upload requests = %d, want 2", got)
	}
}

func TestPipelineSkipsAlreadyRegisteredValues(t *testing.T) {
	f := newFixture(t, []string{
		codeFor(validGTIN, "serial01"),
		codeFor(validGTIN, "serial02"),
	})
	req := f.request()
	f.store.byValue[req.OwnerID.String()+":"+codeFor(validGTIN, "serial01")] = true

	report, err := f.pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Persisted != 1 || report.Duplicates != 1 {
		t.Fatalf("report = %+v, want 1 persisted and 1 duplicate", report)
	}
}

func TestPipelineMismatchAbortsDocument(t *testing.T) {
	f := newFixture(t, []string{
		codeFor(validGTIN, "serial01"),
		codeFor(otherGTIN, "serial02"),
		codeFor(validGTIN, "serial03"),
	})

	report, err := f.pipeline.Run(context.Background(), f.request())
	if !faults.IsMismatch(err) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if report.Persisted != 1 {
		t.Fatalf("persisted = %d, want 1 before the abort", report.Persisted)
	}

	// pages after the mismatch stay untouched for inspection
	if _, serr := os.Stat(f.pages[2]); serr != nil {
		t.Fatalf("page 3 artifact should survive the abort: %v", serr)
	}
	// the mismatched page itself is consumed
	if _, serr := os.Stat(f.pages[1]); !os.IsNotExist(serr) {
		t.Fatal("mismatched page artifact should be removed")
	}
}

func TestPipelineFirstAssignmentSkipsCatalogCheck(t *testing.T) {
	f := newFixture(t, []string{codeFor(otherGTIN, "serial01")})
	req := f.request()
	req.FirstAssignment = true

	report, err := f.pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Persisted != 1 {
		t.Fatalf("persisted = %d, want 1", report.Persisted)
	}
	if f.catalog.calls != 0 {
		t.Fatalf("catalog consulted %d times, want 0", f.catalog.calls)
	}
}

func TestPipelineDiscardsDuplicateRenders(t *testing.T) {
	same := codeFor(validGTIN, "serial01")
	f := newFixture(t, []string{same, same})

	report, err := f.pipeline.Run(context.Background(), f.request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Persisted != 1 || report.DuplicateRenders != 1 {
		t.Fatalf("report = %+v, want 1 persisted and 1 duplicate render", report)
	}
}

func TestPipelineRetrySkipsConsumedPages(t *testing.T) {
	f := newFixture(t, []string{
		codeFor(validGTIN, "serial01"),
		codeFor(validGTIN, "serial02"),
	})
	req := f.request()

	if _, err := f.pipeline.Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := f.pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Skipped != 2 || report.Persisted != 0 {
		t.Fatalf("report = %+v, want all pages skipped", report)
	}
}

func TestPipelineRetryAfterTransientFailurePersistsPage(t *testing.T) {
	f := newFixture(t, []string{codeFor(validGTIN, "serial01")})
	req := f.request()
	f.catalog.failures = 1

	// the first run renders and relocates the page image, then dies on the
	// catalog outage; the page artifact must survive for the retry
	if _, err := f.pipeline.Run(context.Background(), req); err == nil {
		t.Fatal("expected the catalog outage to fail the run")
	}
	if _, serr := os.Stat(f.pages[0]); serr != nil {
		t.Fatalf("page artifact must survive a failed run: %v", serr)
	}

	report, err := f.pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Persisted != 1 || report.DuplicateRenders != 0 {
		t.Fatalf("report = %+v, want the page persisted on retry", report)
	}
}

func TestPipelineAssignsSellerForNonShareable(t *testing.T) {
	f := newFixture(t, []string{codeFor(validGTIN, "serial01")})
	req := f.request()
	req.Shareable = false

	if _, err := f.pipeline.Run(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code := f.store.created[0]
	if code.SellerID == nil || *code.SellerID != req.ProfileID {
		t.Fatal("non-shareable codes must be pinned to the scanning profile")
	}
}

func TestPipelineRejectsBadDocumentPath(t *testing.T) {
	f := newFixture(t, nil)
	req := f.request()
	req.DocumentPath = "../escape.pdf"

	if _, err := f.pipeline.Run(context.Background(), req); err == nil {
		t.Fatal("expected path validation error")
	}
}
