// Package ingest turns a scanned multi-page document into individually
// verified code records. Page source artifacts double as the retry ledger:
// a page PDF is removed only once the page reached a terminal outcome, so a
// crashed or timed-out run can be safely re-dispatched and resumes where it
// stopped.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sellerhub/marking/common/config"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
	"github.com/sellerhub/marking/common/queue"
	"github.com/sellerhub/marking/common/validation"
)

// UploadClass tags code images in upload requests to the external CDN
const UploadClass = "code_image"

// CodeStore is the persistence surface the pipeline drives.
// Implemented by repository.CodeRepository.
type CodeStore interface {
	CreateScanned(ctx context.Context, tx pgx.Tx, code *models.NewCode) (uuid.UUID, error)
	ValueExists(ctx context.Context, ownerID uuid.UUID, value string) (bool, error)
	CountByTuple(ctx context.Context, ownerID uuid.UUID, tuple models.ProductTuple) (int, error)
}

// Catalog answers whether a decoded product-item number belongs to a product
type Catalog interface {
	Exists(ctx context.Context, gtin string, tuple models.ProductTuple) (bool, error)
}

// TxRunner runs a function inside a database transaction.
// Implemented by db.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Report summarizes one ingestion run
type Report struct {
	Persisted        int
	Errors           int
	Duplicates       int
	DuplicateRenders int
	Skipped          int
}

// Pipeline is the document ingestion state machine
type Pipeline struct {
	log     *logger.Logger
	runner  TxRunner
	codes   CodeStore
	catalog Catalog
	uploads queue.Publisher
	raster  Rasterizer
	decoder Decoder
	cfg     config.IngestConfig
}

// PipelineOpts contains options for creating a Pipeline
type PipelineOpts struct {
	Log     *logger.Logger
	Runner  TxRunner
	Codes   CodeStore
	Catalog Catalog
	Uploads queue.Publisher
	Raster  Rasterizer
	Decoder Decoder
	Config  config.IngestConfig
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(opts PipelineOpts) *Pipeline {
	return &Pipeline{
		log:     opts.Log,
		runner:  opts.Runner,
		codes:   opts.Codes,
		catalog: opts.Catalog,
		uploads: opts.Uploads,
		raster:  opts.Raster,
		decoder: opts.Decoder,
		cfg:     opts.Config,
	}
}

// Run processes one submitted document. Page-level failures (decode,
// duplicate) are contained per page; a product mismatch aborts the
// remaining pages of this document and is returned as a MismatchError.
func (p *Pipeline) Run(ctx context.Context, req *models.IngestRequest) (*Report, error) {
	log := p.log.WithPart(req.PartID.String())

	if err := validation.ValidateDocumentPath(req.DocumentPath); err != nil {
		return nil, &faults.ValidationError{Reason: err.Error()}
	}

	if req.FirstAssignment {
		// caller-asserted flag; contradicting stored state is worth noticing
		count, err := p.codes.CountByTuple(ctx, req.OwnerID, req.Tuple)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			log.Warn("first-assignment flag set but codes already exist for tuple",
				"tuple", req.Tuple.String(),
				"existing", count)
		}
	}

	workDir := filepath.Join(p.cfg.WorkDir, documentKey(req.DocumentPath))
	pages, err := p.raster.PreparePages(ctx, req.DocumentPath, workDir)
	if err != nil {
		return nil, err
	}

	if len(pages) > p.cfg.MaxPages {
		log.Warn("document truncated", "pages", len(pages), "cap", p.cfg.MaxPages)
		pages = pages[:p.cfg.MaxPages]
	}

	log.Info("ingesting document",
		"doc", req.DocumentPath,
		"pages", len(pages),
		"first_assignment", req.FirstAssignment)

	report := &Report{}
	seen := make(map[string]bool)
	for i, page := range pages {
		pageNum := i + 1

		if _, err := os.Stat(page); os.IsNotExist(err) {
			// consumed by a previous run
			report.Skipped++
			continue
		}

		if err := p.processPage(ctx, log, req, workDir, page, pageNum, seen, report); err != nil {
			return report, err
		}
	}

	log.Info("document ingested",
		"persisted", report.Persisted,
		"errors", report.Errors,
		"duplicates", report.Duplicates,
		"duplicate_renders", report.DuplicateRenders,
		"skipped", report.Skipped)

	return report, nil
}

func (p *Pipeline) processPage(ctx context.Context, log *logger.Logger, req *models.IngestRequest, workDir, page string, pageNum int, seen map[string]bool, report *Report) error {
	imgPath, err := p.raster.RenderPage(ctx, page)
	if err != nil {
		// keep the page artifact: the whole task gets retried
		return fmt.Errorf("page %d: %w", pageNum, err)
	}

	hash, err := HashFile(imgPath)
	if err != nil {
		return fmt.Errorf("page %d: %w", pageNum, err)
	}

	// de-duplicate identical renders within this run by content hash. Only
	// the in-memory set decides: a hash dir left on disk by a run that
	// failed after relocation belongs to this very page and must be
	// reprocessed, not discarded.
	if seen[hash] {
		log.Info("duplicate page render discarded", "page", pageNum, "hash", hash)
		report.DuplicateRenders++
		_ = os.Remove(imgPath)
		p.finishPage(log, page)
		return nil
	}
	seen[hash] = true

	hashDir := filepath.Join(workDir, hash)
	if err := os.MkdirAll(hashDir, 0o755); err != nil {
		return fmt.Errorf("page %d: failed to create hash dir: %w", pageNum, err)
	}
	canonical := filepath.Join(hashDir, "code.png")
	if err := os.Rename(imgPath, canonical); err != nil {
		return fmt.Errorf("page %d: failed to relocate render: %w", pageNum, err)
	}

	raw, decodeErr := p.decoder.Decode(canonical)
	var value *CodeValue
	if decodeErr == nil {
		value, decodeErr = ParseValue(raw)
	}

	if decodeErr != nil {
		// account for the physical code anyway, permanently out of allocation
		derr := &faults.DecodeError{Page: pageNum, Reason: decodeErr.Error()}
		log.Warn("page decode failed, creating error record", "page", pageNum, "error", decodeErr)
		if err := p.persist(ctx, req, PlaceholderValue(), hash, models.StatusError, derr.Error()); err != nil {
			if faults.IsDuplicate(err) {
				// placeholder collision is practically impossible; a retry
				// after a partial failure is not
				report.Duplicates++
				p.finishPage(log, page)
				return nil
			}
			return fmt.Errorf("page %d: %w", pageNum, err)
		}
		report.Errors++
		p.finishPage(log, page)
		return nil
	}

	if !req.FirstAssignment {
		ok, err := p.catalog.Exists(ctx, value.GTIN, req.Tuple)
		if err != nil {
			return fmt.Errorf("page %d: catalog lookup failed: %w", pageNum, err)
		}
		if !ok {
			// wrong product scanned into this bucket: drop this page and
			// abort the rest of the document
			p.finishPage(log, page)
			return &faults.MismatchError{Page: pageNum, Value: value.Raw, GTIN: value.GTIN}
		}
	}

	exists, err := p.codes.ValueExists(ctx, req.OwnerID, value.Raw)
	if err != nil {
		return fmt.Errorf("page %d: %w", pageNum, err)
	}
	if exists {
		log.Info("decoded value already registered, skipping page", "page", pageNum)
		report.Duplicates++
		p.finishPage(log, page)
		return nil
	}

	if err := p.persist(ctx, req, value.Raw, hash, models.StatusNew, "scanned from document"); err != nil {
		if faults.IsDuplicate(err) {
			// lost a race against a concurrent ingestion for the same owner
			log.Info("concurrent ingestion registered this value first", "page", pageNum)
			report.Duplicates++
			p.finishPage(log, page)
			return nil
		}
		return fmt.Errorf("page %d: %w", pageNum, err)
	}

	report.Persisted++
	p.finishPage(log, page)
	return nil
}

// persist creates the identity chain for one page and schedules the image
// upload for successfully verified codes
func (p *Pipeline) persist(ctx context.Context, req *models.IngestRequest, value, hash string, status models.Status, comment string) error {
	code := &models.NewCode{
		OwnerID:       req.OwnerID,
		ProfileID:     req.ProfileID,
		Tuple:         req.Tuple,
		PartID:        req.PartID,
		CustomsNumber: req.CustomsNumber,
		Value:         value,
		StorageName:   hash,
		Extension:     "png",
		Status:        status,
		Comment:       comment,
	}
	if !req.Shareable {
		sellerID := req.ProfileID
		code.SellerID = &sellerID
	}

	var codeID uuid.UUID
	err := p.runner.WithTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		codeID, txErr = p.codes.CreateScanned(ctx, tx, code)
		return txErr
	})
	if err != nil {
		return err
	}

	if status == models.StatusNew {
		upload := models.UploadRequest{CodeID: codeID, Class: UploadClass, StorageName: hash}
		if err := p.uploads.Publish(ctx, queue.StreamImageUploads, upload); err != nil {
			// fire-and-forget: the record is in place, the image can be
			// re-pushed by the backfill job
			p.log.Warn("failed to schedule image upload", "code_id", codeID, "error", err)
		}
	}

	return nil
}

// finishPage removes the page source artifact after terminal processing
func (p *Pipeline) finishPage(log *logger.Logger, page string) {
	if err := os.Remove(page); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove processed page artifact", "page", page, "error", err)
	}
}

// documentKey derives a stable work-dir name from the source path so a
// retried task lands in the same page ledger
func documentKey(docPath string) string {
	sum := sha256.Sum256([]byte(docPath))
	return hex.EncodeToString(sum[:])[:16]
}
