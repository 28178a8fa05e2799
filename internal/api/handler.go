package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"exambank/internal/engine"
	"exambank/internal/metadata"
	"exambank/internal/model"
	"exambank/internal/pipeline"
	"exambank/internal/storage"
	"exambank/internal/store"
)

// Ingester stores and classifies one exam PDF.
type Ingester interface {
	Ingest(ctx context.Context, path string) (*model.Exam, error)
}

// FileStore keeps uploaded PDFs.
type FileStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

type Handler struct {
	db     *engine.DB
	ingest Ingester
	files  FileStore
	log    *zap.Logger
}

func NewHandler(db *engine.DB, ingest Ingester, files FileStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, ingest: ingest, files: files, log: logger.Named("api")}
}

// List handles GET /api/:entity?field=value
func (h *Handler) List(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c.Params("entity"))
	if err != nil {
		return err
	}

	conds := engine.Conditions{}
	for key, raw := range c.Queries() {
		f := entity.Lookup(key)
		if f == nil {
			return engine.BadRequestError(fmt.Sprintf("Unknown field %q on %s", key, entity.Name))
		}
		v, err := parseParam(*f, raw)
		if err != nil {
			return engine.BadRequestError(fmt.Sprintf("Invalid value for %s: %v", key, err))
		}
		conds[key] = v
	}

	rows, err := h.db.SelectOf(c.UserContext(), entity.Table, conds)
	if err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c.Params("entity"))
	if err != nil {
		return err
	}
	id, err := parseID(c.Params("id"))
	if err != nil {
		return err
	}

	row, err := h.db.GetOf(c.UserContext(), entity.Table, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError(entity.Name, c.Params("id"))
		}
		return fmt.Errorf("get %s/%d: %w", entity.Name, id, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// Children handles GET /api/:entity/:id/:child?order=a,b
func (h *Handler) Children(c *fiber.Ctx) error {
	parent, err := h.resolveEntity(c.Params("entity"))
	if err != nil {
		return err
	}
	child, err := h.resolveEntity(c.Params("child"))
	if err != nil {
		return err
	}
	id, err := parseID(c.Params("id"))
	if err != nil {
		return err
	}

	var order []string
	if o := c.Query("order"); o != "" {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				order = append(order, part)
			}
		}
	}

	rows, err := h.db.SelectChildrenOf(c.UserContext(), parent.Name, child.Name, id, order...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// PdfFile handles GET /api/pdf/:id/file
func (h *Handler) PdfFile(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return err
	}
	row, err := h.db.Get(c.UserContext(), model.Pdf{}, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("Pdf", c.Params("id"))
		}
		return err
	}
	path, _ := row["path"].(string)
	rc, err := h.files.Open(c.UserContext(), path)
	if err != nil {
		return engine.NotFoundError("Pdf file", c.Params("id"))
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.SendStream(rc)
}

// Ingest handles POST /api/exams with a multipart "file" field.
func (h *Handler) Ingest(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return engine.BadRequestError("Missing file field")
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	ctx := c.UserContext()
	path, err := h.files.Save(ctx, fh.Filename, src)
	switch {
	case errors.Is(err, storage.ErrNotPDF):
		return engine.BadRequestError(err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		return engine.NewAppError("FILE_TOO_LARGE", fiber.StatusRequestEntityTooLarge, err.Error())
	case err != nil:
		return fmt.Errorf("save upload: %w", err)
	}

	exam, err := h.ingest.Ingest(ctx, path)
	if err != nil {
		if exam == nil {
			if derr := h.files.Delete(ctx, path); derr != nil {
				h.log.Warn("api.upload.cleanup_failed", zap.String("path", path), zap.Error(derr))
			}
		}
		if errors.Is(err, pipeline.ErrNoText) {
			return &engine.AppError{Code: "NO_TEXT", Status: fiber.StatusUnprocessableEntity, Message: "No text found in the uploaded PDF"}
		}
		if exam != nil {
			h.log.Error("api.exam.classify_failed", zap.Int64("exam_id", exam.ID), zap.Error(err))
			return &engine.AppError{
				Code:    "CLASSIFICATION_FAILED",
				Status:  fiber.StatusBadGateway,
				Message: fmt.Sprintf("Exam %d was stored but could not be classified", exam.ID),
			}
		}
		return fmt.Errorf("ingest %s: %w", fh.Filename, err)
	}

	row, err := h.db.Get(ctx, model.Exam{}, exam.ID)
	if err != nil {
		return err
	}
	h.log.Info("api.exam.ingested", zap.Int64("exam_id", exam.ID), zap.String("user", userID(c)))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

type resetRequest struct {
	Confirm string `json:"confirm"`
}

// Reset handles POST /api/_admin/reset. The body must confirm with "y".
func (h *Handler) Reset(c *fiber.Ctx) error {
	var body resetRequest
	if err := c.BodyParser(&body); err != nil {
		return engine.BadRequestError("Invalid JSON body")
	}

	if err := h.db.ResetAll(c.UserContext(), engine.Answer(body.Confirm)); err != nil {
		return err
	}
	tables, err := h.db.Tables()
	if err != nil {
		return err
	}
	h.log.Warn("api.reset.done", zap.String("user", userID(c)))
	return c.JSON(fiber.Map{"data": fiber.Map{"tables": tables}})
}

// resolveEntity accepts an entity name, a table name or its plural.
func (h *Handler) resolveEntity(name string) (*metadata.Entity, error) {
	reg := h.db.Registry()
	if e := reg.GetEntity(name); e != nil {
		return e, nil
	}
	if e := reg.GetEntity(strings.TrimSuffix(name, "s")); e != nil {
		return e, nil
	}
	return nil, engine.UnknownEntityError(name)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, engine.BadRequestError(fmt.Sprintf("Invalid id %q", raw))
	}
	return id, nil
}

// parseParam converts a query string value to the field's Go type. "null"
// matches NULL.
func parseParam(f metadata.Field, raw string) (any, error) {
	if raw == "null" {
		return nil, nil
	}
	if f.IsReference() {
		return strconv.ParseInt(raw, 10, 64)
	}
	if f.Kind == metadata.KindSequence {
		return raw, nil
	}
	switch f.Type {
	case metadata.TypeInt:
		return strconv.ParseInt(raw, 10, 64)
	case metadata.TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case metadata.TypeBoolean:
		return strconv.ParseBool(raw)
	}
	return raw, nil
}
