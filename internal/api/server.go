// Package api serves the exam bank over HTTP: read access to every stored
// table, PDF upload for ingestion and an admin reset.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"exambank/internal/auth"
	"exambank/internal/engine"
)

type Options struct {
	JWTSecret string
	BodyLimit int // bytes; 0 keeps fiber's default
	Logger    *zap.Logger
}

// NewApp builds the fiber app with all routes registered.
func NewApp(h *Handler, opts Options) *fiber.App {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(log),
		BodyLimit:             opts.BodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	RegisterRoutes(app, h, auth.AuthMiddleware(opts.JWTSecret))
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	api := app.Group("/api")

	api.Post("/_admin/reset", authMW, auth.RequireAdmin(), h.Reset)
	api.Post("/exams", authMW, auth.RequireRole(auth.RoleIngest), h.Ingest)

	api.Get("/pdf/:id/file", h.PdfFile)
	api.Get("/:entity", h.List)
	api.Get("/:entity/:id", h.GetByID)
	api.Get("/:entity/:id/:child", h.Children)
}

// ErrorHandler renders errors as {"error": {...}}. Known gateway errors are
// mapped to their HTTP status; anything else is logged and hidden.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			return c.Status(code).JSON(engine.ErrorResponse{
				Error: &engine.AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
			})
		}

		var appErr *engine.AppError
		if errors.As(engine.ToAppError(err), &appErr) {
			return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
		}

		log.Error("api.internal_error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(code).JSON(engine.ErrorResponse{
			Error: &engine.AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}

func userID(c *fiber.Ctx) string {
	if u := auth.GetUser(c); u != nil {
		return u.ID
	}
	return ""
}
