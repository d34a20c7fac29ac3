// Package http exposes the engine's mutation entry points and read API
// over fiber.
package http

import (
	"log/slog"
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"

	"glimpse/internal/engine"
)

const (
	msgPageViewRecorded = "Page view recorded"
	msgSaleRecorded     = "Sale recorded"
	errInvalidRequest   = "Invalid request"
)

// Handler bundles the engine with the request handlers.
type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewHandler creates the handler set.
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

// CreatePageViewParams is the POST body for page-view events.
type CreatePageViewParams struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Referrer string `json:"referrer"`
}

// CreatePageViewAction records one page view. Recording is total: only a
// malformed body is rejected.
func (h *Handler) CreatePageViewAction(c *fiber.Ctx) error {
	var params CreatePageViewParams
	if err := c.BodyParser(&params); err != nil {
		h.logger.Debug("Failed to parse page view request", slog.Any("error", err))
		return c.Status(nethttp.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	h.engine.RecordPageView(c.UserContext(), params.Path, params.Title, params.Referrer)

	return c.Status(nethttp.StatusAccepted).JSON(fiber.Map{
		"message": msgPageViewRecorded,
		"status":  nethttp.StatusAccepted,
	})
}

// CreateSaleParams is the POST body for sale events.
type CreateSaleParams struct {
	Amount float64 `json:"amount"`
}

// CreateSaleAction records one sale.
func (h *Handler) CreateSaleAction(c *fiber.Ctx) error {
	var params CreateSaleParams
	if err := c.BodyParser(&params); err != nil {
		h.logger.Debug("Failed to parse sale request", slog.Any("error", err))
		return c.Status(nethttp.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}
	if params.Amount < 0 {
		return c.Status(nethttp.StatusBadRequest).JSON(fiber.Map{"error": "Amount must not be negative"})
	}

	h.engine.RecordSale(c.UserContext(), params.Amount)

	return c.Status(nethttp.StatusAccepted).JSON(fiber.Map{
		"message": msgSaleRecorded,
		"status":  nethttp.StatusAccepted,
	})
}

// ResetAction clears both stores and reinitializes the aggregate record.
func (h *Handler) ResetAction(c *fiber.Ctx) error {
	h.engine.Reset()
	h.logger.Info("Analytics state reset")
	return c.JSON(fiber.Map{"message": "Analytics reset"})
}
