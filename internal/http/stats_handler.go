package http

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"glimpse/internal/engine"
)

// GetStatsAction serves the combined stats snapshot.
func (h *Handler) GetStatsAction(c *fiber.Ctx) error {
	return c.JSON(h.engine.GetStats())
}

// GetMonthlyDataAction serves the index-aligned monthly series.
func (h *Handler) GetMonthlyDataAction(c *fiber.Ctx) error {
	return c.JSON(h.engine.GetMonthlyData())
}

// GetCountryDataAction serves per-country counts. Entries recorded without
// a display name fall back to the upper-cased ISO code.
func (h *Handler) GetCountryDataAction(c *fiber.Ctx) error {
	caser := cases.Upper(language.AmericanEnglish)

	countries := h.engine.GetCountryData()
	result := make(map[string]engine.CountrySummary, len(countries))
	for code, country := range countries {
		if country.Name == "" {
			country.Name = caser.String(code)
		}
		result[code] = country
	}

	return c.JSON(result)
}
