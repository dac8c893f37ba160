package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

type MetricsHandler struct {
	s service.MetricsService
}

func NewMetricsHandler(s service.MetricsService) *MetricsHandler {
	return &MetricsHandler{s: s}
}

// GetMetrics accepts from and to as RFC 3339 timestamps or plain dates.
// A plain date for to includes that whole day.
func (h *MetricsHandler) GetMetrics(c *fiber.Ctx) error {
	from, _, err := parseTime(c.Query("from"))
	if err != nil {
		return badRequest(c, "Invalid from")
	}
	to, dateOnly, err := parseTime(c.Query("to"))
	if err != nil {
		return badRequest(c, "Invalid to")
	}
	if dateOnly {
		to = to.AddDate(0, 0, 1)
	}

	platform := c.Query("platform")
	if platform != "" && !models.IsValidPlatform(platform) {
		return badRequest(c, "Unknown platform")
	}

	report, err := h.s.Aggregate(c.Context(), GetOrganizationID(c), service.MetricsQuery{
		From:     from,
		To:       to,
		Platform: models.Platform(platform),
		PostID:   c.Query("post_id"),
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func parseTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}
