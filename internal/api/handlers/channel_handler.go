package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

type ChannelHandler struct {
	s service.PostService
}

func NewChannelHandler(s service.PostService) *ChannelHandler {
	return &ChannelHandler{s: s}
}

func (h *ChannelHandler) ListChannels(c *fiber.Ctx) error {
	channels, err := h.s.ListChannels(c.Context(), GetOrganizationID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	if channels == nil {
		channels = []*models.Channel{}
	}
	return c.Status(fiber.StatusOK).JSON(channels)
}
