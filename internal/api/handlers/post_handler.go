package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s  service.PostService
	ps service.PublishService
}

func NewPostHandler(s service.PostService, ps service.PublishService) *PostHandler {
	return &PostHandler{s: s, ps: ps}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	in, err := parsePostInput(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	post, err := h.s.Create(c.Context(), GetOrganizationID(c), in)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(transfer.NewPostResponse(post))
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	in, err := parsePostInput(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	post, err := h.s.Update(c.Context(), GetOrganizationID(c), c.Params("id"), in)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post))
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	filter := repository.PostFilter{
		Status: models.PostStatus(c.Query("status")),
		Limit:  uint64(max(c.QueryInt("limit", 50), 0)),
		Offset: uint64(max(c.QueryInt("offset", 0), 0)),
	}

	posts, err := h.s.List(c.Context(), GetOrganizationID(c), filter)
	if err != nil {
		return errorResponse(c, err)
	}

	out := make([]transfer.PostResponse, len(posts))
	for i, p := range posts {
		out[i] = transfer.NewPostResponse(p)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.s.Get(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post))
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Delete(c.Context(), GetOrganizationID(c), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) AttachChannel(c *fiber.Ctx) error {
	var req transfer.AttachChannelRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Info(err.Error())
		return badRequest(c, "Unable to parse body")
	}
	if req.ChannelID == "" {
		return badRequest(c, "channel_id is required")
	}

	sp, err := h.s.AttachChannel(c.Context(), GetOrganizationID(c), c.Params("id"), req.ChannelID, req.ScheduledAt)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sp)
}

func (h *PostHandler) DetachChannel(c *fiber.Ctx) error {
	if err := h.s.DetachChannel(c.Context(), GetOrganizationID(c), c.Params("id"), c.Params("channelId")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) ValidatePost(c *fiber.Ctx) error {
	result, err := h.s.Validate(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.ValidationResponse{Valid: result == nil, Errors: result})
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	post, err := h.ps.Publish(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post))
}

func (h *PostHandler) ReturnToDraft(c *fiber.Ctx) error {
	post, err := h.ps.ReturnToDraft(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post))
}

// PostStatus reports the aggregate status derived from the channel rows
// together with each channel's own state.
func (h *PostHandler) PostStatus(c *fiber.Ctx) error {
	post, err := h.s.Get(c.Context(), GetOrganizationID(c), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	resp := transfer.PostStatusResponse{
		PostID:   post.ID,
		Channels: make([]transfer.ChannelStatus, len(post.Channels)),
	}
	statuses := make([]models.ScheduledPostStatus, len(post.Channels))
	for i, sp := range post.Channels {
		statuses[i] = sp.Status
		resp.Channels[i] = transfer.ChannelStatus{
			ChannelID:           sp.ChannelID,
			Status:              sp.Status,
			ScheduledAt:         sp.ScheduledAt,
			PublishedAt:         sp.PublishedAt,
			FailureReason:       sp.FailureReason,
			ExternalReferenceID: sp.ExternalReferenceID,
			ExternalURL:         sp.ExternalURL,
		}
		if sp.Channel != nil {
			resp.Channels[i].Platform = sp.Channel.Platform
		}
	}
	resp.Status = models.DeriveStatus(statuses)

	return c.Status(fiber.StatusOK).JSON(resp)
}

func parsePostInput(c *fiber.Ctx) (service.PostInput, error) {
	var req transfer.PostRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Info(err.Error())
		return service.PostInput{}, fiber.NewError(fiber.StatusBadRequest, "Unable to parse body")
	}

	payload, err := req.DecodePayload()
	if err != nil {
		return service.PostInput{}, fiber.NewError(fiber.StatusBadRequest, "Invalid payload: "+err.Error())
	}
	return service.PostInput{Name: req.Name, ScheduledAt: req.ScheduledAt, Payload: payload}, nil
}
