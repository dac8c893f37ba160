package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/api/handlers"
)

type Handlers struct {
	Post    *handlers.PostHandler
	Channel *handlers.ChannelHandler
	Media   *handlers.MediaHandler
	Metrics *handlers.MetricsHandler
}

// Register mounts every authenticated route under /api.
func Register(app *fiber.App, auth fiber.Handler, h Handlers) {
	api := app.Group("/api")
	api.Use(auth)

	api.Post("/posts", h.Post.CreatePost)
	api.Get("/posts", h.Post.ListPosts)
	api.Get("/posts/:id", h.Post.GetPost)
	api.Put("/posts/:id", h.Post.UpdatePost)
	api.Delete("/posts/:id", h.Post.RemovePost)
	api.Post("/posts/:id/channels", h.Post.AttachChannel)
	api.Delete("/posts/:id/channels/:channelId", h.Post.DetachChannel)
	api.Post("/posts/:id/validate", h.Post.ValidatePost)
	api.Post("/posts/:id/publish", h.Post.PublishPost)
	api.Post("/posts/:id/draft", h.Post.ReturnToDraft)
	api.Get("/posts/:id/status", h.Post.PostStatus)

	api.Get("/channels", h.Channel.ListChannels)
	api.Post("/media", h.Media.UploadMedia)
	api.Get("/metrics", h.Metrics.GetMetrics)
}
