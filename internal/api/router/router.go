package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/pixelmend/inpaint-service/internal/api/handlers/task"
	"github.com/pixelmend/inpaint-service/internal/middleware"
)

func Setup(h *task.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/inpaint", h.Submit)          // submitting a masked regeneration
	api.GET("/inpaint/tasks/:id", h.Status) // polling task status by id
	api.GET("/inpaint/history", h.History)  // recent tasks of the principal

	return r
}
