package routers

import (
	"ShortReel-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(h *api.Handler) *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", h.CreateProject)
		v1.GET("/projects/:project_id", h.GetProject)
		v1.PUT("/projects/:project_id", h.UpdateProject)
		v1.DELETE("/projects/:project_id", h.DeleteProject)
		v1.POST("/projects/:project_id/generate", h.TriggerGenerate)
		v1.GET("/projects/:project_id/scenes", h.GetScenes)
		v1.GET("/media/*filepath", h.ServeMedia)
	}
	r.GET("/projects/:project_id/wss", h.ProjectProgressWebSocket)
	return r
}
