package api

import (
	"net/http"
	"time"

	"ShortReel-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 项目生成进度 WebSocket 推送（以数据库为来源：循环轮询并推送变化）。
// 管线写回进度的逻辑由后台处理器负责，这里只订阅并推送最新数据。
func (h *Handler) ProjectProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	push := func() (status string, sceneCount int, ok bool) {
		project, err := h.store.GetProjectByID(projectID)
		if err != nil {
			return "", 0, false
		}
		scenes, err := h.store.GetScenesByProjectID(projectID)
		if err != nil {
			scenes = nil
		}
		_ = conn.WriteJSON(gin.H{"project": project, "scenes": scenes})
		return project.Status, len(scenes), true
	}

	prevStatus, prevScenes, ok := push()
	if !ok {
		_ = conn.WriteJSON(gin.H{"error": "project not found"})
		return
	}

	// 每秒查询一次直到进入终态
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		project, err := h.store.GetProjectByID(projectID)
		if err != nil {
			// 项目可能已被删除，断开连接
			break
		}
		scenes, _ := h.store.GetScenesByProjectID(projectID)

		if project.Status != prevStatus || len(scenes) != prevScenes {
			if err := conn.WriteJSON(gin.H{"project": project, "scenes": scenes}); err != nil {
				break
			}
			prevStatus = project.Status
			prevScenes = len(scenes)
		}

		if models.IsTerminal(project.Status) {
			_ = conn.WriteJSON(gin.H{"project": project, "scenes": scenes})
			break
		}
	}
}
