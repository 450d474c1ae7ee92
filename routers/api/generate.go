package api

import (
	"net/http"

	"ShortReel-server/models"

	"github.com/gin-gonic/gin"
)

// 触发项目生成。同步返回，不等待管线完成；进度通过 GET 项目接口观察。
// 同一项目已有运行在进行时拒绝（排他由管线内的生成锁最终保证，
// 这里是入口侧的快速拒绝）。
func (h *Handler) TriggerGenerate(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := h.store.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	if h.locks.Active(projectID) || project.Status == models.ProjectStatusGenerating {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "generation already in progress",
			"project_id": projectID,
		})
		return
	}

	if err := h.queue.EnqueueGenerateProject(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成任务入队失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted":   true,
		"project_id": projectID,
	})
}
