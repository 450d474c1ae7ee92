package api

import (
	"log"
	"net/http"
	"strings"

	"ShortReel-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 创建项目（draft 状态，不触发生成）
func (h *Handler) CreateProject(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	project := models.Project{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Status:      models.ProjectStatusDraft,
	}
	if err := h.store.CreateProject(&project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建项目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// 获取项目详情（项目 + 有序分镜列表）
func (h *Handler) GetProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := h.store.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	scenes, err := h.store.GetScenesByProjectID(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取分镜失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project": project,
		"scenes":  scenes,
	})
}

// 获取分镜列表
func (h *Handler) GetScenes(c *gin.Context) {
	projectID := c.Param("project_id")

	scenes, err := h.store.GetScenesByProjectID(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取分镜失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scenes":       scenes,
		"project_id":   projectID,
		"total_scenes": len(scenes),
	})
}

// 更新项目信息（只更新请求提供的字段）
func (h *Handler) UpdateProject(c *gin.Context) {
	projectID := c.Param("project_id")
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetProjectByID(projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	fields := map[string]interface{}{}
	if req.Title != "" {
		fields["title"] = req.Title
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	if len(fields) > 0 {
		if err := h.store.UpdateProjectFields(projectID, fields); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新项目失败: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"project_id": projectID})
}

// 删除项目。若有运行正在进行，先协作式取消，让其以 failed 终止
// 而不是永远停在 generating。
func (h *Handler) DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")

	if h.locks.Cancel(projectID) {
		log.Printf("已取消项目 %s 正在进行的生成运行 (project delete)", projectID)
	}

	if err := h.store.DeleteProjectByID(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除项目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "deleted": true})
}
