package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ShortReel-server/service"

	"github.com/gin-gonic/gin"
)

// 媒体文件只读服务：从本地媒体根目录按路径读出，
// 拒绝目录穿越，按扩展名推断 Content-Type。
func (h *Handler) ServeMedia(c *gin.Context) {
	rel := c.Param("filepath")

	root, err := filepath.Abs(h.mediaRoot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "media root unavailable"})
		return
	}
	full, err := filepath.Abs(filepath.Join(root, filepath.Clean("/"+rel)))
	if err != nil || !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid path"})
		return
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.Header("Content-Type", service.ContentTypeByExt(full))
	c.Header("Cache-Control", "public, max-age=31536000")
	c.File(full)
}
