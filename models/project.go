package models

import "time"

// 项目状态常量（生成管线状态机：draft -> generating -> completed | failed）
const (
	ProjectStatusDraft      = "draft"      // 项目已创建，未触发生成
	ProjectStatusGenerating = "generating" // 管线运行中，分阶段写回进度
	ProjectStatusCompleted  = "completed"  // 所有致命阶段成功（允许个别分镜降级）
	ProjectStatusFailed     = "failed"     // 致命阶段出错或运行被取消
)

type Project struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Script      string    `gorm:"type:text" json:"script,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

// IsTerminal 终态项目不会被管线自动重入；重新生成需要显式再次触发
func IsTerminal(status string) bool {
	return status == ProjectStatusCompleted || status == ProjectStatusFailed
}
