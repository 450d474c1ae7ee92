package models

import "time"

// Scene 单个分镜。每次生成运行会整体重建项目的分镜列表，
// 不与上一次运行的分镜合并。`Order` 从 0 起连续递增。
type Scene struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId     string    `gorm:"index" json:"projectId"`
	Order         int       `gorm:"column:order_no" json:"order"`
	Description   string    `gorm:"type:text" json:"description"`
	Duration      float64   `json:"duration"`
	ImageUrl      string    `json:"imageUrl,omitempty"`
	VideoUrl      string    `json:"videoUrl,omitempty"`
	AudioUrl      string    `json:"audioUrl,omitempty"`
	TranscriptUrl string    `json:"transcriptUrl,omitempty"`
	Error         string    `json:"error,omitempty"` // 单分镜隔离失败的原因，不影响兄弟分镜
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Scene) TableName() string {
	return "scene"
}
