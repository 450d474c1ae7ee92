package service

import (
	"context"
	"io"
	"net/http"

	"ShortReel-server/models"
)

// SceneDraft 剧本阶段产出的分镜草稿（描述 + 目标时长）
type SceneDraft struct {
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
}

// ScriptResult 剧本阶段输出：整片旁白文本 + 有序分镜列表
type ScriptResult struct {
	Script string       `json:"script"`
	Scenes []SceneDraft `json:"scenes"`
}

// MediaResult 生图阶段的单分镜结果，与输入分镜按下标一一对应。
// Error 非空且 URL 为空表示该分镜隔离失败，不影响兄弟分镜。
type MediaResult struct {
	Prompt   string  `json:"prompt"`
	Filename string  `json:"filename,omitempty"`
	URL      string  `json:"url,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// WordTimestamp 单词级时间戳（秒）
type WordTimestamp struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcript 持久化的对齐产物。转写失败时 Words 为空、Error 记录原因，
// 项目仍可带降级字幕进入 completed。
type Transcript struct {
	ProjectID string          `json:"project_id"`
	Words     []WordTimestamp `json:"words"`
	Error     string          `json:"error,omitempty"`
}

// VoiceConfig 旁白合成参数
type VoiceConfig struct {
	Model     string `json:"model"`
	Encoding  string `json:"encoding"`
	Container string `json:"container"`
}

// 生成服务协作方契约。管线只依赖输入输出形状，不关心各实现内部。

type ScriptWriter interface {
	Generate(ctx context.Context, description string) (*ScriptResult, error)
}

type ImageSynthesizer interface {
	Name() string
	Synthesize(ctx context.Context, prompt string) ([]byte, error)
}

type VideoSynthesizer interface {
	// Convert 提交图生视频任务并等待其完成，返回可下载的视频地址
	Convert(ctx context.Context, imageURL, prompt string) (videoURL, requestID string, err error)
}

type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text string, cfg VoiceConfig) ([]byte, http.Header, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) ([]WordTimestamp, error)
}

// ProjectStore 管线需要的持久层能力，由 models.Store 实现
type ProjectStore interface {
	GetProjectByID(id string) (*models.Project, error)
	UpdateProjectStatus(id, status string) error
	UpdateProjectScript(id, script string) error
	ReplaceScenes(projectID string, scenes []models.Scene) error
	GetScenesByProjectID(projectID string) ([]models.Scene, error)
	UpdateSceneFields(sceneID string, fields map[string]interface{}) error
	UpdateScenesByProject(projectID string, fields map[string]interface{}) error
}

// MediaStorage 生成产物的写一次对象存储，由 ObjectStorage (MinIO) 实现
type MediaStorage interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64) (string, error)
}
