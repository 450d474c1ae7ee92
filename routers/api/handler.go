package api

import (
	"ShortReel-server/models"
	"ShortReel-server/service"
)

// Store API 层需要的持久层能力，由 models.Store 实现
type Store interface {
	CreateProject(p *models.Project) error
	GetProjectByID(id string) (*models.Project, error)
	UpdateProjectFields(id string, fields map[string]interface{}) error
	DeleteProjectByID(id string) error
	GetScenesByProjectID(projectID string) ([]models.Scene, error)
}

// Enqueuer 生成任务入队能力，由 service.Queue 实现
type Enqueuer interface {
	EnqueueGenerateProject(projectID string) error
}

// Handler 持有显式注入的依赖，替代包级单例
type Handler struct {
	store     Store
	queue     Enqueuer
	locks     *service.RunRegistry
	mediaRoot string
}

func NewHandler(store Store, queue Enqueuer, locks *service.RunRegistry, mediaRoot string) *Handler {
	return &Handler{
		store:     store,
		queue:     queue,
		locks:     locks,
		mediaRoot: mediaRoot,
	}
}
