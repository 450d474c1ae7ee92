package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeGenerateProject = "project:generate"
)

type GeneratePayload struct {
	ProjectID string `json:"project_id"`
}

// Queue 生成任务入队客户端（asynq），由 main 构造并注入 API 层
type Queue struct {
	client *asynq.Client
}

func NewQueue(redisOpt asynq.RedisClientOpt) *Queue {
	return &Queue{client: asynq.NewClient(redisOpt)}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// EnqueueGenerateProject 触发一次项目生成运行。触发方立即返回，
// 进度通过轮询项目记录观察。
func (q *Queue) EnqueueGenerateProject(projectID string) error {
	payload, err := json.Marshal(GeneratePayload{ProjectID: projectID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeGenerateProject, payload,
		asynq.MaxRetry(2),             // 入队层面的失败重试；业务失败由管线写回 status
		asynq.Timeout(30*time.Minute), // 外部生成服务较慢，放宽超时
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	)

	info, err := q.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] Task Enqueued: Project=%s, TaskID=%s", projectID, info.ID)
	return nil
}
