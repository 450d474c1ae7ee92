package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ShortReel-server/models"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrRunInProgress 同一项目已有生成运行在进行，第二次触发被拒绝
var ErrRunInProgress = errors.New("generation already in progress for this project")

// Pipeline 多阶段生成管线编排器。驱动 剧本 -> 生图 -> 生视频 -> 旁白 ->
// 对齐 的依赖顺序执行，持有项目状态机，并在每个阶段完成后写回持久层，
// 让轮询项目记录的调用方能观察到中间进度。
//
// 错误分级：
//   - 致命（剧本、旁白、持久层写失败）：status=failed 并停止
//   - 隔离（单分镜图/视频失败）：只记录在该分镜上，运行继续
//   - 降级（转写失败）：空字幕 + 错误标记，项目仍可 completed
type Pipeline struct {
	store    ProjectStore
	storage  MediaStorage
	script   ScriptWriter
	images   *ImageStage
	videos   *VideoStage
	voice    VoiceSynthesizer
	align    *AlignmentStage
	locks    *RunRegistry
	voiceCfg VoiceConfig
}

func NewPipeline(
	store ProjectStore,
	storage MediaStorage,
	script ScriptWriter,
	images *ImageStage,
	videos *VideoStage,
	voice VoiceSynthesizer,
	align *AlignmentStage,
	locks *RunRegistry,
	voiceCfg VoiceConfig,
) *Pipeline {
	return &Pipeline{
		store:    store,
		storage:  storage,
		script:   script,
		images:   images,
		videos:   videos,
		voice:    voice,
		align:    align,
		locks:    locks,
		voiceCfg: voiceCfg,
	}
}

// Locks 暴露运行注册表给 API 层（触发预检、删除时取消）
func (p *Pipeline) Locks() *RunRegistry {
	return p.locks
}

// StartProcessor 启动 asynq 消费者，在后台执行生成任务
func (p *Pipeline) StartProcessor(redisOpt asynq.RedisClientOpt, concurrency int) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeGenerateProject, p.HandleGenerateProject)

	log.Printf("Starting Pipeline Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()
}

// HandleGenerateProject asynq 任务入口。管线从不把阶段错误抛给触发方，
// 失败只通过项目 status 反映。
func (p *Pipeline) HandleGenerateProject(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	if err := p.Run(ctx, payload.ProjectID); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			log.Printf("[pipeline] 项目 %s 已有运行在进行，忽略重复触发", payload.ProjectID)
			return nil
		}
		// 业务失败已写回 status=failed，不触发 asynq 重试
		log.Printf("[pipeline] 项目 %s 生成失败: %v", payload.ProjectID, err)
	}
	return nil
}

// Run 执行一次完整的生成运行。运行期间持有该项目的生成锁，
// 终态（completed/failed）落库后释放。
func (p *Pipeline) Run(ctx context.Context, projectID string) error {
	runCtx, release, ok := p.locks.Acquire(ctx, projectID)
	if !ok {
		return ErrRunInProgress
	}
	defer release()

	// 项目不存在是致命错误：没有记录可以标记失败，直接返回
	project, err := p.store.GetProjectByID(projectID)
	if err != nil {
		return fmt.Errorf("project not found: %w", err)
	}

	if err := p.store.UpdateProjectStatus(projectID, models.ProjectStatusGenerating); err != nil {
		return fmt.Errorf("标记 generating 失败: %w", err)
	}
	log.Printf("[pipeline] 项目 %s 开始生成: %q", projectID, project.Title)

	// ── 阶段 1: 剧本 ──
	scriptResult, err := p.script.Generate(runCtx, project.Description)
	if err != nil {
		return p.fail(projectID, "script", err)
	}
	scenes := buildScenes(projectID, scriptResult.Scenes)
	if err := p.store.UpdateProjectScript(projectID, scriptResult.Script); err != nil {
		return p.fail(projectID, "script", err)
	}
	// 分镜整体替换上一次运行的分镜
	if err := p.store.ReplaceScenes(projectID, scenes); err != nil {
		return p.fail(projectID, "script", err)
	}
	log.Printf("[pipeline] 项目 %s 剧本完成，共 %d 个分镜", projectID, len(scenes))

	if err := runCtx.Err(); err != nil {
		return p.fail(projectID, "cancelled", err)
	}

	// ── 阶段 2: 分镜生图（fallback 链 + 有界并发，单分镜失败隔离）──
	imageResults := p.images.Generate(runCtx, projectID, scenes)
	for i, r := range imageResults {
		fields := map[string]interface{}{}
		if r.URL != "" {
			scenes[i].ImageUrl = r.URL
			fields["image_url"] = r.URL
		} else {
			scenes[i].Error = r.Error
			fields["error"] = r.Error
		}
		if err := p.store.UpdateSceneFields(scenes[i].ID, fields); err != nil {
			return p.fail(projectID, "image", err)
		}
	}

	if err := runCtx.Err(); err != nil {
		return p.fail(projectID, "cancelled", err)
	}

	// ── 阶段 3: 图生视频（best-effort，无图分镜跳过）──
	scenes = p.videos.Generate(runCtx, projectID, scenes)
	for i := range scenes {
		if scenes[i].VideoUrl == "" {
			continue
		}
		if err := p.store.UpdateSceneFields(scenes[i].ID, map[string]interface{}{
			"video_url": scenes[i].VideoUrl,
		}); err != nil {
			return p.fail(projectID, "video", err)
		}
	}

	if err := runCtx.Err(); err != nil {
		return p.fail(projectID, "cancelled", err)
	}

	// ── 阶段 4: 整片旁白（单次调用，失败致命）──
	audio, _, err := p.voice.Synthesize(runCtx, scriptResult.Script, p.voiceCfg)
	if err != nil {
		return p.fail(projectID, "audio", err)
	}
	audioName := fmt.Sprintf("projects/%s/narration-%d.wav", projectID, time.Now().UnixMilli())
	audioURL, err := p.storage.Put(runCtx, audioName, bytes.NewReader(audio), int64(len(audio)))
	if err != nil {
		return p.fail(projectID, "audio", err)
	}
	log.Printf("[pipeline] 项目 %s 旁白完成: %s", projectID, audioName)

	// ── 阶段 5: 时间戳对齐（转写失败降级，不中断）──
	transcript, transcriptURL, err := p.align.Align(runCtx, projectID, audio, audioURL)
	if err != nil {
		return p.fail(projectID, "align", err)
	}
	// 旁白与字幕都是项目级产物，引用挂到每个分镜上
	if err := p.store.UpdateScenesByProject(projectID, map[string]interface{}{
		"audio_url":      audioURL,
		"transcript_url": transcriptURL,
	}); err != nil {
		return p.fail(projectID, "align", err)
	}
	if transcript.Error != "" {
		log.Printf("[pipeline] 项目 %s 字幕降级: %s", projectID, transcript.Error)
	}

	if err := p.store.UpdateProjectStatus(projectID, models.ProjectStatusCompleted); err != nil {
		return p.fail(projectID, "finalize", err)
	}
	log.Printf("[pipeline] 项目 %s 生成完成", projectID)
	return nil
}

// fail 记录致命阶段错误并把项目置为 failed
func (p *Pipeline) fail(projectID, stage string, cause error) error {
	log.Printf("[pipeline] 项目 %s 阶段 %s 致命错误: %v", projectID, stage, cause)
	if err := p.store.UpdateProjectStatus(projectID, models.ProjectStatusFailed); err != nil {
		log.Printf("[pipeline] 标记 failed 也失败了: %v", err)
	}
	return fmt.Errorf("stage %s: %w", stage, cause)
}

// buildScenes 由分镜草稿构建持久化分镜，保证 order 从 0 连续递增
func buildScenes(projectID string, drafts []SceneDraft) []models.Scene {
	scenes := make([]models.Scene, 0, len(drafts))
	for i, d := range drafts {
		duration := d.Duration
		if duration <= 0 {
			duration = 5
		}
		scenes = append(scenes, models.Scene{
			ID:          uuid.NewString(),
			ProjectId:   projectID,
			Order:       i,
			Description: d.Description,
			Duration:    duration,
		})
	}
	return scenes
}
