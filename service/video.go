package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"ShortReel-server/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FalVideo 图生视频服务。此类 provider 是排队异步的：提交后拿到
// request_id，轮询状态直到就绪或带终态失败。
type FalVideo struct {
	endpoint     string
	apiKey       string
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	httpClient   *http.Client
}

func NewFalVideo(endpoint, apiKey, model string, pollInterval, pollTimeout time.Duration) *FalVideo {
	if model == "" {
		model = "fal-ai/kling-video/v1.6/pro/image-to-video"
	}
	return &FalVideo{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		model:        model,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *FalVideo) Convert(ctx context.Context, imageURL, prompt string) (string, string, error) {
	requestID, err := f.submit(ctx, imageURL, prompt)
	if err != nil {
		return "", "", err
	}
	log.Printf("[video] 任务已提交，Request ID: %s，开始轮询结果...", requestID)

	videoURL, err := f.pollResult(ctx, requestID)
	if err != nil {
		return "", requestID, err
	}
	return videoURL, requestID, nil
}

func (f *FalVideo) submit(ctx context.Context, imageURL, prompt string) (string, error) {
	reqBody, err := json.Marshal(map[string]string{
		"prompt":    prompt,
		"image_url": imageURL,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint+"/"+f.model, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		if isTransientStatus(resp.StatusCode) {
			return "", fmt.Errorf("video provider status: %d", resp.StatusCode)
		}
		return "", Permanent(fmt.Errorf("video provider status: %d", resp.StatusCode))
	}

	var respData struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("decode response failed: %w", err)
	}
	if respData.RequestID == "" {
		return "", Permanent(fmt.Errorf("response missing 'request_id'"))
	}
	return respData.RequestID, nil
}

// pollResult 轮询直到任务完成。网络抖动继续轮询；provider 报告的
// 终态失败不再重试。
func (f *FalVideo) pollResult(ctx context.Context, requestID string) (string, error) {
	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", f.endpoint, f.model, requestID)

	timeout := time.After(f.pollTimeout)
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return "", fmt.Errorf("polling timeout for request %s", requestID)
		case <-ctx.Done():
			return "", fmt.Errorf("polling canceled: %w", ctx.Err())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
			if err != nil {
				continue
			}
			req.Header.Set("Authorization", "Key "+f.apiKey)

			resp, err := f.httpClient.Do(req)
			if err != nil {
				log.Printf("[video] 轮询网络错误(重试中): %v", err)
				continue
			}

			var status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
				Video  struct {
					URL string `json:"url"`
				} `json:"video"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if decodeErr != nil {
				log.Printf("[video] 解析轮询响应失败: %v", decodeErr)
				continue
			}

			switch strings.ToUpper(status.Status) {
			case "COMPLETED", "SUCCEEDED", "FINISHED":
				if status.Video.URL == "" {
					return "", Permanent(fmt.Errorf("no video URL in completed response"))
				}
				return status.Video.URL, nil
			case "FAILED", "ERROR":
				return "", Permanent(fmt.Errorf("video provider reported failure: %s", status.Error))
			}
			// 其他状态（排队/处理中）继续轮询
		}
	}
}

// VideoStage 把每个已有关键帧的分镜转成短视频片段。
// 逐分镜 best-effort：失败只记日志、分镜保持无 videoUrl，不中断批次；
// 没有图片的分镜直接跳过。
type VideoStage struct {
	synth       VideoSynthesizer
	storage     MediaStorage
	parallelism int
	attempts    int
	retryBase   time.Duration
	httpClient  *http.Client
}

func NewVideoStage(synth VideoSynthesizer, storage MediaStorage, parallelism, attempts int, retryBase time.Duration) *VideoStage {
	if parallelism <= 0 {
		parallelism = 2
	}
	return &VideoStage{
		synth:       synth,
		storage:     storage,
		parallelism: parallelism,
		attempts:    attempts,
		retryBase:   retryBase,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate 返回与输入等长、同序的分镜切片，成功的分镜带 VideoUrl
func (s *VideoStage) Generate(ctx context.Context, projectID string, scenes []models.Scene) []models.Scene {
	out := make([]models.Scene, len(scenes))
	copy(out, scenes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i := range out {
		i := i
		if out[i].ImageUrl == "" {
			// 生图失败的分镜不尝试生视频
			continue
		}
		g.Go(func() error {
			videoURL, err := s.generateOne(gctx, projectID, i, out[i])
			if err != nil {
				log.Printf("[video] 分镜 %d 生成视频失败（保留无视频状态）: %v", i, err)
				return nil
			}
			out[i].VideoUrl = videoURL
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *VideoStage) generateOne(ctx context.Context, projectID string, index int, scene models.Scene) (string, error) {
	var remoteURL string
	err := withRetry(ctx, s.attempts, s.retryBase, func() error {
		u, _, err := s.synth.Convert(ctx, scene.ImageUrl, scene.Description)
		if err != nil {
			return err
		}
		remoteURL = u
		return nil
	})
	if err != nil {
		return "", err
	}

	data, err := fetchBytes(ctx, s.httpClient, remoteURL)
	if err != nil {
		return "", fmt.Errorf("下载视频失败: %w", err)
	}

	filename := fmt.Sprintf("scene-%d-%d-%s.mp4", index, time.Now().UnixMilli(), uuid.NewString()[:8])
	objectName := fmt.Sprintf("projects/%s/videos/%s", projectID, filename)
	return s.storage.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)))
}
