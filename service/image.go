package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ShortReel-server/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PollinationsImage 主力生图服务：GET 即出图，无需排队
type PollinationsImage struct {
	endpoint   string
	width      int
	height     int
	model      string
	httpClient *http.Client
}

func NewPollinationsImage(endpoint string, width, height int, model string, timeout time.Duration) *PollinationsImage {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	if model == "" {
		model = "flux"
	}
	return &PollinationsImage{
		endpoint:   strings.TrimRight(endpoint, "/"),
		width:      width,
		height:     height,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PollinationsImage) Name() string { return "pollinations" }

func (p *PollinationsImage) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&seed=%d&model=%s",
		p.endpoint, url.PathEscape(prompt), p.width, p.height, rand.Intn(1000000), p.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from pollinations", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	// 响应过小通常是错误页而不是图片
	if len(data) < 100 {
		return nil, fmt.Errorf("response too small (%d bytes)", len(data))
	}
	return data, nil
}

// FalImage 备选生图服务：POST 提交，同步返回图片地址后下载字节
type FalImage struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewFalImage(endpoint, apiKey, model string, timeout time.Duration) *FalImage {
	if model == "" {
		model = "fal-ai/recraft-20b"
	}
	return &FalImage{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *FalImage) Name() string { return "fal" }

func (f *FalImage) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"prompt": prompt,
		"image_size": map[string]int{
			"width":  720,
			"height": 1080,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint+"/"+f.model, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from fal", resp.StatusCode)
	}

	var raw struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	if len(raw.Images) == 0 || raw.Images[0].URL == "" {
		return nil, fmt.Errorf("response missing image url")
	}

	return fetchBytes(ctx, f.httpClient, raw.Images[0].URL)
}

// ImageStage 按分镜生图：依序尝试 provider 链（主力 + 备选），
// 两者都失败只标记该分镜，不中断整个批次。
type ImageStage struct {
	providers   []ImageSynthesizer // 有序 fallback 链
	storage     MediaStorage
	parallelism int
	timeout     time.Duration
}

func NewImageStage(providers []ImageSynthesizer, storage MediaStorage, parallelism int, timeout time.Duration) *ImageStage {
	if parallelism <= 0 {
		parallelism = 3
	}
	return &ImageStage{
		providers:   providers,
		storage:     storage,
		parallelism: parallelism,
		timeout:     timeout,
	}
}

// Generate 对每个分镜产出一个 MediaResult，len(结果) == len(输入)，
// 下标寻址写回保证结果顺序与完成顺序无关。
func (s *ImageStage) Generate(ctx context.Context, projectID string, scenes []models.Scene) []MediaResult {
	results := make([]MediaResult, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i := range scenes {
		i := i
		scene := scenes[i]
		g.Go(func() error {
			results[i] = s.generateOne(gctx, projectID, i, scene)
			return nil // 单分镜失败已记录在结果里，不向上冒泡
		})
	}
	_ = g.Wait()

	return results
}

func (s *ImageStage) generateOne(ctx context.Context, projectID string, index int, scene models.Scene) MediaResult {
	result := MediaResult{Prompt: scene.Description, Duration: scene.Duration}

	data, providerName, err := s.synthesizeWithFallback(ctx, scene.Description)
	if err != nil {
		log.Printf("[image] 分镜 %d 全部 provider 失败: %v", index, err)
		result.Error = err.Error()
		return result
	}

	// 文件名带时间与随机后缀，多分镜/多次运行共享同一命名空间不会冲突
	filename := fmt.Sprintf("scene-%d-%s-%d-%s.png", index, providerName, time.Now().UnixMilli(), uuid.NewString()[:8])
	objectName := fmt.Sprintf("projects/%s/images/%s", projectID, filename)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	fileURL, err := s.storage.Put(callCtx, objectName, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Printf("[image] 分镜 %d 图片上传失败: %v", index, err)
		result.Error = fmt.Sprintf("store image failed: %v", err)
		return result
	}

	result.Filename = filename
	result.URL = fileURL
	return result
}

// synthesizeWithFallback 依序尝试 provider 链，首个成功即停；
// 全部失败时聚合各 provider 的错误
func (s *ImageStage) synthesizeWithFallback(ctx context.Context, prompt string) ([]byte, string, error) {
	var failures []string
	for _, provider := range s.providers {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		data, err := provider.Synthesize(callCtx, prompt)
		cancel()
		if err == nil {
			return data, provider.Name(), nil
		}
		log.Printf("[image] provider %s 失败，尝试下一个: %v", provider.Name(), err)
		failures = append(failures, fmt.Sprintf("%s: %v", provider.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", fmt.Errorf("all image providers failed: %s", strings.Join(failures, "; "))
}

// fetchBytes 下载远端资源为字节
func fetchBytes(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
