package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DeepgramTranscriber 把旁白音频转成单词级时间戳
type DeepgramTranscriber struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewDeepgramTranscriber(endpoint, apiKey, model string, timeout time.Duration) *DeepgramTranscriber {
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramTranscriber{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *DeepgramTranscriber) Transcribe(ctx context.Context, audio []byte) ([]WordTimestamp, error) {
	url := fmt.Sprintf("%s/v1/listen?model=%s&punctuate=true", t.endpoint, t.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Authorization", "Token "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcriber request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcriber status: %d", resp.StatusCode)
	}

	var raw struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Words []struct {
						Word       string  `json:"word"`
						Start      float64 `json:"start"`
						End        float64 `json:"end"`
						Confidence float64 `json:"confidence"`
					} `json:"words"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	if len(raw.Results.Channels) == 0 || len(raw.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("transcriber returned no alternatives")
	}

	src := raw.Results.Channels[0].Alternatives[0].Words
	words := make([]WordTimestamp, 0, len(src))
	for _, w := range src {
		words = append(words, WordTimestamp{
			Word:       w.Word,
			Start:      w.Start,
			End:        w.End,
			Confidence: w.Confidence,
		})
	}
	return words, nil
}

// AlignmentStage 旁白音频 -> 单词级时间戳 -> 字幕产物。
// 转写失败不会中断管线：持久化空时间戳列表 + 错误标记，项目仍可以
// 降级字幕进入 completed（与其余阶段 fatal-by-default 的策略不同）。
type AlignmentStage struct {
	transcriber Transcriber
	storage     MediaStorage
	cacheDir    string // 本地音频缓存目录，按项目 id 命名、重复调用不再下载
	httpClient  *http.Client
}

func NewAlignmentStage(transcriber Transcriber, storage MediaStorage, cacheDir string) *AlignmentStage {
	return &AlignmentStage{
		transcriber: transcriber,
		storage:     storage,
		cacheDir:    cacheDir,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Align 对齐旁白音频并持久化字幕产物，返回字幕与其访问 URL。
// audio 为空时回退到 audioRef（远端地址）或本地缓存。
func (a *AlignmentStage) Align(ctx context.Context, projectID string, audio []byte, audioRef string) (*Transcript, string, error) {
	audio, err := a.materialize(ctx, projectID, audio, audioRef)
	if err != nil {
		return nil, "", fmt.Errorf("解析旁白音频失败: %w", err)
	}

	transcript := &Transcript{ProjectID: projectID, Words: []WordTimestamp{}}
	words, err := a.transcriber.Transcribe(ctx, audio)
	if err != nil {
		// 降级：空时间戳 + 错误标记，不让整个项目失败
		log.Printf("[align] 转写失败（降级为空字幕）: %v", err)
		transcript.Error = err.Error()
	} else {
		transcript.Words = words
	}

	data, err := json.Marshal(transcript)
	if err != nil {
		return nil, "", fmt.Errorf("序列化字幕失败: %w", err)
	}

	objectName := fmt.Sprintf("projects/%s/transcript.json", projectID)
	transcriptURL, err := a.storage.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("持久化字幕失败: %w", err)
	}
	return transcript, transcriptURL, nil
}

// materialize 把旁白音频落到本地缓存（按项目 id 键控，幂等）：
// 已有缓存直接复用；audio 字节在手则写入缓存；否则从 audioRef 下载一次。
func (a *AlignmentStage) materialize(ctx context.Context, projectID string, audio []byte, audioRef string) ([]byte, error) {
	cachePath := filepath.Join(a.cacheDir, "audio", projectID+".wav")

	if len(audio) > 0 {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(cachePath, audio, 0644); err != nil {
			log.Printf("[align] 写入音频缓存失败（继续处理）: %v", err)
		}
		return audio, nil
	}

	if f, err := os.Open(cachePath); err == nil {
		defer f.Close()
		return io.ReadAll(f)
	}

	if audioRef == "" {
		return nil, fmt.Errorf("no audio bytes, cache, or reference")
	}
	data, err := fetchBytes(ctx, a.httpClient, audioRef)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err == nil {
		_ = os.WriteFile(cachePath, data, 0644)
	}
	return data, nil
}
