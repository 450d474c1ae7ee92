package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DeepgramVoice 整片旁白合成。单次调用、不按分镜拆分：
// 所有分镜共享同一条旁白音轨，部分结果没有意义，失败对管线是致命错误。
type DeepgramVoice struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewDeepgramVoice(endpoint, apiKey, model string, timeout time.Duration) *DeepgramVoice {
	if model == "" {
		model = "aura-asteria-en"
	}
	return &DeepgramVoice{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (v *DeepgramVoice) Synthesize(ctx context.Context, text string, cfg VoiceConfig) ([]byte, http.Header, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("text is required")
	}
	// 缺省参数（调用方配置为空时）
	if cfg.Model == "" {
		cfg.Model = v.model
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.Container == "" {
		cfg.Container = "wav"
	}

	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("encoding", cfg.Encoding)
	q.Set("container", cfg.Container)

	reqBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint+"/v1/speak?"+q.Encode(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("voice provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("voice provider status: %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read audio stream failed: %w", err)
	}
	if len(audio) == 0 {
		return nil, nil, fmt.Errorf("voice provider returned empty audio")
	}
	return audio, resp.Header, nil
}
