package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GeminiScriptWriter 调用 Gemini 风格的结构化输出接口，把自由文本描述
// 转成 {script, scenes} 剧本。剧本失败对管线是致命错误。
type GeminiScriptWriter struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGeminiScriptWriter(endpoint, apiKey, model string, timeout time.Duration) *GeminiScriptWriter {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiScriptWriter{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// 约束模型返回严格的 JSON 结构，避免手工解析散文
var scriptResponseSchema = map[string]interface{}{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"script": map[string]interface{}{
			"type":        "STRING",
			"description": "The generated narration script for the video",
		},
		"scenes": map[string]interface{}{
			"type":        "ARRAY",
			"description": "List of scenes with descriptions and durations",
			"items": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"description": map[string]interface{}{
						"type":        "STRING",
						"description": "Detailed description of the scene for image generation",
					},
					"duration": map[string]interface{}{
						"type":        "NUMBER",
						"description": "Duration of the scene in seconds",
					},
				},
				"required": []string{"description", "duration"},
			},
		},
	},
	"required": []string{"script", "scenes"},
}

func (w *GeminiScriptWriter) Generate(ctx context.Context, description string) (*ScriptResult, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("description is required")
	}

	prompt := fmt.Sprintf(`Generate a short-form video script based on the following description.

Follow these rules:
- Length: 30-60 seconds total
- Tone: Engaging and conversational
- Structure: Hook -> Content -> Call to action
- Break down into 3-5 scenes
- Each scene should have a specific duration

IMPORTANT - For scene descriptions:
- First establish the setting, characters, and their key attributes
- Each subsequent scene should explicitly reference elements from previous scenes
- Maintain visual consistency for characters (same appearance, clothing, colors)
- Each description should be self-contained but also build on the previous scene
- Use precise, detailed language optimized for text-to-image generation

Description: %s`, description)

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"responseSchema":   scriptResponseSchema,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", w.endpoint, w.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", w.apiKey)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("script provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("script provider status: %d", resp.StatusCode)
	}

	var raw struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}
	if len(raw.Candidates) == 0 || len(raw.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("script provider returned no candidates")
	}

	var result ScriptResult
	if err := json.Unmarshal([]byte(raw.Candidates[0].Content.Parts[0].Text), &result); err != nil {
		return nil, fmt.Errorf("解析剧本 JSON 失败: %w", err)
	}
	if result.Script == "" || len(result.Scenes) == 0 {
		return nil, fmt.Errorf("script provider returned empty script or scenes")
	}
	return &result, nil
}
