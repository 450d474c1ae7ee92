package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"ShortReel-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeScenes(n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			ID:          fmt.Sprintf("s%d", i),
			ProjectId:   "p1",
			Order:       i,
			Description: fmt.Sprintf("scene %d prompt", i),
			Duration:    5,
		}
	}
	return scenes
}

func TestImageStageResultLengthAndOrder(t *testing.T) {
	// 完成顺序打乱（偶数分镜慢），结果仍按输入下标对齐
	primary := &fakeImageProvider{name: "primary", fn: func(prompt string) ([]byte, error) {
		if strings.Contains(prompt, "0") || strings.Contains(prompt, "2") {
			time.Sleep(30 * time.Millisecond)
		}
		return []byte("img-" + prompt), nil
	}}
	stage := NewImageStage([]ImageSynthesizer{primary}, newFakeStorage(), 4, time.Second)

	scenes := makeScenes(5)
	results := stage.Generate(context.Background(), "p1", scenes)

	require.Len(t, results, len(scenes))
	for i, r := range results {
		assert.Equal(t, scenes[i].Description, r.Prompt, "slot %d", i)
		assert.NotEmpty(t, r.URL)
		assert.Empty(t, r.Error)
	}
}

func TestImageStageFallbackInvokedExactlyOnce(t *testing.T) {
	primary := &fakeImageProvider{name: "primary", fn: func(prompt string) ([]byte, error) {
		return nil, fmt.Errorf("primary down")
	}}
	fallback := &fakeImageProvider{name: "fallback", fn: func(prompt string) ([]byte, error) {
		return []byte("fallback-img"), nil
	}}
	stage := NewImageStage([]ImageSynthesizer{primary, fallback}, newFakeStorage(), 1, time.Second)

	results := stage.Generate(context.Background(), "p1", makeScenes(1))

	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].URL)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, fallback.callCount(), "备选 provider 恰好调用一次")
}

func TestImageStageFallbackNotInvokedOnPrimarySuccess(t *testing.T) {
	primary := okImageProvider("primary")
	fallback := okImageProvider("fallback")
	stage := NewImageStage([]ImageSynthesizer{primary, fallback}, newFakeStorage(), 1, time.Second)

	results := stage.Generate(context.Background(), "p1", makeScenes(3))

	require.Len(t, results, 3)
	assert.Equal(t, 3, primary.callCount())
	assert.Zero(t, fallback.callCount(), "主力成功时不得触发备选")
}

func TestImageStageIsolatesPerSceneFailure(t *testing.T) {
	primary := &fakeImageProvider{name: "primary", fn: func(prompt string) ([]byte, error) {
		if strings.Contains(prompt, "1") {
			return nil, fmt.Errorf("primary boom")
		}
		return []byte("img"), nil
	}}
	fallback := &fakeImageProvider{name: "fallback", fn: func(prompt string) ([]byte, error) {
		return nil, fmt.Errorf("fallback boom")
	}}
	stage := NewImageStage([]ImageSynthesizer{primary, fallback}, newFakeStorage(), 2, time.Second)

	results := stage.Generate(context.Background(), "p1", makeScenes(3))

	require.Len(t, results, 3)
	assert.Empty(t, results[1].URL)
	assert.Empty(t, results[1].Filename)
	// 聚合错误里能看到两个 provider 的原因
	assert.Contains(t, results[1].Error, "primary boom")
	assert.Contains(t, results[1].Error, "fallback boom")

	assert.NotEmpty(t, results[0].URL)
	assert.NotEmpty(t, results[2].URL)
}

func TestImageStageFilenamesAreCollisionResistant(t *testing.T) {
	stage := NewImageStage([]ImageSynthesizer{okImageProvider("primary")}, newFakeStorage(), 2, time.Second)

	results := stage.Generate(context.Background(), "p1", makeScenes(4))

	seen := map[string]bool{}
	for _, r := range results {
		require.NotEmpty(t, r.Filename)
		assert.False(t, seen[r.Filename], "duplicate filename %s", r.Filename)
		seen[r.Filename] = true
	}
}
