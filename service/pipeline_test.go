package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ShortReel-server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okImageProvider(name string) *fakeImageProvider {
	return &fakeImageProvider{name: name, fn: func(prompt string) ([]byte, error) {
		return []byte("png-bytes-" + prompt), nil
	}}
}

// newTestPipeline 组装一条全桩管线。videoServer 为生成的视频片段提供可下载地址。
func newTestPipeline(t *testing.T, store *fakeStore, storage *fakeStorage,
	script ScriptWriter, primary, fallback *fakeImageProvider,
	videoSynth *fakeVideoSynth, voice *fakeVoice, transcriber *fakeTranscriber) *Pipeline {
	t.Helper()

	images := NewImageStage([]ImageSynthesizer{primary, fallback}, storage, 2, time.Second)
	videos := NewVideoStage(videoSynth, storage, 2, 1, time.Millisecond)
	align := NewAlignmentStage(transcriber, storage, t.TempDir())

	return NewPipeline(store, storage, script, images, videos, voice, align,
		NewRunRegistry(), VoiceConfig{})
}

func threeSceneScript() *ScriptResult {
	return &ScriptResult{
		Script: "tip one. tip two. tip three.",
		Scenes: []SceneDraft{
			{Description: "tip one close-up", Duration: 4},
			{Description: "tip two mid-shot", Duration: 5},
			{Description: "tip three wide-shot", Duration: 6},
		},
	}
}

func TestRunCompletesWithIsolatedImageFailure(t *testing.T) {
	// "three quick fitness tips": 分镜 1 两个 provider 都失败，0 和 2 成功
	videoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4-bytes"))
	}))
	defer videoServer.Close()

	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Title: "fitness", Description: "three quick fitness tips", Status: models.ProjectStatusDraft})

	primary := &fakeImageProvider{name: "primary", fn: func(prompt string) ([]byte, error) {
		if prompt == "tip two mid-shot" {
			return nil, fmt.Errorf("boom")
		}
		return []byte("img"), nil
	}}
	fallback := &fakeImageProvider{name: "fallback", fn: func(prompt string) ([]byte, error) {
		return nil, fmt.Errorf("also boom")
	}}
	videoSynth := &fakeVideoSynth{fn: func(imageURL, prompt string) (string, string, error) {
		return videoServer.URL + "/clip.mp4", "req-1", nil
	}}
	voice := &fakeVoice{audio: []byte("narration words here")}
	transcriber := &fakeTranscriber{}

	p := newTestPipeline(t, store, newFakeStorage(), &fakeScriptWriter{result: threeSceneScript()},
		primary, fallback, videoSynth, voice, transcriber)

	err := p.Run(context.Background(), "p1")
	require.NoError(t, err)

	require.Equal(t, models.ProjectStatusCompleted, store.project("p1").Status)

	scenes, err := store.GetScenesByProjectID("p1")
	require.NoError(t, err)
	require.Len(t, scenes, 3)
	for i, s := range scenes {
		assert.Equal(t, i, s.Order)
	}

	// 分镜 1 隔离失败：无图、有错误；兄弟分镜不受影响
	assert.Empty(t, scenes[1].ImageUrl)
	assert.NotEmpty(t, scenes[1].Error)
	assert.NotEmpty(t, scenes[0].ImageUrl)
	assert.NotEmpty(t, scenes[2].ImageUrl)

	// 视频阶段只处理有图的分镜
	assert.Equal(t, 2, videoSynth.callCount())
	assert.NotEmpty(t, scenes[0].VideoUrl)
	assert.Empty(t, scenes[1].VideoUrl)
	assert.NotEmpty(t, scenes[2].VideoUrl)

	// 项目级旁白与字幕引用挂到所有分镜
	for _, s := range scenes {
		assert.NotEmpty(t, s.AudioUrl)
		assert.NotEmpty(t, s.TranscriptUrl)
	}
}

func TestRunScriptFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})

	voice := &fakeVoice{audio: []byte("x")}
	transcriber := &fakeTranscriber{}
	p := newTestPipeline(t, store, newFakeStorage(),
		&fakeScriptWriter{err: fmt.Errorf("llm down")},
		okImageProvider("primary"), okImageProvider("fallback"),
		&fakeVideoSynth{fn: func(string, string) (string, string, error) { return "", "", fmt.Errorf("unused") }},
		voice, transcriber)

	err := p.Run(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, models.ProjectStatusFailed, store.project("p1").Status)
	// 后续阶段都不应被调用
	assert.Zero(t, voice.calls)
	assert.Zero(t, transcriber.calls)
}

func TestRunAudioFailureSkipsAlignment(t *testing.T) {
	videoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4"))
	}))
	defer videoServer.Close()

	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})

	transcriber := &fakeTranscriber{}
	p := newTestPipeline(t, store, newFakeStorage(),
		&fakeScriptWriter{result: threeSceneScript()},
		okImageProvider("primary"), okImageProvider("fallback"),
		&fakeVideoSynth{fn: func(string, string) (string, string, error) {
			return videoServer.URL + "/clip.mp4", "req", nil
		}},
		&fakeVoice{err: fmt.Errorf("tts down")}, transcriber)

	err := p.Run(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, models.ProjectStatusFailed, store.project("p1").Status)
	assert.Zero(t, transcriber.calls, "对齐阶段不应被调用")
}

func TestRunDegradedTranscriptStillCompletes(t *testing.T) {
	videoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4"))
	}))
	defer videoServer.Close()

	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})

	storage := newFakeStorage()
	p := newTestPipeline(t, store, storage,
		&fakeScriptWriter{result: threeSceneScript()},
		okImageProvider("primary"), okImageProvider("fallback"),
		&fakeVideoSynth{fn: func(string, string) (string, string, error) {
			return videoServer.URL + "/clip.mp4", "req", nil
		}},
		&fakeVoice{audio: []byte("narration")},
		&fakeTranscriber{err: fmt.Errorf("stt down")})

	err := p.Run(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusCompleted, store.project("p1").Status)

	// 降级字幕已持久化：空时间戳 + 错误标记
	data := storage.get("projects/p1/transcript.json")
	require.NotNil(t, data)
	assert.Contains(t, string(data), `"words":[]`)
	assert.Contains(t, string(data), "stt down")
}

func TestRunNeverLeavesGenerating(t *testing.T) {
	cases := []struct {
		name   string
		script *fakeScriptWriter
		voice  *fakeVoice
	}{
		{"script fails", &fakeScriptWriter{err: fmt.Errorf("x")}, &fakeVoice{audio: []byte("a")}},
		{"voice fails", &fakeScriptWriter{result: threeSceneScript()}, &fakeVoice{err: fmt.Errorf("x")}},
		{"all ok", &fakeScriptWriter{result: threeSceneScript()}, &fakeVoice{audio: []byte("a b c")}},
	}
	videoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4"))
	}))
	defer videoServer.Close()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})

			p := newTestPipeline(t, store, newFakeStorage(), tc.script,
				okImageProvider("primary"), okImageProvider("fallback"),
				&fakeVideoSynth{fn: func(string, string) (string, string, error) {
					return videoServer.URL + "/c.mp4", "req", nil
				}},
				tc.voice, &fakeTranscriber{})

			_ = p.Run(context.Background(), "p1")

			status := store.project("p1").Status
			assert.True(t, models.IsTerminal(status), "run ended with status %q", status)
		})
	}
}

func TestRunRejectsConcurrentTrigger(t *testing.T) {
	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})

	locks := NewRunRegistry()
	p := NewPipeline(store, newFakeStorage(), &fakeScriptWriter{result: threeSceneScript()},
		NewImageStage([]ImageSynthesizer{okImageProvider("primary")}, newFakeStorage(), 1, time.Second),
		NewVideoStage(&fakeVideoSynth{fn: func(string, string) (string, string, error) {
			return "", "", fmt.Errorf("unused")
		}}, newFakeStorage(), 1, 1, time.Millisecond),
		&fakeVoice{audio: []byte("a")}, NewAlignmentStage(&fakeTranscriber{}, newFakeStorage(), t.TempDir()),
		locks, VoiceConfig{})

	// 手工占住 p1 的锁，模拟正在进行的运行
	_, release, ok := locks.Acquire(context.Background(), "p1")
	require.True(t, ok)
	defer release()

	err := p.Run(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrRunInProgress)
	// 被拒绝的触发不得碰项目状态
	assert.Equal(t, models.ProjectStatusDraft, store.project("p1").Status)
}

func TestRunCancelledMidRunFails(t *testing.T) {
	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})

	locks := NewRunRegistry()
	// 剧本阶段一旦开始就取消运行（模拟项目中途被删除）
	script := &fakeScriptWriter{result: threeSceneScript()}
	cancellingScript := scriptFunc(func(ctx context.Context, description string) (*ScriptResult, error) {
		locks.Cancel("p1")
		return script.Generate(ctx, description)
	})

	p := NewPipeline(store, newFakeStorage(), cancellingScript,
		NewImageStage([]ImageSynthesizer{okImageProvider("primary")}, newFakeStorage(), 1, time.Second),
		NewVideoStage(&fakeVideoSynth{fn: func(string, string) (string, string, error) {
			return "", "", fmt.Errorf("unused")
		}}, newFakeStorage(), 1, 1, time.Millisecond),
		&fakeVoice{audio: []byte("a")}, NewAlignmentStage(&fakeTranscriber{}, newFakeStorage(), t.TempDir()),
		locks, VoiceConfig{})

	err := p.Run(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, models.ProjectStatusFailed, store.project("p1").Status)
}

func TestRunStoreUnavailableStopsBeforeStages(t *testing.T) {
	store := newFakeStore()
	store.addProject(&models.Project{ID: "p1", Description: "desc", Status: models.ProjectStatusDraft})
	store.failStatusUpdate = true

	script := &fakeScriptWriter{result: threeSceneScript()}
	p := newTestPipeline(t, store, newFakeStorage(), script,
		okImageProvider("primary"), okImageProvider("fallback"),
		&fakeVideoSynth{fn: func(string, string) (string, string, error) { return "", "", fmt.Errorf("unused") }},
		&fakeVoice{audio: []byte("a")}, &fakeTranscriber{})

	err := p.Run(context.Background(), "p1")
	require.Error(t, err)
	assert.Zero(t, script.calls, "持久层不可用时不应调用外部服务")
}

func TestRunMissingProjectIsFatal(t *testing.T) {
	p := newTestPipeline(t, newFakeStore(), newFakeStorage(),
		&fakeScriptWriter{result: threeSceneScript()},
		okImageProvider("primary"), okImageProvider("fallback"),
		&fakeVideoSynth{fn: func(string, string) (string, string, error) { return "", "", fmt.Errorf("unused") }},
		&fakeVoice{audio: []byte("a")}, &fakeTranscriber{})

	err := p.Run(context.Background(), "missing")
	assert.Error(t, err)
}

// scriptFunc 便捷适配器
type scriptFunc func(ctx context.Context, description string) (*ScriptResult, error)

func (f scriptFunc) Generate(ctx context.Context, description string) (*ScriptResult, error) {
	return f(ctx, description)
}
