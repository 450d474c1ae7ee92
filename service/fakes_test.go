package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"ShortReel-server/models"
)

// 内存版 ProjectStore，记录每次写入供断言
type fakeStore struct {
	mu       sync.Mutex
	projects map[string]*models.Project
	scenes   map[string][]models.Scene

	failStatusUpdate bool
	statusHistory    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[string]*models.Project),
		scenes:   make(map[string][]models.Scene),
	}
}

func (s *fakeStore) addProject(p *models.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

func (s *fakeStore) GetProjectByID(id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("record not found")
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) UpdateProjectStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStatusUpdate {
		return fmt.Errorf("store unavailable")
	}
	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("record not found")
	}
	p.Status = status
	s.statusHistory = append(s.statusHistory, status)
	return nil
}

func (s *fakeStore) UpdateProjectScript(id, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("record not found")
	}
	p.Script = script
	return nil
}

func (s *fakeStore) ReplaceScenes(projectID string, scenes []models.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.Scene, len(scenes))
	copy(cp, scenes)
	s.scenes[projectID] = cp
	return nil
}

func (s *fakeStore) GetScenesByProjectID(projectID string) ([]models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]models.Scene, len(s.scenes[projectID]))
	copy(cp, s.scenes[projectID])
	return cp, nil
}

func (s *fakeStore) UpdateSceneFields(sceneID string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pid := range s.scenes {
		for i := range s.scenes[pid] {
			if s.scenes[pid][i].ID != sceneID {
				continue
			}
			if v, ok := fields["image_url"].(string); ok {
				s.scenes[pid][i].ImageUrl = v
			}
			if v, ok := fields["video_url"].(string); ok {
				s.scenes[pid][i].VideoUrl = v
			}
			if v, ok := fields["error"].(string); ok {
				s.scenes[pid][i].Error = v
			}
			return nil
		}
	}
	return fmt.Errorf("scene not found")
}

func (s *fakeStore) UpdateScenesByProject(projectID string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scenes[projectID] {
		if v, ok := fields["audio_url"].(string); ok {
			s.scenes[projectID][i].AudioUrl = v
		}
		if v, ok := fields["transcript_url"].(string); ok {
			s.scenes[projectID][i].TranscriptUrl = v
		}
	}
	return nil
}

func (s *fakeStore) project(id string) *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

// 内存对象存储
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Put(ctx context.Context, objectName string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectName] = data
	return "mem://" + objectName, nil
}

func (f *fakeStorage) get(objectName string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[objectName]
}

// 可编程的协作方桩

type fakeScriptWriter struct {
	result *ScriptResult
	err    error
	calls  int
}

func (f *fakeScriptWriter) Generate(ctx context.Context, description string) (*ScriptResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeImageProvider struct {
	name  string
	fn    func(prompt string) ([]byte, error)
	mu    sync.Mutex
	calls []string
}

func (f *fakeImageProvider) Name() string { return f.name }

func (f *fakeImageProvider) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	return f.fn(prompt)
}

func (f *fakeImageProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeVideoSynth struct {
	fn    func(imageURL, prompt string) (string, string, error)
	mu    sync.Mutex
	calls int
}

func (f *fakeVideoSynth) Convert(ctx context.Context, imageURL, prompt string) (string, string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(imageURL, prompt)
}

func (f *fakeVideoSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVoice struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeVoice) Synthesize(ctx context.Context, text string, cfg VoiceConfig) ([]byte, http.Header, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.audio, http.Header{"Content-Type": []string{"audio/wav"}}, nil
}

// 确定性转写桩：按字节切词，相同输入必得相同输出
type fakeTranscriber struct {
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte) ([]WordTimestamp, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var words []WordTimestamp
	for i, tok := range bytes.Fields(audio) {
		words = append(words, WordTimestamp{
			Word:       string(tok),
			Start:      float64(i),
			End:        float64(i) + 0.5,
			Confidence: 0.9,
		})
	}
	return words, nil
}
