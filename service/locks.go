package service

import (
	"context"
	"sync"
)

// RunRegistry 按项目维护生成运行的互斥与取消。
// 同一项目同时只允许一个管线运行；第二次触发会被拒绝。
// 项目被删除时可通过 Cancel 协作式终止正在进行的运行。
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]context.CancelFunc
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]context.CancelFunc)}
}

// Acquire 尝试占用项目的生成锁。成功时返回派生的可取消上下文与释放函数；
// 该项目已有运行在进行时返回 ok=false。
func (r *RunRegistry) Acquire(parent context.Context, projectID string) (context.Context, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.runs[projectID]; busy {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	r.runs[projectID] = cancel

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.runs[projectID]; ok {
			c()
			delete(r.runs, projectID)
		}
	}
	return ctx, release, true
}

// Cancel 取消项目正在进行的运行，返回是否确实有运行被取消
func (r *RunRegistry) Cancel(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.runs[projectID]; ok {
		cancel()
		return true
	}
	return false
}

// Active 项目是否有运行在进行
func (r *RunRegistry) Active(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[projectID]
	return ok
}
