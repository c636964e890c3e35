// Package pool 提供基于 ants 的 worker 池，承载摄取流水线中的文档级并发与 CPU 密集任务。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

var (
	ErrPoolClosed        = errors.New("worker pool closed")
	ErrInvalidPoolConfig = errors.New("invalid worker pool config")
	// ErrPoolOverload 非阻塞池已满或阻塞队列已达上限。
	ErrPoolOverload = errors.New("worker pool overloaded")
)

// Type 池用途。
type Type string

const (
	// IngestionPool 摄取流水线的文档级并发池。
	IngestionPool Type = "ingestion"
	// ExtractionPool 文本抽取与分块等 CPU 密集任务池。
	ExtractionPool Type = "extraction"
)

// Config 池配置。
type Config struct {
	Capacity       int
	ExpiryDuration time.Duration
	// Nonblocking 为 true 时池满直接返回 ErrPoolOverload。
	Nonblocking bool
	// MaxBlockingTasks 阻塞模式下排队任务上限，0 表示不限。
	MaxBlockingTasks int
}

// IngestionPoolConfig 返回摄取池配置，workers 为同时处理的文档数。
// 文档任务会阻塞等待空闲 worker，不设排队上限。
func IngestionPoolConfig(workers int) *Config {
	return &Config{Capacity: workers, ExpiryDuration: 30 * time.Second}
}

// ExtractionPoolConfig 返回抽取池配置。
func ExtractionPoolConfig(workers int) *Config {
	return &Config{Capacity: workers, ExpiryDuration: 10 * time.Second, MaxBlockingTasks: 1000}
}

// Stats 池统计快照，通过 /v1/stats 暴露。
type Stats struct {
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	Capacity  int    `json:"capacity"`
	Running   int    `json:"running"`
	Submitted int64  `json:"submitted"`
	Completed int64  `json:"completed"`
	Rejected  int64  `json:"rejected"`
	Panics    int64  `json:"panics"`
}

// Pool ants 池的封装，附带任务计数。
type Pool struct {
	name string
	typ  Type
	pool *ants.Pool

	closed    atomic.Bool
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
}

// NewPool 创建 worker 池。
func NewPool(name string, typ Type, config *Config) (*Pool, error) {
	if config == nil || config.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidPoolConfig)
	}

	p := &Pool{name: name, typ: typ}
	ap, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r any) {
			p.panics.Add(1)
			logger.Errorw("worker panic recovered", "pool", name, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ants pool %s: %w", name, err)
	}
	p.pool = ap

	logger.Infow("Worker pool created", "name", name, "type", typ, "capacity", config.Capacity)
	return p, nil
}

func (p *Pool) Name() string { return p.name }
func (p *Pool) Type() Type   { return p.typ }
func (p *Pool) Cap() int     { return p.pool.Cap() }
func (p *Pool) Running() int { return p.pool.Running() }

// Submit 提交任务，不等待其完成。任务 panic 由池的 PanicHandler 记录。
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		task()
		p.completed.Add(1)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// Do 在池中执行任务并等待结果。任务内的 panic 转换为错误；
// ctx 在任务开始前取消时任务不执行，执行中取消时不再等待。
func (p *Pool) Do(ctx context.Context, task func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	err := p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				done <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- task()
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 立即关闭池。可重复调用。
func (p *Pool) Release() {
	if p.closed.Swap(true) {
		return
	}
	p.pool.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// ReleaseTimeout 关闭池并等待运行中的任务结束，最长 timeout。
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release pool %s: %w", p.name, err)
	}
	logger.Infow("Worker pool released", "name", p.name)
	return nil
}

// Stats 返回统计快照。
func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Type:      p.typ,
		Capacity:  p.pool.Cap(),
		Running:   p.pool.Running(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}
