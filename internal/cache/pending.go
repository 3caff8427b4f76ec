package cache

import (
	"context"
	"sync"
)

// pendingSet 记录正在写入的 key。每个 key 持有一个完成信号，写入结束时关闭，
// 读者据此等待而无需轮询。
type pendingSet struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{keys: make(map[string]chan struct{})}
}

// tryAdd 在 key 未处于写入中时登记并返回 true。
func (p *pendingSet) tryAdd(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.keys[key]; exists {
		return false
	}
	p.keys[key] = make(chan struct{})
	return true
}

func (p *pendingSet) done(key string) {
	p.mu.Lock()
	ch, ok := p.keys[key]
	if ok {
		delete(p.keys, key)
	}
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (p *pendingSet) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[key]
	return ok
}

// wait 阻塞到 key 离开集合或 ctx 结束。
func (p *pendingSet) wait(ctx context.Context, key string) error {
	p.mu.Lock()
	ch, ok := p.keys[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitAll 阻塞到集合为空或 ctx 结束。
func (p *pendingSet) waitAll(ctx context.Context) error {
	for {
		var ch chan struct{}
		p.mu.Lock()
		for _, c := range p.keys {
			ch = c
			break
		}
		p.mu.Unlock()
		if ch == nil {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
