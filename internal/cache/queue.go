package cache

import (
	"context"
	"sync"
)

// writeQueue 是一条全局 FIFO 链：每个任务在自己的 goroutine 中等待前一个任务
// 的完成信号后才执行，因此任意时刻至多一个写任务在运行，且顺序与入队顺序一致。
// mu 只保护 tail 的替换，从不跨越 I/O 持有。
type writeQueue struct {
	mu   sync.Mutex
	tail chan struct{}
}

func newWriteQueue() *writeQueue {
	done := make(chan struct{})
	close(done)
	return &writeQueue{tail: done}
}

// enqueue 追加任务并立即返回。job 不得 panic。
func (q *writeQueue) enqueue(job func()) {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tail
	q.tail = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		<-prev
		job()
	}()
}

// flush 等待调用时刻之前入队的全部任务完成。
func (q *writeQueue) flush(ctx context.Context) error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()

	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
