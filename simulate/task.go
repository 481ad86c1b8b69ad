package simulate

import (
	"context"
	"sync"
	"time"
)

// Task 代表一個可取消的排程工作
// 所有模擬內容的定時插入都透過 Task 排程，確保畫面關閉時能夠結構性地取消，
// 不會留下任何仍在執行的計時器
type Task struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stop 取消工作並等待背景 goroutine 結束
// 可以重複呼叫
func (t *Task) Stop() {
	t.cancel()
	t.wg.Wait()
}

// Repeat 建立一個重複執行的排程工作
// 每次執行後透過 interval 重新取得下次間隔，因此間隔可以是隨機的
// ctx 取消或呼叫 Stop 都會終止工作
func Repeat(ctx context.Context, interval func() time.Duration, fn func(now time.Time)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel}

	task.wg.Add(1)
	go func() {
		defer task.wg.Done()
		timer := time.NewTimer(interval())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-timer.C:
				fn(now)
				timer.Reset(interval())
			}
		}
	}()
	return task
}

// After 建立一個單次延遲工作
// 在延遲到期前取消的話，fn 不會被執行
func After(ctx context.Context, delay time.Duration, fn func(now time.Time)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel}

	task.wg.Add(1)
	go func() {
		defer task.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case now := <-timer.C:
			fn(now)
		}
	}()
	return task
}
