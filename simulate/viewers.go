package simulate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"dexhub/adapters/sse"
)

const (
	// DefaultViewerFloor 是觀看人數的下限，任何活躍拍賣至少顯示這個人數
	DefaultViewerFloor = 5
	// DefaultViewerCap 是觀看人數的上限，避免數字誇張到不可信
	DefaultViewerCap = 60
)

// ViewerModel 為單一拍賣推導合成的「目前觀看人數」
// 同一場拍賣的所有訂閱者都會讀到同一個數字，避免畫面上各區塊各自亂數而互相矛盾
// 數值一定落在 [floor, cap] 區間內，且在出價活躍度固定時，隨結標時間接近單調遞增
type ViewerModel struct {
	mu sync.Mutex

	floor   int
	cap     int
	endTime time.Time
	active  bool

	activity int // 真實加合成的出價次數
	offset   int // 啟動時抽出的基準人數
	stayFor  int // 基準人數的停留 tick 數，歸零後重抽
	current  int

	rng *rand.Rand
	ch  sse.IChannel[int]
}

// NewViewerModel 建立觀看人數模型
// rng 為 nil 時使用全域隨機來源
func NewViewerModel(floor, cap int, endTime time.Time, rng *rand.Rand) *ViewerModel {
	if floor <= 0 {
		floor = DefaultViewerFloor
	}
	if cap < floor {
		cap = floor
	}
	return &ViewerModel{
		floor:   floor,
		cap:     cap,
		endTime: endTime,
		rng:     rng,
		ch:      sse.NewChannel[int](),
	}
}

// Activate 啟動模型，抽出初始基準人數與停留時間
func (m *ViewerModel) Activate(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return
	}
	m.active = true
	m.offset = m.randIntn((m.cap-m.floor)/3 + 1)
	m.stayFor = 20 + m.randIntn(40)
	m.current = m.clamp(m.compute(now))
	m.ch.Broadcast(m.current)
}

// Deactivate 停用模型，之後的 Tick 不再更新數字
func (m *ViewerModel) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
}

// SetActivity 更新出價活躍度（真實加合成的出價次數）
func (m *ViewerModel) SetActivity(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.activity {
		m.activity = n
	}
}

// Tick 在固定節拍下重算人數並廣播給所有訂閱者
// 啟用期間人數只增不減，確保「越接近結標越多人看」的錯覺是單調的
func (m *ViewerModel) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}

	m.stayFor--
	if m.stayFor <= 0 {
		m.offset = m.randIntn((m.cap-m.floor)/3 + 1)
		m.stayFor = 20 + m.randIntn(40)
	}

	next := m.clamp(m.compute(now))
	if next > m.current {
		m.current = next
	}
	m.ch.Broadcast(m.current)
}

// Current 回傳目前人數，未啟動時回傳 0
func (m *ViewerModel) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return 0
	}
	return m.current
}

// Subscribe 訂閱人數更新
func (m *ViewerModel) Subscribe() <-chan int {
	return m.ch.Subscribe()
}

// Unsubscribe 取消訂閱
func (m *ViewerModel) Unsubscribe(ch <-chan int) {
	m.ch.Unsubscribe(ch)
}

// compute 由結標時間接近程度與出價活躍度推導人數
// 對兩個輸入都是單調不減的函數
func (m *ViewerModel) compute(now time.Time) int {
	remaining := m.endTime.Sub(now)
	boost := 0
	switch {
	case remaining <= 2*time.Minute:
		boost = 15
	case remaining <= 10*time.Minute:
		boost = 10
	case remaining <= 30*time.Minute:
		boost = 6
	case remaining <= time.Hour:
		boost = 3
	}
	act := m.activity
	if act > 20 {
		act = 20
	}
	return m.floor + m.offset + boost + act
}

func (m *ViewerModel) clamp(n int) int {
	if n < m.floor {
		return m.floor
	}
	if n > m.cap {
		return m.cap
	}
	return n
}

func (m *ViewerModel) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	if m.rng != nil {
		return m.rng.Intn(n)
	}
	return rand.Intn(n)
}

// ViewerHub 管理所有拍賣的觀看人數模型
// 每場拍賣共用一個模型與一個 1 秒節拍的排程工作，最後一個訂閱者離開時回收
type ViewerHub struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*viewerEntry
	rng     *rand.Rand
}

type viewerEntry struct {
	model *ViewerModel
	task  *Task
	refs  int
}

// NewViewerHub 建立觀看人數管理器
func NewViewerHub(rng *rand.Rand) *ViewerHub {
	return &ViewerHub{
		entries: make(map[uuid.UUID]*viewerEntry),
		rng:     rng,
	}
}

// Acquire 取得指定拍賣的共用觀看人數模型
// 回傳的 release 函數必須在連線結束時呼叫，否則模型不會被回收
func (h *ViewerHub) Acquire(auctionID uuid.UUID, endTime time.Time) (*ViewerModel, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.entries[auctionID]
	if !ok {
		// 每個模型的節拍工作跑在自己的goroutine上，隨機來源不能跨模型共用，
		// 從 hub 的來源各自衍生一個
		var modelRng *rand.Rand
		if h.rng != nil {
			modelRng = rand.New(rand.NewSource(h.rng.Int63()))
		}
		model := NewViewerModel(DefaultViewerFloor, DefaultViewerCap, endTime, modelRng)
		model.Activate(time.Now())
		entry = &viewerEntry{
			model: model,
			task: Repeat(context.Background(), func() time.Duration { return time.Second }, func(now time.Time) {
				model.Tick(now)
			}),
		}
		h.entries[auctionID] = entry
	}
	entry.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			h.release(auctionID)
		})
	}
	return entry.model, release
}

func (h *ViewerHub) release(auctionID uuid.UUID) {
	h.mu.Lock()
	entry, ok := h.entries[auctionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	entry.refs--
	done := entry.refs <= 0
	if done {
		delete(h.entries, auctionID)
	}
	h.mu.Unlock()

	if done {
		entry.task.Stop()
		entry.model.Deactivate()
	}
}

// Close 停止所有模型的排程工作
func (h *ViewerHub) Close() {
	h.mu.Lock()
	entries := make([]*viewerEntry, 0, len(h.entries))
	for id, entry := range h.entries {
		entries = append(entries, entry)
		delete(h.entries, id)
	}
	h.mu.Unlock()

	for _, entry := range entries {
		entry.task.Stop()
		entry.model.Deactivate()
	}
}
