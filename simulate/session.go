package simulate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event 是會話推送給前端的一筆更新
// Type 決定哪些欄位有效
type Event struct {
	Type string `json:"type"`

	// type == "bids"
	Bids       []DisplayBid `json:"bids,omitempty"`
	HiddenBids int          `json:"hiddenBids,omitempty"`

	// type == "bids" 或 "price"
	Price      uint32 `json:"price,omitempty"`
	Leader     string `json:"leader,omitempty"`
	MinNextBid uint32 `json:"minNextBid,omitempty"`

	// type == "comments"
	Comments []ChatMessage `json:"comments,omitempty"`

	// type == "viewers"
	Viewers int `json:"viewers,omitempty"`

	// type == "status"
	Status string `json:"status,omitempty"`
}

// SessionConfig 是拍賣即時會話的輸入參數
type SessionConfig struct {
	AuctionID     uuid.UUID
	StartingPrice uint32
	MinIncrement  uint32
	StartTime     time.Time
	EndTime       time.Time
	Active        bool // 拍賣目前是否處於可出價狀態

	Identities []string
	Rand       *rand.Rand
	Now        func() time.Time

	// Viewers 是整場拍賣共用的觀看人數模型，ReleaseViewers 在會話結束時呼叫
	Viewers        *ViewerModel
	ReleaseViewers func()
}

// Session 是單一觀看者對單一拍賣的即時會話
// 將權威資料（真實出價、真實留言、拍賣狀態）與合成資料合併成一致的顯示狀態，
// 所有合成內容都只存在於會話的記憶體中，會話結束即丟棄
type Session struct {
	cfg      SessionConfig
	bids     *BidStream
	comments *CommentStream

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	tasks      []*Task
	ended      bool
	started    bool
	closedOnce sync.Once

	out chan Event
}

// NewSession 建立即時會話
func NewSession(cfg SessionConfig) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Event, 64),
	}
	s.bids = NewBidStream(BidStreamConfig{
		AuctionID:     cfg.AuctionID,
		StartingPrice: cfg.StartingPrice,
		MinIncrement:  cfg.MinIncrement,
		StartTime:     cfg.StartTime,
		EndTime:       cfg.EndTime,
		Identities:    cfg.Identities,
		Rand:          cfg.Rand,
		OnHighest:     s.onHighest,
	})
	s.comments = NewCommentStream(CommentStreamConfig{
		AuctionID:  cfg.AuctionID,
		Identities: cfg.Identities,
		Rand:       cfg.Rand,
	})
	return s
}

// Events 回傳會話的事件輸出
// 會話關閉時通道會被關閉
func (s *Session) Events() <-chan Event {
	return s.out
}

// Start 啟動會話：播種開場內容並排程所有週期性工作
func (s *Session) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	now := s.cfg.Now()

	// 只有活躍中的拍賣才產生合成內容，已結束或未開始的拍賣忠實呈現真實資料
	if s.isActive(now) {
		day := now.Format("2006-01-02")
		s.bids.SeedInitial(day, now)
		s.comments.SeedInitial(day, now)
	}
	s.emitBids()
	s.emitComments()

	// 每秒重新推導拍賣是否已結束，並與權威狀態取較嚴格者
	s.addTask(Repeat(s.ctx, fixed(time.Second), func(now time.Time) {
		s.checkEnded(now)
	}))

	// 以 15~35 秒的不可預測間隔附加合成出價
	s.addTask(Repeat(s.ctx, s.jitter(15*time.Second, 35*time.Second), func(now time.Time) {
		if !s.isActive(now) {
			return
		}
		s.bids.AppendSynthetic(now)
		s.syncViewerActivity()
		s.emitBids()
	}))

	// 以 15~35 秒的不可預測間隔附加閒聊留言
	s.addTask(Repeat(s.ctx, s.jitter(15*time.Second, 35*time.Second), func(now time.Time) {
		if !s.isActive(now) {
			return
		}
		s.comments.AppendAmbient(now)
		s.emitComments()
	}))

	// 轉發共用觀看人數
	if s.cfg.Viewers != nil {
		ch := s.cfg.Viewers.Subscribe()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ctx.Done():
					s.cfg.Viewers.Unsubscribe(ch)
					return
				case n, ok := <-ch:
					if !ok {
						return
					}
					// 結束後不再送出人數更新
					if s.isEnded() {
						continue
					}
					s.emit(Event{Type: "viewers", Viewers: n})
				}
			}
		}()
		s.emit(Event{Type: "viewers", Viewers: s.cfg.Viewers.Current()})
	}
}

// SetRealBids 載入資料庫中已存在的真實出價
// currentPrice 為資料庫認定的目前最高價，無人出價時傳 0
func (s *Session) SetRealBids(bids []DisplayBid, currentPrice uint32) {
	s.bids.SetReal(bids, currentPrice)
	s.syncViewerActivity()
	s.emitBids()
}

// SetRealComments 載入資料庫中已存在的歷史留言
// 歷史留言的作者視為已回覆過，不會再排程提問式回覆
func (s *Session) SetRealComments(msgs []ChatMessage) {
	for _, msg := range msgs {
		s.comments.AddReal(msg)
	}
	s.emitComments()
}

// OnRealBid 處理一筆透過即時通知收到的真實出價
func (s *Session) OnRealBid(bid DisplayBid) {
	s.bids.AddReal(bid)
	s.syncViewerActivity()
	s.emitBids()
}

// OnRealComment 處理一則真實留言
// 對每個不同的顯示名稱，本會話最多排程一次延遲 10~15 秒的提問式回覆
func (s *Session) OnRealComment(msg ChatMessage) {
	shouldReply := s.comments.AddReal(msg)
	s.emitComments()

	if !shouldReply || !s.isActive(s.cfg.Now()) {
		return
	}
	delay := time.Duration(10+s.randIntn(6)) * time.Second
	target := msg.Author
	s.addTask(After(s.ctx, delay, func(now time.Time) {
		if !s.isActive(now) {
			return
		}
		s.comments.BuildReply(target, now)
		s.emitComments()
	}))
}

// OnStatus 處理權威狀態欄位的即時更新
// 已結束或取消的狀態會立即鎖死會話的合成活動
func (s *Session) OnStatus(status string) {
	if status == "ended" || status == "cancelled" {
		s.markEnded(status)
	}
}

// MinNextBid 回傳畫面上顯示的最低下一口價
func (s *Session) MinNextBid() uint32 {
	return s.bids.MinNextBid()
}

// Close 關閉會話：取消所有排程工作、退訂觀看人數並關閉事件輸出
// 可以重複呼叫
func (s *Session) Close() {
	s.closedOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		tasks := s.tasks
		s.tasks = nil
		s.mu.Unlock()
		for _, task := range tasks {
			task.Stop()
		}
		s.wg.Wait()
		if s.cfg.ReleaseViewers != nil {
			s.cfg.ReleaseViewers()
		}
		close(s.out)
	})
}

// isActive 判斷拍賣此刻是否仍在進行
// 以本地時間推導與權威狀態兩者中較嚴格（結束）者為準
func (s *Session) isActive(now time.Time) bool {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended || !s.cfg.Active {
		return false
	}
	return !now.Before(s.cfg.StartTime) && now.Before(s.cfg.EndTime)
}

func (s *Session) checkEnded(now time.Time) {
	if now.Before(s.cfg.EndTime) {
		return
	}
	s.markEnded("ended")
}

func (s *Session) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) markEnded(status string) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	// 權威狀態對整場拍賣生效，共用的人數模型一併停用
	if s.cfg.Viewers != nil {
		s.cfg.Viewers.Deactivate()
	}
	s.emit(Event{Type: "status", Status: status})
}

func (s *Session) onHighest(amount uint32, name string) {
	s.emit(Event{
		Type:       "price",
		Price:      amount,
		Leader:     name,
		MinNextBid: amount + s.cfg.MinIncrement,
	})
}

func (s *Session) emitBids() {
	visible, hidden := s.bids.Merged()
	price, leader := s.bids.Displayed()
	s.emit(Event{
		Type:       "bids",
		Bids:       visible,
		HiddenBids: hidden,
		Price:      price,
		Leader:     leader,
		MinNextBid: s.bids.MinNextBid(),
	})
}

func (s *Session) emitComments() {
	s.emit(Event{Type: "comments", Comments: s.comments.Snapshot()})
}

// emit 將事件放進輸出通道
// 緩衝滿時丟棄事件，避免慢速的下游阻塞排程工作
func (s *Session) emit(event Event) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.out <- event:
	default:
	}
}

func (s *Session) syncViewerActivity() {
	if s.cfg.Viewers != nil {
		s.cfg.Viewers.SetActivity(s.bids.Count())
	}
}

func (s *Session) addTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *Session) jitter(min, max time.Duration) func() time.Duration {
	return func() time.Duration {
		return min + time.Duration(s.randIntn(int(max-min)))
	}
}

func (s *Session) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	if s.cfg.Rand != nil {
		return s.cfg.Rand.Intn(n)
	}
	return rand.Intn(n)
}

func fixed(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}
