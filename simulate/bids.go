package simulate

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// maxSyntheticBids 是每個會話中保留的合成出價上限，超過時淘汰最舊的
	maxSyntheticBids = 12
	// visibleBids 是合併後實際渲染的出價筆數，其餘折疊成「還有 N 筆」
	visibleBids = 5
)

// DisplayBid 是合併檢視中的一筆出價
// Synthetic 為 true 時表示這筆出價只存在於記憶體中，僅供顯示
type DisplayBid struct {
	ID          uuid.UUID
	DisplayName string
	Amount      uint32
	Time        time.Time
	Synthetic   bool
}

// BidStreamConfig 是合成出價流的輸入參數
type BidStreamConfig struct {
	AuctionID     uuid.UUID
	StartingPrice uint32
	MinIncrement  uint32
	StartTime     time.Time
	EndTime       time.Time
	Identities    []string
	Rand          *rand.Rand

	// OnHighest 在合併後的最高出價改變時被呼叫
	// 價格標頭與最低出價計算都依賴這個回呼，避免畫面上「目前最高」各處不一致
	OnHighest func(amount uint32, displayName string)
}

// BidStream 管理單一拍賣會話的合成出價，並負責與真實出價合併
// 合成出價永遠不會寫入資料庫，也永遠不會蓋掉或刪除真實出價
type BidStream struct {
	mu sync.Mutex

	cfg       BidStreamConfig
	seeded    bool
	real      []DisplayBid
	realPrice uint32 // 資料庫認定的目前最高價，無人出價時為 0
	synthetic []DisplayBid

	lastAmount uint32
	lastName   string
}

// NewBidStream 建立合成出價流
func NewBidStream(cfg BidStreamConfig) *BidStream {
	if cfg.MinIncrement == 0 {
		cfg.MinIncrement = 1
	}
	return &BidStream{cfg: cfg}
}

// SeedInitial 以 (拍賣ID|日期) 為種子產生兩筆開場合成出價
// 相同拍賣在同一天重新整理頁面會看到一樣的開場，讓假象前後一致
// 身份池為空時直接退化為不產生任何開場出價
func (s *BidStream) SeedInitial(day string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded || len(s.cfg.Identities) == 0 {
		return
	}
	s.seeded = true

	rng := NewSeeded(fmt.Sprintf("%s|%s", s.cfg.AuctionID, day))
	n := len(s.cfg.Identities)
	i := rng.Intn(n)
	first := s.cfg.Identities[i]
	second := first
	if n > 1 {
		second = s.cfg.Identities[(i+1+rng.Intn(n-1))%n]
	}

	inc := s.cfg.MinIncrement
	amount1 := s.cfg.StartingPrice + inc*uint32(1+rng.Intn(3))
	amount2 := amount1 + inc*uint32(1+rng.Intn(2))

	s.synthetic = append(s.synthetic,
		DisplayBid{ID: uuid.New(), DisplayName: first, Amount: amount1, Time: now.Add(-2 * time.Minute), Synthetic: true},
		DisplayBid{ID: uuid.New(), DisplayName: second, Amount: amount2, Time: now.Add(-time.Minute), Synthetic: true},
	)
	s.notifyLocked()
}

// SetReal 以資料庫中的真實出價取代目前的真實出價清單
// currentPrice 為資料庫認定的目前最高價，無人出價時傳 0
func (s *BidStream) SetReal(bids []DisplayBid, currentPrice uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.real = make([]DisplayBid, len(bids))
	copy(s.real, bids)
	s.realPrice = currentPrice
	s.notifyLocked()
}

// AddReal 附加一筆剛透過即時通知收到的真實出價
func (s *BidStream) AddReal(bid DisplayBid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.real = append(s.real, bid)
	if bid.Amount > s.realPrice {
		s.realPrice = bid.Amount
	}
	s.notifyLocked()
}

// AppendSynthetic 產生一筆新的合成出價
// 金額一定嚴格高於目前所有已知金額（真實最高、最後一筆合成、起標價）加上最低加價幅度，
// 確保顯示出來的序列永遠單調遞增而可信
func (s *BidStream) AppendSynthetic(now time.Time) DisplayBid {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Identities) == 0 {
		return DisplayBid{}
	}

	baseline := s.displayedAmountLocked()
	inc := s.cfg.MinIncrement
	amount := baseline + inc*uint32(1+s.randIntn(3))

	bid := DisplayBid{
		ID:          uuid.New(),
		DisplayName: s.cfg.Identities[s.randIntn(len(s.cfg.Identities))],
		Amount:      amount,
		Time:        now,
		Synthetic:   true,
	}
	s.synthetic = append(s.synthetic, bid)
	if len(s.synthetic) > maxSyntheticBids {
		s.synthetic = s.synthetic[len(s.synthetic)-maxSyntheticBids:]
	}
	s.notifyLocked()
	return bid
}

// Merged 回傳合併後要渲染的出價清單
// 金額由高到低排序，只露出前幾筆，其餘以 hidden 筆數表示，絕不揭露被折疊的個別項目
func (s *BidStream) Merged() (visible []DisplayBid, hidden int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]DisplayBid, 0, len(s.real)+len(s.synthetic))
	merged = append(merged, s.real...)
	merged = append(merged, s.synthetic...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Amount != merged[j].Amount {
			return merged[i].Amount > merged[j].Amount
		}
		return merged[i].Time.After(merged[j].Time)
	})
	if len(merged) > visibleBids {
		return merged[:visibleBids], len(merged) - visibleBids
	}
	return merged, 0
}

// Count 回傳真實加合成的出價總數，作為觀看人數模型的活躍度輸入
func (s *BidStream) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.real) + len(s.synthetic)
}

// Empty 回傳是否完全沒有出價（真實與合成皆無）
// 此時應渲染「尚無出價」而不是憑空捏造一個領先者
func (s *BidStream) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.real) == 0 && len(s.synthetic) == 0
}

// Displayed 回傳目前應顯示的價格與領先者名稱
// 價格 = max(真實最高價, 合成領先價, 起標價)，名稱跟著目前最大值走
// 無任何出價時回傳起標價與空名稱
func (s *BidStream) Displayed() (amount uint32, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayedLocked()
}

// MinNextBid 回傳畫面上顯示的最低下一口價
// 與 Displayed 使用同一套計算，使用者不可能出一個低於畫面顯示目前價的「得標」價
func (s *BidStream) MinNextBid() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayedAmountLocked() + s.cfg.MinIncrement
}

func (s *BidStream) displayedLocked() (uint32, string) {
	amount := s.cfg.StartingPrice
	name := ""
	if s.realPrice > amount {
		amount = s.realPrice
		name = s.leaderNameLocked(s.real, s.realPrice)
	}
	for _, b := range s.synthetic {
		if b.Amount > amount {
			amount = b.Amount
			name = b.DisplayName
		}
	}
	return amount, name
}

func (s *BidStream) displayedAmountLocked() uint32 {
	amount, _ := s.displayedLocked()
	return amount
}

func (s *BidStream) leaderNameLocked(bids []DisplayBid, amount uint32) string {
	for _, b := range bids {
		if b.Amount == amount {
			return b.DisplayName
		}
	}
	return ""
}

// notifyLocked 在合併後的最高出價改變時觸發 OnHighest 回呼
func (s *BidStream) notifyLocked() {
	amount, name := s.displayedLocked()
	if amount == s.lastAmount && name == s.lastName {
		return
	}
	s.lastAmount = amount
	s.lastName = name
	if s.cfg.OnHighest != nil {
		s.cfg.OnHighest(amount, name)
	}
}

func (s *BidStream) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	if s.cfg.Rand != nil {
		return s.cfg.Rand.Intn(n)
	}
	return rand.Intn(n)
}
