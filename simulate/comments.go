package simulate

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxChatMessages 是留言檢視保留的筆數上限，超過時淘汰最舊的
const maxChatMessages = 25

// ChatMessage 是合併檢視中的一則留言
// Synthetic 為 true 時表示這則留言由模擬身份發出，僅存在於記憶體中
type ChatMessage struct {
	ID        uuid.UUID
	Author    string
	Content   string
	Time      time.Time
	ReplyTo   string // 被回覆的顯示名稱，非回覆時為空
	Synthetic bool
}

// CommentStreamConfig 是合成留言流的輸入參數
type CommentStreamConfig struct {
	AuctionID  uuid.UUID
	Identities []string
	Rand       *rand.Rand
}

// CommentStream 管理單一拍賣會話的聊天室內容
// 合併真實留言與模擬身份的閒聊，並對真實使用者做一次性的提問式回覆
type CommentStream struct {
	mu sync.Mutex

	cfg      CommentStreamConfig
	seeded   bool
	active   []string            // 本會話已經發過言的模擬身份，@mention 只會指向這些人
	replied  map[string]struct{} // 已經被回覆過的真實顯示名稱
	messages []ChatMessage
}

// NewCommentStream 建立合成留言流
func NewCommentStream(cfg CommentStreamConfig) *CommentStream {
	return &CommentStream{
		cfg:     cfg,
		replied: make(map[string]struct{}),
	}
}

// SeedInitial 以 (拍賣ID|日期) 為種子產生兩則開場留言
// 語句以約 70/30 的比例自拍賣情境與站內情境語句池中抽出
// 身份池為空時退化為不產生任何開場留言
func (s *CommentStream) SeedInitial(day string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded || len(s.cfg.Identities) == 0 {
		return
	}
	s.seeded = true

	rng := NewSeeded(fmt.Sprintf("%s|%s", s.cfg.AuctionID, day))
	for i := 0; i < 2; i++ {
		author := Pick(rng, s.cfg.Identities)
		pool := auctionPhrases
		if rng.Float64() >= 0.7 {
			pool = sitePhrases
		}
		s.appendLocked(ChatMessage{
			ID:        uuid.New(),
			Author:    author,
			Content:   Pick(rng, pool),
			Time:      now.Add(time.Duration(i-2) * time.Minute),
			Synthetic: true,
		})
	}
}

// AppendAmbient 產生一則新的閒聊留言
// 約三成機率改為 @mention 另一個本會話中已發言的模擬身份，模擬互相喊話
func (s *CommentStream) AppendAmbient(now time.Time) ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Identities) == 0 {
		return ChatMessage{}
	}

	author := s.cfg.Identities[s.randIntn(len(s.cfg.Identities))]
	msg := ChatMessage{
		ID:        uuid.New(),
		Author:    author,
		Time:      now,
		Synthetic: true,
	}

	target := s.mentionTargetLocked(author)
	if target != "" && s.randFloat() < 0.3 {
		msg.Content = fmt.Sprintf(mentionPhrases[s.randIntn(len(mentionPhrases))], target)
		msg.ReplyTo = target
	} else {
		pool := auctionPhrases
		if s.randFloat() >= 0.7 {
			pool = sitePhrases
		}
		msg.Content = pool[s.randIntn(len(pool))]
	}
	s.appendLocked(msg)
	return msg
}

// AddReal 合併一則真實使用者的留言
// 回傳是否應該排程一次性的回覆：同一個顯示名稱在本會話中最多被回覆一次，
// 同一人重複留言不會再次觸發
func (s *CommentStream) AddReal(msg ChatMessage) (shouldReply bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(msg)

	if msg.Author == "" || len(s.cfg.Identities) == 0 {
		return false
	}
	if _, ok := s.replied[msg.Author]; ok {
		return false
	}
	s.replied[msg.Author] = struct{}{}
	return true
}

// BuildReply 建立針對真實使用者的提問式回覆
// 呼叫端負責延遲排程與取消，這裡只產生內容
func (s *CommentStream) BuildReply(target string, now time.Time) ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.Identities) == 0 {
		return ChatMessage{}
	}
	author := s.cfg.Identities[s.randIntn(len(s.cfg.Identities))]
	msg := ChatMessage{
		ID:        uuid.New(),
		Author:    author,
		Content:   fmt.Sprintf(replyPhrases[s.randIntn(len(replyPhrases))], target),
		Time:      now,
		ReplyTo:   target,
		Synthetic: true,
	}
	s.appendLocked(msg)
	return msg
}

// Snapshot 回傳依時間排序、截斷後的留言清單
func (s *CommentStream) Snapshot() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// appendLocked 插入留言並維持時間排序與上限
// 合併是「附加再排序」，絕不就地修改或移除真實留言以外的排序依據
func (s *CommentStream) appendLocked(msg ChatMessage) {
	s.messages = append(s.messages, msg)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].Time.Before(s.messages[j].Time)
	})
	if len(s.messages) > maxChatMessages {
		s.messages = s.messages[len(s.messages)-maxChatMessages:]
	}
	if msg.Synthetic {
		for _, name := range s.active {
			if name == msg.Author {
				return
			}
		}
		s.active = append(s.active, msg.Author)
	}
}

// mentionTargetLocked 從本會話已發言的模擬身份中挑一個不是自己的對象
func (s *CommentStream) mentionTargetLocked(author string) string {
	candidates := make([]string, 0, len(s.active))
	for _, name := range s.active {
		if name != author {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[s.randIntn(len(candidates))]
}

func (s *CommentStream) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	if s.cfg.Rand != nil {
		return s.cfg.Rand.Intn(n)
	}
	return rand.Intn(n)
}

func (s *CommentStream) randFloat() float64 {
	if s.cfg.Rand != nil {
		return s.cfg.Rand.Float64()
	}
	return rand.Float64()
}
