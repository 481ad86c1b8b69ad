package simulate_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dexhub/simulate"
)

func newTestSession(active bool, endTime time.Time) *simulate.Session {
	return simulate.NewSession(simulate.SessionConfig{
		AuctionID:     uuid.MustParse("00000000-0000-0000-0000-00000000002a"),
		StartingPrice: 100,
		MinIncrement:  100,
		StartTime:     time.Now().Add(-time.Hour),
		EndTime:       endTime,
		Active:        active,
		Identities:    testIdentities,
		Rand:          rand.New(rand.NewSource(1)),
	})
}

// collectEvents 收集事件直到逾時，回傳收到的全部事件
func collectEvents(s *simulate.Session, wait time.Duration) []simulate.Event {
	var events []simulate.Event
	deadline := time.After(wait)
	for {
		select {
		case event, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			return events
		}
	}
}

func TestSessionNoLeakedGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestSession(true, time.Now().Add(time.Hour))
	s.Start()
	s.OnRealComment(simulate.ChatMessage{ID: uuid.New(), Author: "Ash", Content: "hello", Time: time.Now()})

	// 即使有尚未到期的延遲回覆，關閉會話也必須回收所有計時器與goroutine
	s.Close()

	// Close 可以重複呼叫
	s.Close()
}

func TestSessionSeedsOnlyWhenActive(t *testing.T) {
	defer goleak.VerifyNone(t)

	// 已結束的拍賣不得產生任何合成內容
	s := newTestSession(true, time.Now().Add(-time.Minute))
	s.Start()
	defer s.Close()

	events := collectEvents(s, 50*time.Millisecond)
	for _, event := range events {
		if event.Type == "bids" {
			assert.Empty(t, event.Bids, "an ended auction must not fabricate bids")
		}
		if event.Type == "comments" {
			assert.Empty(t, event.Comments)
		}
	}
}

func TestSessionSeededBidsEmitted(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestSession(true, time.Now().Add(time.Hour))
	s.Start()
	defer s.Close()

	events := collectEvents(s, 50*time.Millisecond)
	var bidEvent *simulate.Event
	for i := range events {
		if events[i].Type == "bids" {
			bidEvent = &events[i]
		}
	}
	require.NotNil(t, bidEvent)
	// 活躍拍賣開場一定有兩筆合成出價，且顯示價與最低下一口價一致
	assert.Len(t, bidEvent.Bids, 2)
	assert.Equal(t, bidEvent.Price+100, bidEvent.MinNextBid)
}

func TestSessionRealBidUpdatesPrice(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestSession(true, time.Now().Add(time.Hour))
	s.Start()
	collectEvents(s, 20*time.Millisecond)

	s.OnRealBid(simulate.DisplayBid{ID: uuid.New(), DisplayName: "Ash", Amount: 99999, Time: time.Now()})

	events := collectEvents(s, 50*time.Millisecond)
	s.Close()

	var sawPrice bool
	for _, event := range events {
		if event.Type == "price" && event.Price == 99999 {
			sawPrice = true
			assert.Equal(t, "Ash", event.Leader)
			assert.Equal(t, uint32(99999+100), event.MinNextBid)
		}
	}
	assert.True(t, sawPrice, "a higher real bid must surface as the displayed price")
}

func TestSessionStatusFeedEndsSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestSession(true, time.Now().Add(time.Hour))
	s.Start()
	collectEvents(s, 20*time.Millisecond)

	// 權威狀態說結束就是結束，即使本地時間認為還沒到
	s.OnStatus("ended")

	events := collectEvents(s, 50*time.Millisecond)
	var sawEnded bool
	for _, event := range events {
		if event.Type == "status" && event.Status == "ended" {
			sawEnded = true
		}
	}
	assert.True(t, sawEnded)
	s.Close()
}

func TestSessionHistoricalCommentsMerged(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestSession(true, time.Now().Add(time.Hour))
	// 連線前已存在的留言要出現在合併後的留言列表中
	s.SetRealComments([]simulate.ChatMessage{
		{ID: uuid.New(), Author: "Misty", Content: "還會補貨嗎", Time: time.Now().Add(-10 * time.Minute)},
	})
	s.Start()
	defer s.Close()

	events := collectEvents(s, 50*time.Millisecond)
	var sawHistory bool
	for _, event := range events {
		if event.Type != "comments" {
			continue
		}
		for _, msg := range event.Comments {
			if msg.Author == "Misty" {
				sawHistory = true
			}
		}
	}
	assert.True(t, sawHistory, "persisted comments must appear in the merged feed")
}

func TestSessionViewerForwarding(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := simulate.NewViewerHub(rand.New(rand.NewSource(1)))
	defer hub.Close()

	auctionID := uuid.New()
	model, release := hub.Acquire(auctionID, time.Now().Add(time.Hour))

	s := simulate.NewSession(simulate.SessionConfig{
		AuctionID:      auctionID,
		StartingPrice:  100,
		MinIncrement:   100,
		StartTime:      time.Now().Add(-time.Hour),
		EndTime:        time.Now().Add(time.Hour),
		Active:         true,
		Identities:     testIdentities,
		Rand:           rand.New(rand.NewSource(1)),
		Viewers:        model,
		ReleaseViewers: release,
	})
	s.Start()

	events := collectEvents(s, 1500*time.Millisecond)
	s.Close()

	var sawViewers bool
	for _, event := range events {
		if event.Type == "viewers" {
			sawViewers = true
			assert.GreaterOrEqual(t, event.Viewers, simulate.DefaultViewerFloor)
			assert.LessOrEqual(t, event.Viewers, simulate.DefaultViewerCap)
		}
	}
	assert.True(t, sawViewers)
}

func TestSessionViewersStopAfterEnded(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := simulate.NewViewerHub(rand.New(rand.NewSource(1)))
	defer hub.Close()

	auctionID := uuid.New()
	model, release := hub.Acquire(auctionID, time.Now().Add(time.Hour))

	s := simulate.NewSession(simulate.SessionConfig{
		AuctionID:      auctionID,
		StartingPrice:  100,
		MinIncrement:   100,
		StartTime:      time.Now().Add(-time.Hour),
		EndTime:        time.Now().Add(time.Hour),
		Active:         true,
		Identities:     testIdentities,
		Rand:           rand.New(rand.NewSource(1)),
		Viewers:        model,
		ReleaseViewers: release,
	})
	s.Start()
	collectEvents(s, 20*time.Millisecond)

	// 權威結束後，人數模型停用且不得再推送人數更新
	s.OnStatus("ended")
	collectEvents(s, 20*time.Millisecond)

	for i := 0; i < 10; i++ {
		model.Tick(time.Now())
	}
	events := collectEvents(s, 100*time.Millisecond)
	s.Close()

	for _, event := range events {
		assert.NotEqual(t, "viewers", event.Type, "viewer updates must stop after the authoritative ended status")
	}
	assert.Zero(t, model.Current())
}
