package simulate_test

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"dexhub/simulate"
)

func TestViewerModelBounds(t *testing.T) {
	end := time.Now().Add(time.Hour)
	m := simulate.NewViewerModel(5, 60, end, rand.New(rand.NewSource(1)))
	m.Activate(time.Now())

	m.SetActivity(1000)
	for i := 0; i < 100; i++ {
		m.Tick(time.Now())
		n := m.Current()
		// 人數永遠落在 [floor, cap] 區間內
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 60)
	}
}

func TestViewerModelMonotonicTowardEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	m := simulate.NewViewerModel(5, 60, end, rand.New(rand.NewSource(1)))
	m.Activate(start)

	// 活躍度固定時，隨著越接近結標時間，人數單調不減
	prev := m.Current()
	for now := start; now.Before(end); now = now.Add(time.Minute) {
		m.Tick(now)
		n := m.Current()
		assert.GreaterOrEqual(t, n, prev, "viewer count decreased at %v", now)
		prev = n
	}
}

func TestViewerModelInactive(t *testing.T) {
	m := simulate.NewViewerModel(5, 60, time.Now().Add(time.Hour), rand.New(rand.NewSource(1)))

	// 未啟動時回傳中性值，Tick 也不做事
	assert.Zero(t, m.Current())
	m.Tick(time.Now())
	assert.Zero(t, m.Current())

	m.Activate(time.Now())
	assert.GreaterOrEqual(t, m.Current(), 5)
	m.Deactivate()
	assert.Zero(t, m.Current())
}

func TestViewerModelSubscribersAgree(t *testing.T) {
	m := simulate.NewViewerModel(5, 60, time.Now().Add(time.Hour), rand.New(rand.NewSource(1)))
	m.Activate(time.Now())

	// 兩個訂閱者收到的必須是同一個數字，不允許各區塊各自亂數
	chA := m.Subscribe()
	chB := m.Subscribe()
	defer m.Unsubscribe(chA)
	defer m.Unsubscribe(chB)

	go m.Tick(time.Now())

	var a, b int
	select {
	case a = <-chA:
	case <-time.After(time.Second):
		t.Fatal("subscriber A did not receive viewer count in time")
	}
	select {
	case b = <-chB:
	case <-time.After(time.Second):
		t.Fatal("subscriber B did not receive viewer count in time")
	}
	assert.Equal(t, a, b)
}

func TestViewerHubSharedPerAuction(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := simulate.NewViewerHub(rand.New(rand.NewSource(1)))
	defer hub.Close()

	auctionID := uuid.New()
	end := time.Now().Add(time.Hour)

	// 同一場拍賣取得的是同一個模型
	modelA, releaseA := hub.Acquire(auctionID, end)
	modelB, releaseB := hub.Acquire(auctionID, end)
	assert.Same(t, modelA, modelB)

	// 不同拍賣有各自的模型
	modelC, releaseC := hub.Acquire(uuid.New(), end)
	assert.NotSame(t, modelA, modelC)

	releaseA()
	releaseB()
	releaseC()

	// release 可以安全重複呼叫
	releaseA()
}

func TestViewerHubModelsTickIndependently(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := simulate.NewViewerHub(rand.New(rand.NewSource(1)))
	defer hub.Close()

	end := time.Now().Add(time.Hour)
	modelA, releaseA := hub.Acquire(uuid.New(), end)
	modelB, releaseB := hub.Acquire(uuid.New(), end)
	defer releaseA()
	defer releaseB()

	// 不同拍賣的模型同時跳動，彼此不能共用隨機來源
	var wg sync.WaitGroup
	for _, m := range []*simulate.ViewerModel{modelA, modelB} {
		wg.Add(1)
		go func(m *simulate.ViewerModel) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				m.Tick(time.Now())
			}
		}(m)
	}
	wg.Wait()

	for _, m := range []*simulate.ViewerModel{modelA, modelB} {
		n := m.Current()
		assert.GreaterOrEqual(t, n, simulate.DefaultViewerFloor)
		assert.LessOrEqual(t, n, simulate.DefaultViewerCap)
	}
}
