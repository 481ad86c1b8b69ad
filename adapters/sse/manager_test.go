package sse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dexhub/adapters/sse"
)

func TestConnectionManagerLocalMode(t *testing.T) {
	defer goleak.VerifyNone(t)

	// 沒有注入 subscriber/publisher 時退化為單節點模式
	cm, err := sse.NewConnectionManager[Message]()
	require.NoError(t, err)
	cm.Start()
	defer cm.Done()

	// 測試訂閱
	ch, err := cm.Subscribe("test_channel")
	assert.NoError(t, err)
	assert.NotNil(t, ch)

	// 測試發布訊息
	msg := Message{Data: "test message"}
	err = cm.Publish("test_channel", msg)
	assert.NoError(t, err)

	select {
	case received := <-ch:
		assert.Equal(t, msg, received)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}

	// 測試取消訂閱
	cm.Unsubscribe("test_channel", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

// fakeSubscriber 模擬跨節點訊息來源
type fakeSubscriber struct {
	ch chan sse.PublishRequest[Message]
}

func (f *fakeSubscriber) Start()                                     {}
func (f *fakeSubscriber) Subscribe() <-chan sse.PublishRequest[Message] { return f.ch }
func (f *fakeSubscriber) Close()                                     {}

func TestConnectionManagerWithSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)

	upstream := &fakeSubscriber{ch: make(chan sse.PublishRequest[Message], 1)}
	cm, err := sse.NewConnectionManager[Message](
		sse.WithSubscriber[Message](upstream),
	)
	require.NoError(t, err)
	cm.Start()
	defer cm.Done()

	ch, err := cm.Subscribe("auction-1")
	require.NoError(t, err)

	// 來自上游的訊息必須依頻道路由給訂閱者
	upstream.ch <- sse.PublishRequest[Message]{Channel: "auction-1", Message: Message{Data: "bid"}}

	select {
	case received := <-ch:
		assert.Equal(t, "bid", received.Data)
	case <-time.After(time.Second):
		t.Fatal("did not receive routed message in time")
	}

	cm.Unsubscribe("auction-1", ch)
}

func TestConnectionManagerDoneRejectsNewWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	cm, err := sse.NewConnectionManager[Message]()
	require.NoError(t, err)
	cm.Start()
	cm.Done()

	_, err = cm.Subscribe("test_channel")
	assert.Error(t, err)
	assert.Error(t, cm.Publish("test_channel", Message{}))

	// Done 可以重複呼叫
	cm.Done()
}
