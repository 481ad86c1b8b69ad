package redis

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewConsumer(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		opts    []ConsumerOption[TestMessage]
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid configuration",
			client:  client,
			stream:  "bid-events",
			wantErr: false,
		},
		{
			name:    "nil client",
			client:  nil,
			stream:  "bid-events",
			wantErr: true,
			errMsg:  "redis client cannot be nil",
		},
		{
			name:    "empty stream",
			client:  client,
			stream:  "",
			wantErr: true,
			errMsg:  "stream cannot be empty",
		},
		{
			name:   "with all options",
			client: client,
			stream: "bid-events",
			opts: []ConsumerOption[TestMessage]{
				WithConsumerLogger[TestMessage](slog.Default()),
				WithConsumerBufferSize[TestMessage](200),
				WithConsumerBlockTimeout[TestMessage](2 * time.Second),
				WithConsumerParseFunc[TestMessage](func(m map[string]any) (TestMessage, error) {
					return TestMessage{}, nil
				}),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			consumer, err := NewConsumer[TestMessage](tt.client, tt.stream, tt.opts...)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, consumer)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, consumer)
				consumer.Close()
			}
		})
	}
}

func TestConsumer_StartStop(t *testing.T) {
	t.Run("start and stop are idempotent", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetErr(redis.Nil)

		consumer, err := NewConsumer[TestMessage](client, "bid-events")
		require.NoError(t, err)

		consumer.Start()
		consumer.Start() // no-op
		time.Sleep(100 * time.Millisecond)
		consumer.Close()
		consumer.Close() // no-op
	})
}

func TestConsumer_MessageConsumption(t *testing.T) {
	t.Run("successful message consumption", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		testMsg := TestMessage{ID: "1", Data: "test data"}
		msgValues, err := DefaultParseToMessage(testMsg)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "bid-events",
				Messages: []redis.XMessage{
					{ID: "1234-0", Values: msgValues},
				},
			},
		})

		consumer, err := NewConsumer[TestMessage](client, "bid-events")
		require.NoError(t, err)

		consumer.Start()
		defer consumer.Close()

		select {
		case msg := <-consumer.Subscribe():
			assert.Equal(t, testMsg.ID, msg.ID)
			assert.Equal(t, testMsg.Data, msg.Data)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("cursor advances past consumed message", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		first := TestMessage{ID: "1", Data: "first"}
		second := TestMessage{ID: "2", Data: "second"}
		firstValues, err := DefaultParseToMessage(first)
		require.NoError(t, err)
		secondValues, err := DefaultParseToMessage(second)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{Stream: "bid-events", Messages: []redis.XMessage{{ID: "1234-0", Values: firstValues}}},
		})
		// 第二次讀取必須從上一條消息的ID開始
		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "1234-0"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{Stream: "bid-events", Messages: []redis.XMessage{{ID: "1234-1", Values: secondValues}}},
		})

		consumer, err := NewConsumer[TestMessage](client, "bid-events")
		require.NoError(t, err)

		consumer.Start()
		defer consumer.Close()

		got := make([]TestMessage, 0, 2)
		for len(got) < 2 {
			select {
			case msg := <-consumer.Subscribe():
				got = append(got, msg)
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for messages")
			}
		}
		assert.Equal(t, "first", got[0].Data)
		assert.Equal(t, "second", got[1].Data)
	})

	t.Run("invalid message is skipped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "bid-events",
				Messages: []redis.XMessage{
					{ID: "1234-0", Values: map[string]interface{}{"data": "not base64!"}},
				},
			},
		})

		consumer, err := NewConsumer[TestMessage](
			client,
			"bid-events",
			WithConsumerParseFunc[TestMessage](func(m map[string]any) (TestMessage, error) {
				return TestMessage{}, fmt.Errorf("failed to parse message")
			}),
		)
		require.NoError(t, err)

		consumer.Start()
		defer consumer.Close()

		select {
		case <-consumer.Subscribe():
			t.Fatal("should not receive invalid message")
		case <-time.After(300 * time.Millisecond):
			// Expected timeout
		}
	})

	t.Run("redis error handling", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"bid-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetErr(redis.ErrClosed)

		consumer, err := NewConsumer[TestMessage](client, "bid-events")
		require.NoError(t, err)

		consumer.Start()
		defer consumer.Close()

		time.Sleep(100 * time.Millisecond)
	})
}
