package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	mathRand "math/rand"
	"sync"
	"time"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"dexhub/adapters/oidc"
	redisAdapter "dexhub/adapters/redis"
	internalS3 "dexhub/adapters/s3"
	"dexhub/adapters/sse"
	"dexhub/models"
	"dexhub/simulate"
)

type ServerImpl struct {
	oidcProviders map[string]*oidc.Provider
	s3Operator    *internalS3.S3Operator
	htmlChecker   *bluemonday.Policy
	redisClient   *redis.Client

	// 三條 stream 對應三組 consumer + SSE manager，頻道名稱都是拍賣 ID
	bidConsumer     redisAdapter.IConsumer[sse.PublishRequest[BidInfo]]
	commentConsumer redisAdapter.IConsumer[sse.PublishRequest[CommentInfo]]
	statusConsumer  redisAdapter.IConsumer[sse.PublishRequest[StatusInfo]]
	bidManager      sse.IConnectionManager[BidInfo]
	commentManager  sse.IConnectionManager[CommentInfo]
	statusManager   sse.IConnectionManager[StatusInfo]

	commentProducer redisAdapter.IProducer[CommentInfo]
	statusProducer  redisAdapter.IProducer[StatusInfo]
	groupConsumer   redisAdapter.IGroupConsumer[BidInfo]

	// viewerHub 讓同一場拍賣的所有即時會話共用同一個觀看人數模型
	viewerHub *simulate.ViewerHub
	rng       *mathRand.Rand

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
	db         *gorm.DB

	config ServerConfig
}

// newStreamFanout 建立一組由 Redis stream 餵給 SSE manager 的廣播鏈
// channelOf 決定訊息要送到哪個頻道
func newStreamFanout[T any](client *redis.Client, stream string, channelOf func(T) string) (redisAdapter.IConsumer[sse.PublishRequest[T]], sse.IConnectionManager[T], error) {
	consumer, err := redisAdapter.NewConsumer(
		client,
		stream,
		redisAdapter.WithConsumerParseFunc(func(m map[string]any) (sse.PublishRequest[T], error) {
			info, err := redisAdapter.DefaultParseFromMessage[T](m)
			if err != nil {
				return sse.PublishRequest[T]{}, fmt.Errorf("fail to parse message from stream %s, err=%w", stream, err)
			}
			return sse.PublishRequest[T]{
				Channel: channelOf(info),
				Message: info,
			}, nil
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	manager, err := sse.NewConnectionManager[T](
		sse.WithLogger[T](slog.Default()),
		sse.WithSubscriber(consumer),
	)
	if err != nil {
		return nil, nil, err
	}
	return consumer, manager, nil
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化OIDC提供者
	oidcProviders := make(map[string]*oidc.Provider, len(config.OIDC.Providers))
	for provider, providerConfig := range config.OIDC.Providers {
		oidcProvider, err := oidc.NewProvider(providerConfig.IssuerURL, providerConfig.ClientID, providerConfig.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, provider=%s, err=%w", op, provider, err)
		}
		oidcProviders[provider] = oidcProvider
	}

	// 初始化S3客戶端
	s3Cfg, err := awsCfg.LoadDefaultConfig(
		context.Background(),
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	s3Operator, err := internalS3.NewS3Operator(s3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化三組 stream 廣播鏈
	bidConsumer, bidManager, err := newStreamFanout(redisClient, config.Redis.StreamKeys.Bids, func(info BidInfo) string {
		return info.ItemID.String()
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid fanout, err=%w", op, err)
	}
	commentConsumer, commentManager, err := newStreamFanout(redisClient, config.Redis.StreamKeys.Comments, func(info CommentInfo) string {
		return info.ItemID.String()
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create comment fanout, err=%w", op, err)
	}
	statusConsumer, statusManager, err := newStreamFanout(redisClient, config.Redis.StreamKeys.Status, func(info StatusInfo) string {
		return info.ItemID.String()
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create status fanout, err=%w", op, err)
	}

	// 初始化producer
	commentProducer, err := redisAdapter.NewProducer[CommentInfo](redisClient, config.Redis.StreamKeys.Comments)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create comment producer, err=%w", op, err)
	}
	statusProducer, err := redisAdapter.NewProducer[StatusInfo](redisClient, config.Redis.StreamKeys.Status)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create status producer, err=%w", op, err)
	}

	// 初始化group consumer
	groupConsumer, err := redisAdapter.NewGroupConsumer[BidInfo](
		redisClient,
		config.Redis.StreamKeys.Bids,
		config.Redis.ConsumerGroup,
		config.ID,
		redisAdapter.WithGroupConsumerLogger[BidInfo](slog.Default()),
		redisAdapter.WithGroupConsumerStrictOrdering[BidInfo](true),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err)
	}

	rng := mathRand.New(mathRand.NewSource(time.Now().UnixNano()))
	return &ServerImpl{
		oidcProviders:   oidcProviders,
		s3Operator:      s3Operator,
		htmlChecker:     bluemonday.UGCPolicy(),
		redisClient:     redisClient,
		bidConsumer:     bidConsumer,
		commentConsumer: commentConsumer,
		statusConsumer:  statusConsumer,
		bidManager:      bidManager,
		commentManager:  commentManager,
		statusManager:   statusManager,
		commentProducer: commentProducer,
		statusProducer:  statusProducer,
		groupConsumer:   groupConsumer,
		viewerHub:       simulate.NewViewerHub(rng),
		rng:             rng,
		db:              db,
		config:          config,
	}, nil
}

func (impl *ServerImpl) Start() error {
	const op = "Start"
	// 啟動consumer
	impl.bidConsumer.Start()
	impl.commentConsumer.Start()
	impl.statusConsumer.Start()
	// 啟動sse connection manager
	impl.bidManager.Start()
	impl.commentManager.Start()
	impl.statusManager.Start()
	// 啟動producer
	impl.commentProducer.Start()
	impl.statusProducer.Start()
	// 啟動group consumer
	if err := impl.groupConsumer.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start group consumer, err=%w", op, err)
	}
	// 啟動一個worker用於將Redis中的出價紀錄存回資料庫
	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	slog.Info("Start bid synchronization worker")
	impl.wg.Add(1)
	go func() {
		logger := slog.Default().With(slog.String("caller", "BidSynchronize"))
		defer impl.wg.Done()
		defer slog.Info("Bid synchronization worker stopped")
		defer impl.groupConsumer.Close()
		ch := impl.groupConsumer.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				logger.Debug("Receive message")
				handleErr := impl.syncBid(logger, msg.Data)
				if handleErr != nil {
					logger.Error("Fail to synchronize bid", slog.Any("error", handleErr))
					if err := msg.Fail(ctx, handleErr); err != nil {
						logger.Error("Fail to fail message", slog.Any("error", err))
					}
					continue
				}
				if err := msg.Done(ctx); err != nil {
					logger.Error("Sync success but fail to done message", slog.Any("error", err))
					if err := msg.Fail(ctx, err); err != nil {
						logger.Error("Sync success but fail to fail message", slog.Any("error", err))
					}
					continue
				}
				logger.Debug("Synchronize success")
			}
		}
	}()
	return nil
}

// syncBid 將一筆 stream 上的出價同步回資料庫
// 已結束或已取消的拍賣、不滿足最低加價幅度的出價會被忽略而不是報錯，
// 避免這類訊息一直佔住 pending list
func (impl *ServerImpl) syncBid(logger *slog.Logger, info BidInfo) error {
	auction := models.AuctionItem{ID: info.ItemID}
	if result := impl.db.Preload("CurrentBid.User").First(&auction); result.Error != nil {
		return fmt.Errorf("fail to find auction item, err=%w", result.Error)
	}
	if auction.IsEnded(info.CreatedAt) {
		logger.Warn("Ignore bid on ended auction", slog.String("itemID", info.ItemID.String()), slog.String("status", string(auction.Status)))
		return nil
	}
	currentBid := auction.StartingPrice
	if auction.CurrentBid != nil {
		currentBid = auction.CurrentBid.Amount
	}
	if info.Amount < currentBid+auction.MinIncrement {
		logger.Warn("Ignore lower bid", slog.String("itemID", info.ItemID.String()), slog.Int64("current", int64(currentBid)), slog.Int64("new", int64(info.Amount)))
		return nil
	}
	logger.Debug("Update current bid", slog.String("itemID", info.ItemID.String()), slog.Uint64("from", uint64(currentBid)), slog.Int64("to", int64(info.Amount)))
	record := models.Bid{
		UserID:        info.User.ID,
		Amount:        info.Amount,
		AuctionItemID: info.ItemID,
	}
	auction.CurrentBidID = &record.ID
	auction.CurrentBid = &record
	auction.BidCount++
	if result := impl.db.Save(&auction); result.Error != nil {
		return fmt.Errorf("fail to update auction item, err=%w", result.Error)
	}
	return nil
}

func (impl *ServerImpl) Close() {
	// 關閉group consumer
	impl.groupConsumer.Close()
	// 關閉worker
	if impl.cancelFunc != nil {
		impl.cancelFunc()
	}
	impl.wg.Wait()
	// 關閉producer
	impl.commentProducer.Close()
	impl.statusProducer.Close()
	// 關閉consumer
	impl.bidConsumer.Close()
	impl.commentConsumer.Close()
	impl.statusConsumer.Close()
	// 關閉sse connection manager
	impl.bidManager.Done()
	impl.commentManager.Done()
	impl.statusManager.Done()
	// 關閉觀看人數模型
	impl.viewerHub.Close()
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
