package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"finchat/internal/ai"
	"finchat/internal/config"
	"finchat/internal/model"
	mysqlClient "finchat/internal/platform/mysql"
	rabbitmqClient "finchat/internal/platform/rabbitmq"
	redisClient "finchat/internal/platform/redis"
	"finchat/internal/vectorstore"
	"finchat/internal/worker"
)

// App holds every long-lived resource: clients, the vector index and
// the background index worker. Transport wiring happens in the router.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	LLMClient   *ai.OpenAICompatibleClient
	VectorStore *vectorstore.Store
	IndexWorker *worker.IndexWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	llmClient := ai.NewOpenAICompatibleClient()
	embedder := ai.NewEmbeddingGateway(llmClient, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	})
	store := vectorstore.New(vectorstore.Options{
		DataDir:             cfg.Vector.DataDir,
		IndexName:           cfg.Vector.IndexName,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
	}, embedder, logger)

	indexWorker := worker.NewIndexWorker(mqConn, store, cfg.RabbitMQ.DocumentQueue, cfg.Retrieval.Namespace, logger)
	if err := indexWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start index worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		LLMClient:   llmClient,
		VectorStore: store,
		IndexWorker: indexWorker,
		StartedAt:   time.Now(),
	}, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func (a *App) Close() error {
	var closeErr error
	if a.IndexWorker != nil {
		a.IndexWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
