package main

import (
	"fmt"
	"log"

	"ShortReel-server/config"
	"ShortReel-server/models"
	"ShortReel-server/routers"
	"ShortReel-server/routers/api"
	"ShortReel-server/service"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	// .env 仅本地开发使用，密钥覆盖 config.yaml
	_ = godotenv.Load()

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	fmt.Println("Server starting on port", cfg.Server.Port)

	store, err := models.NewStore(cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("数据库初始化失败: %v", err)
	}
	defer store.Close()
	fmt.Println("Database initialized")

	storage, err := service.NewObjectStorage(
		cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey,
		cfg.MinIO.Bucket, cfg.MinIO.UseSSL,
	)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	fmt.Println("MinIO initialized")

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	}
	queue := service.NewQueue(redisOpt)
	defer queue.Close()
	fmt.Println("Queue initialized")

	// 生成服务协作方
	script := service.NewGeminiScriptWriter(
		cfg.Providers.Script.Endpoint, cfg.Providers.Script.APIKey,
		cfg.Providers.Script.Model, cfg.ProviderTimeout(),
	)
	imageProviders := []service.ImageSynthesizer{
		service.NewPollinationsImage(
			cfg.Providers.Image.Endpoint, cfg.Providers.Image.Width,
			cfg.Providers.Image.Height, cfg.Providers.Image.Model, cfg.ProviderTimeout(),
		),
		service.NewFalImage(
			cfg.Providers.ImageFallback.Endpoint, cfg.Providers.ImageFallback.APIKey,
			cfg.Providers.ImageFallback.Model, cfg.ProviderTimeout(),
		),
	}
	images := service.NewImageStage(imageProviders, storage, cfg.Pipeline.ImageParallelism, cfg.ProviderTimeout())
	videoSynth := service.NewFalVideo(
		cfg.Providers.Video.Endpoint, cfg.Providers.Video.APIKey,
		cfg.Providers.Video.Model, cfg.PollInterval(), cfg.PollTimeout(),
	)
	videos := service.NewVideoStage(videoSynth, storage, cfg.Pipeline.VideoParallelism, cfg.Pipeline.RetryAttempts, cfg.RetryBaseDelay())
	voice := service.NewDeepgramVoice(
		cfg.Providers.Voice.Endpoint, cfg.Providers.Voice.APIKey,
		cfg.Providers.Voice.Model, cfg.ProviderTimeout(),
	)
	transcriber := service.NewDeepgramTranscriber(
		cfg.Providers.Transcriber.Endpoint, cfg.Providers.Transcriber.APIKey,
		cfg.Providers.Transcriber.Model, cfg.ProviderTimeout(),
	)
	align := service.NewAlignmentStage(transcriber, storage, cfg.Media.Root)

	locks := service.NewRunRegistry()
	pipeline := service.NewPipeline(
		store, storage, script, images, videos, voice, align, locks,
		service.VoiceConfig{Model: cfg.Providers.Voice.Model},
	)
	pipeline.StartProcessor(redisOpt, cfg.Pipeline.Concurrency)

	h := api.NewHandler(store, queue, locks, cfg.Media.Root)
	r := routers.InitRouter(h)
	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatalf("HTTP 服务启动失败: %v", err)
	}
}
