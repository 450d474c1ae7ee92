package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
	Media struct {
		// 本地媒体根目录：旁白音频缓存 + /v1/api/media 静态服务
		Root string `yaml:"root"`
	} `yaml:"media"`
	Providers struct {
		Script struct {
			Endpoint string `yaml:"endpoint"`
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
		} `yaml:"script"`
		Image struct {
			Endpoint string `yaml:"endpoint"` // pollinations 风格 GET 接口
			Width    int    `yaml:"width"`
			Height   int    `yaml:"height"`
			Model    string `yaml:"model"`
		} `yaml:"image"`
		ImageFallback struct {
			Endpoint string `yaml:"endpoint"` // fal 风格队列接口
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
		} `yaml:"image_fallback"`
		Video struct {
			Endpoint string `yaml:"endpoint"`
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
		} `yaml:"video"`
		Voice struct {
			Endpoint string `yaml:"endpoint"`
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
		} `yaml:"voice"`
		Transcriber struct {
			Endpoint string `yaml:"endpoint"`
			APIKey   string `yaml:"api_key"`
			Model    string `yaml:"model"`
		} `yaml:"transcriber"`
	} `yaml:"providers"`
	Pipeline struct {
		Concurrency        int `yaml:"concurrency"`          // asynq 消费并发
		ImageParallelism   int `yaml:"image_parallelism"`    // 单项目分镜生图并发上限
		VideoParallelism   int `yaml:"video_parallelism"`
		ProviderTimeoutSec int `yaml:"provider_timeout_sec"` // 单次外部调用超时
		RetryAttempts      int `yaml:"retry_attempts"`
		RetryBaseDelaySec  int `yaml:"retry_base_delay_sec"`
		PollIntervalSec    int `yaml:"poll_interval_sec"` // 图生视频任务轮询间隔
		PollTimeoutSec     int `yaml:"poll_timeout_sec"`
	} `yaml:"pipeline"`
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Pipeline.ProviderTimeoutSec) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryBaseDelaySec) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pipeline.PollIntervalSec) * time.Second
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Pipeline.PollTimeoutSec) * time.Second
}

// Load 读取并解析配置文件；provider 密钥允许环境变量覆盖
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("配置文件读取失败: %w", err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("配置文件解析失败: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Media.Root == "" {
		c.Media.Root = "gen_media"
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 5
	}
	if c.Pipeline.ImageParallelism <= 0 {
		c.Pipeline.ImageParallelism = 3
	}
	if c.Pipeline.VideoParallelism <= 0 {
		c.Pipeline.VideoParallelism = 2
	}
	if c.Pipeline.ProviderTimeoutSec <= 0 {
		c.Pipeline.ProviderTimeoutSec = 60
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = 3
	}
	if c.Pipeline.RetryBaseDelaySec <= 0 {
		c.Pipeline.RetryBaseDelaySec = 2
	}
	if c.Pipeline.PollIntervalSec <= 0 {
		c.Pipeline.PollIntervalSec = 3
	}
	if c.Pipeline.PollTimeoutSec <= 0 {
		c.Pipeline.PollTimeoutSec = 600
	}
}

// applyEnv 密钥优先取环境变量（.env 由 main 通过 godotenv 加载）
func (c *Config) applyEnv() {
	if v := os.Getenv("SCRIPT_API_KEY"); v != "" {
		c.Providers.Script.APIKey = v
	}
	if v := os.Getenv("IMAGE_FALLBACK_API_KEY"); v != "" {
		c.Providers.ImageFallback.APIKey = v
	}
	if v := os.Getenv("VIDEO_API_KEY"); v != "" {
		c.Providers.Video.APIKey = v
	}
	if v := os.Getenv("VOICE_API_KEY"); v != "" {
		c.Providers.Voice.APIKey = v
	}
	if v := os.Getenv("TRANSCRIBER_API_KEY"); v != "" {
		c.Providers.Transcriber.APIKey = v
	}
}
