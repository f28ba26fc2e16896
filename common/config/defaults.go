package config

func NewDefaultMainConfig() MainRepoConfig {
	return MainRepoConfig{
		General: GeneralConfig{
			BindAddress:     "127.0.0.1",
			Port:            8000,
			LogDirectory:    "logs",
			LogColors:       false,
			JsonLogs:        false,
			LogLevel:        "info",
			TrustAnyForward: false,
		},
		Database: DatabaseConfig{
			Postgres: "",
			Pool: &DbPoolConfig{
				MaxConnections: 25,
				MaxIdle:        5,
			},
			StaleReservationSeconds: 900,
		},
		Datastore: DatastoreConfig{
			Type:     "file",
			Path:     "./media",
			TempPath: "",
			Options:  map[string]string{},
		},
		Uploads: UploadsConfig{
			MaxImageBytes:      20971520,  // 20mb
			MaxVideoBytes:      524288000, // 500mb
			ImageExtensions:    []string{".jpg", ".jpeg", ".png", ".webp"},
			VideoExtensions:    []string{".mp4", ".webm", ".mov"},
			ImageMimeTypes:     []string{"image/jpeg", "image/png", "image/webp"},
			VideoMimeTypes:     []string{"video/mp4", "video/webm", "video/quicktime"},
			MaxFilenameLength:  255,
			StoreAttempts:      3,
			StoreBackoffMillis: 250,
		},
		Images: ImagesConfig{
			Derivatives: []DerivativeSize{
				{Label: "thumbnail", Width: 150, Height: 150},
				{Label: "preview", Width: 800, Height: 800},
			},
			JpegQuality: 85,
			MaxPixels:   40000000, // 40 megapixels
		},
		Videos: VideosConfig{
			MaxDurationSeconds: 120,
			FfmpegPath:         "ffmpeg",
			FfprobePath:        "ffprobe",
			TimeoutSeconds:     300,
			ProbeTimeoutSecs:   15,
			MaxOutputBytes:     1073741824, // 1gb
			PosterAtSeconds:    1,
			Profile: VideoProfile{
				Container:    "mp4",
				VideoCodec:   "h264",
				VideoEncoder: "libx264",
				AudioCodec:   "aac",
				AudioBitrate: "128k",
				Crf:          23,
				Preset:       "veryfast",
				PixelFormat:  "yuv420p",
			},
		},
		Workers: WorkersConfig{
			Ingest:    10,
			Transcode: 2,
		},
		Downloads: DownloadsConfig{
			CacheMaxAgeSeconds: 3600,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			BurstCount:        10,
			DistinctFetches: DistinctFetchesConfig{
				Enabled:       true,
				MaxFetches:    300,
				WindowSeconds: 600,
			},
		},
		Redis: RedisConfig{
			Enabled: false,
			Shards:  []RedisShardConfig{},
		},
		Metrics: MetricsConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        9000,
		},
		Sentry: SentryConfig{
			Enabled: false,
		},
		SharedSecret: SharedSecretConfig{
			Enabled: false,
		},
	}
}
