package config

import (
	"time"

	"github.com/t2bot/patient-media-repo/common"
)

type MainRepoConfig struct {
	General      GeneralConfig      `yaml:"repo"`
	Database     DatabaseConfig     `yaml:"database"`
	Datastore    DatastoreConfig    `yaml:"datastore"`
	Uploads      UploadsConfig      `yaml:"uploads"`
	Images       ImagesConfig       `yaml:"images"`
	Videos       VideosConfig       `yaml:"videos"`
	Workers      WorkersConfig      `yaml:"workers"`
	Downloads    DownloadsConfig    `yaml:"downloads"`
	RateLimit    RateLimitConfig    `yaml:"rateLimit"`
	Redis        RedisConfig        `yaml:"redis"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Sentry       SentryConfig       `yaml:"sentry"`
	SharedSecret SharedSecretConfig `yaml:"sharedSecretAuth"`
}

type GeneralConfig struct {
	BindAddress     string `yaml:"bindAddress"`
	Port            int    `yaml:"port"`
	LogDirectory    string `yaml:"logDirectory"`
	LogColors       bool   `yaml:"logColors"`
	JsonLogs        bool   `yaml:"jsonLogs"`
	LogLevel        string `yaml:"logLevel"`
	TrustAnyForward bool   `yaml:"trustAnyForwardedAddress"`
}

type DatabaseConfig struct {
	// Empty means the in-memory dedup index is used (single process only).
	Postgres                string        `yaml:"postgres"`
	Pool                    *DbPoolConfig `yaml:"pool"`
	StaleReservationSeconds int           `yaml:"staleReservationSeconds"`
}

func (c DatabaseConfig) StaleReservation() time.Duration {
	return time.Duration(c.StaleReservationSeconds) * time.Second
}

// ReservationRefresh is how often a live upload marks its reservation as
// still in progress. Several refreshes fit in one stale window.
func (c DatabaseConfig) ReservationRefresh() time.Duration {
	return c.StaleReservation() / 4
}

type DbPoolConfig struct {
	MaxConnections int `yaml:"maxConnections"`
	MaxIdle        int `yaml:"maxIdleConnections"`
}

type DatastoreConfig struct {
	Type     string            `yaml:"type"` // "file" or "s3"
	Path     string            `yaml:"path"`
	TempPath string            `yaml:"tempPath"`
	Options  map[string]string `yaml:"options"`
}

type UploadsConfig struct {
	MaxImageBytes      int64    `yaml:"maxImageBytes"`
	MaxVideoBytes      int64    `yaml:"maxVideoBytes"`
	ImageExtensions    []string `yaml:"imageExtensions,flow"`
	VideoExtensions    []string `yaml:"videoExtensions,flow"`
	ImageMimeTypes     []string `yaml:"imageMimeTypes,flow"`
	VideoMimeTypes     []string `yaml:"videoMimeTypes,flow"`
	MaxFilenameLength  int      `yaml:"maxFilenameLength"`
	StoreAttempts      int      `yaml:"storeAttempts"`
	StoreBackoffMillis int      `yaml:"storeBackoffMs"`
}

func (c UploadsConfig) MaxBytesFor(kind common.Kind) int64 {
	if kind == common.KindVideo {
		return c.MaxVideoBytes
	}
	return c.MaxImageBytes
}

func (c UploadsConfig) StoreBackoff() time.Duration {
	return time.Duration(c.StoreBackoffMillis) * time.Millisecond
}

func (c UploadsConfig) LargestMaxBytes() int64 {
	if c.MaxVideoBytes > c.MaxImageBytes {
		return c.MaxVideoBytes
	}
	return c.MaxImageBytes
}

type DerivativeSize struct {
	Label  string `yaml:"label"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type ImagesConfig struct {
	Derivatives []DerivativeSize `yaml:"derivatives,flow"`
	JpegQuality int              `yaml:"jpegQuality"`
	MaxPixels   int              `yaml:"maxPixels"`
}

type VideoProfile struct {
	Container    string `yaml:"container"`
	VideoCodec   string `yaml:"videoCodec"`
	VideoEncoder string `yaml:"videoEncoder"`
	AudioCodec   string `yaml:"audioCodec"`
	AudioBitrate string `yaml:"audioBitrate"`
	Crf          int    `yaml:"crf"`
	Preset       string `yaml:"preset"`
	PixelFormat  string `yaml:"pixelFormat"`
}

type VideosConfig struct {
	MaxDurationSeconds int          `yaml:"maxDurationSeconds"`
	FfmpegPath         string       `yaml:"ffmpegPath"`
	FfprobePath        string       `yaml:"ffprobePath"`
	TimeoutSeconds     int          `yaml:"timeoutSeconds"`
	ProbeTimeoutSecs   int          `yaml:"probeTimeoutSeconds"`
	MaxOutputBytes     int64        `yaml:"maxOutputBytes"`
	PosterAtSeconds    float64      `yaml:"posterAtSeconds"`
	Profile            VideoProfile `yaml:"profile"`
}

func (c VideosConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

func (c VideosConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c VideosConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSecs) * time.Second
}

type WorkersConfig struct {
	Ingest    int `yaml:"ingest"`
	Transcode int `yaml:"transcode"`
}

type DownloadsConfig struct {
	CacheMaxAgeSeconds int `yaml:"cacheMaxAgeSeconds"`
}

type RateLimitConfig struct {
	Enabled           bool                  `yaml:"enabled"`
	RequestsPerSecond float64               `yaml:"requestsPerSecond"`
	BurstCount        int                   `yaml:"burst"`
	DistinctFetches   DistinctFetchesConfig `yaml:"distinctFetches"`
}

type DistinctFetchesConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxFetches    int  `yaml:"maxFetches"`
	WindowSeconds int  `yaml:"windowSeconds"`
}

func (c DistinctFetchesConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type RedisConfig struct {
	Enabled bool               `yaml:"enabled"`
	Shards  []RedisShardConfig `yaml:"shards,flow"`
	DbNum   int                `yaml:"databaseNumber"`
}

type RedisShardConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"addr"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

type SentryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dsn         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
}

type SharedSecretConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}
