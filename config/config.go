package config

import (
	"errors"
	"fmt"
	"time"
)

// StorageBackend selects the storage adapter.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
	StorageMinio StorageBackend = "minio"
)

// CodecBackend selects the codec implementation.
type CodecBackend string

const (
	BackendGo   CodecBackend = "go"   // stdlib, x/image, chai2010/webp, jpegli
	BackendVips CodecBackend = "vips" // libvips through govips
)

// Config is the top-level configuration struct.  Start from Default() and
// override only what you need.
type Config struct {
	// Target codec of the recompression ("webp", "jpeg" or "png").
	TargetFormat string
	Backend      CodecBackend

	// Encoder default when EncodeOptions.Quality is 0.
	DefaultQuality int // 1-100; default 80

	// Streaming / memory limits.
	MaxImageBytes int64 // 0 = no limit
	ChunkSize     int   // streaming chunk size in bytes; default 32 KiB

	// Batch fan-out; 1 processes inputs one at a time in order.
	BatchConcurrency int

	Classifier ClassifierConfig
	Strategy   StrategyConfig
	Search     SearchConfig
	Diff       DiffConfig
	Fetch      FetchConfig
	Cache      CacheConfig

	// Storage.
	Storage StorageBackend
	Local   LocalConfig
	S3      S3Config

	// Logging.
	LogLevel string // "debug", "info", "warn", "error"
}

// ClassifierConfig holds the content classification thresholds.
type ClassifierConfig struct {
	FlatEntropy       float64 // isFlat when entropy is below
	DarkBrightness    float64 // isDark when mean brightness is below
	HighDetailEntropy float64 // isHighDetail when entropy is above
}

// StrategyConfig holds the strategy selection rules.
type StrategyConfig struct {
	SkipBelowBytes   int64
	LosslessEffort   int
	CarefulQualities []int
	NearLossless     int
	SmartSubsample   bool
	DetailQualities  []int
	DefaultQualities []int
}

// SearchConfig controls the quality search.
type SearchConfig struct {
	Threshold     float64 // SSIM must be strictly greater to accept
	CompareCanvas int     // square canvas edge used for scoring
}

// DiffConfig controls the diff visualizer.
type DiffConfig struct {
	Canvas int
}

// FetchConfig configures the HTTP fetch collaborator.
type FetchConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
	MaxBytes          int64
	CacheBytes        int64 // 0 disables the HTTP cache
	CacheTTL          time.Duration
	UserAgent         string
}

// CacheConfig configures the optional outcome cache.
type CacheConfig struct {
	Enabled  bool
	MaxBytes int64
	TTL      time.Duration
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string
	Permissions uint32 // default 0644
}

// S3Config configures the S3 / MinIO storage adapters.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional custom endpoint (MinIO, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Secure          bool
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		TargetFormat:     "webp",
		Backend:          BackendGo,
		DefaultQuality:   80,
		ChunkSize:        32 * 1024,
		BatchConcurrency: 1,
		Classifier: ClassifierConfig{
			FlatEntropy:       4.5,
			DarkBrightness:    60,
			HighDetailEntropy: 6,
		},
		Strategy: StrategyConfig{
			SkipBelowBytes:   200_000,
			LosslessEffort:   6,
			CarefulQualities: []int{82, 80, 78},
			NearLossless:     60,
			SmartSubsample:   true,
			DetailQualities:  []int{82, 78, 74, 70},
			DefaultQualities: []int{78, 74, 70, 66},
		},
		Search: SearchConfig{
			Threshold:     0.96,
			CompareCanvas: 512,
		},
		Diff: DiffConfig{Canvas: 800},
		Fetch: FetchConfig{
			Timeout:    30 * time.Second,
			Burst:      1,
			MaxBytes:   64 << 20,
			CacheBytes: 64 << 20,
			CacheTTL:   time.Hour,
			UserAgent:  "image-optimizer/1.0",
		},
		Cache: CacheConfig{
			MaxBytes: 256 << 20,
			TTL:      24 * time.Hour,
		},
		Storage:  StorageLocal,
		Local:    LocalConfig{RootDir: "./out", Permissions: 0o644},
		S3:       S3Config{Region: "us-east-1", Secure: true},
		LogLevel: "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	switch c.TargetFormat {
	case "webp", "jpeg", "png":
	default:
		return fmt.Errorf("config: unsupported TargetFormat %q", c.TargetFormat)
	}
	switch c.Backend {
	case BackendGo, BackendVips:
	default:
		return fmt.Errorf("config: unsupported Backend %q", c.Backend)
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 1 and 100")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.BatchConcurrency < 1 {
		return errors.New("config: BatchConcurrency must be at least 1")
	}
	if c.Search.Threshold <= 0 || c.Search.Threshold >= 1 {
		return errors.New("config: Search.Threshold must be in (0,1)")
	}
	if c.Search.CompareCanvas < 8 {
		return errors.New("config: Search.CompareCanvas must be at least 8")
	}
	if c.Diff.Canvas < 1 {
		return errors.New("config: Diff.Canvas must be positive")
	}
	if c.Strategy.LosslessEffort < 0 || c.Strategy.LosslessEffort > 6 {
		return errors.New("config: Strategy.LosslessEffort must be between 0 and 6")
	}
	if c.Strategy.NearLossless < 0 || c.Strategy.NearLossless > 100 {
		return errors.New("config: Strategy.NearLossless must be between 0 and 100")
	}
	lists := map[string][]int{
		"CarefulQualities": c.Strategy.CarefulQualities,
		"DetailQualities":  c.Strategy.DetailQualities,
		"DefaultQualities": c.Strategy.DefaultQualities,
	}
	for name, qs := range lists {
		if len(qs) == 0 {
			return fmt.Errorf("config: Strategy.%s must not be empty", name)
		}
		for _, q := range qs {
			if q < 1 || q > 100 {
				return fmt.Errorf("config: Strategy.%s contains out-of-range quality %d", name, q)
			}
		}
	}
	switch c.Storage {
	case StorageLocal:
	case StorageS3, StorageMinio:
		if c.S3.Bucket == "" {
			return errors.New("config: S3.Bucket is required for object storage")
		}
	default:
		return fmt.Errorf("config: unsupported Storage %q", c.Storage)
	}
	return nil
}
