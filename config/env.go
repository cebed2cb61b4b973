package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment key understood by Load.
const EnvPrefix = "IMGOPT_"

// Load returns Default() overridden first by the dotenv file at path (when
// path is non-empty) and then by the process environment.  The result is
// validated.
func Load(path string) (Config, error) {
	cfg := Default()
	vals := map[string]string{}
	if path != "" {
		fileVals, err := godotenv.Read(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		vals = fileVals
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			vals[k] = v
		}
	}
	if err := Apply(&cfg, vals); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// Apply overrides cfg with the recognised keys of vals.  Unknown keys are
// ignored.
func Apply(cfg *Config, vals map[string]string) error {
	for key, raw := range vals {
		name := strings.TrimPrefix(key, EnvPrefix)
		if name == key {
			continue
		}
		set, ok := setters[name]
		if !ok {
			continue
		}
		if err := set(cfg, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	return nil
}

type setter func(cfg *Config, v string) error

var setters = map[string]setter{
	"TARGET_FORMAT":     func(c *Config, v string) error { c.TargetFormat = strings.ToLower(v); return nil },
	"BACKEND":           func(c *Config, v string) error { c.Backend = CodecBackend(strings.ToLower(v)); return nil },
	"DEFAULT_QUALITY":   intSetter(func(c *Config) *int { return &c.DefaultQuality }),
	"MAX_IMAGE_BYTES":   int64Setter(func(c *Config) *int64 { return &c.MaxImageBytes }),
	"CHUNK_SIZE":        intSetter(func(c *Config) *int { return &c.ChunkSize }),
	"BATCH_CONCURRENCY": intSetter(func(c *Config) *int { return &c.BatchConcurrency }),
	"LOG_LEVEL":         func(c *Config, v string) error { c.LogLevel = strings.ToLower(v); return nil },

	"FLAT_ENTROPY":        floatSetter(func(c *Config) *float64 { return &c.Classifier.FlatEntropy }),
	"DARK_BRIGHTNESS":     floatSetter(func(c *Config) *float64 { return &c.Classifier.DarkBrightness }),
	"HIGH_DETAIL_ENTROPY": floatSetter(func(c *Config) *float64 { return &c.Classifier.HighDetailEntropy }),

	"SKIP_BELOW_BYTES":  int64Setter(func(c *Config) *int64 { return &c.Strategy.SkipBelowBytes }),
	"LOSSLESS_EFFORT":   intSetter(func(c *Config) *int { return &c.Strategy.LosslessEffort }),
	"NEAR_LOSSLESS":     intSetter(func(c *Config) *int { return &c.Strategy.NearLossless }),
	"SMART_SUBSAMPLE":   boolSetter(func(c *Config) *bool { return &c.Strategy.SmartSubsample }),
	"CAREFUL_QUALITIES": listSetter(func(c *Config) *[]int { return &c.Strategy.CarefulQualities }),
	"DETAIL_QUALITIES":  listSetter(func(c *Config) *[]int { return &c.Strategy.DetailQualities }),
	"DEFAULT_QUALITIES": listSetter(func(c *Config) *[]int { return &c.Strategy.DefaultQualities }),

	"SSIM_THRESHOLD": floatSetter(func(c *Config) *float64 { return &c.Search.Threshold }),
	"COMPARE_CANVAS": intSetter(func(c *Config) *int { return &c.Search.CompareCanvas }),
	"DIFF_CANVAS":    intSetter(func(c *Config) *int { return &c.Diff.Canvas }),

	"FETCH_TIMEOUT":     durationSetter(func(c *Config) *time.Duration { return &c.Fetch.Timeout }),
	"FETCH_RPS":         floatSetter(func(c *Config) *float64 { return &c.Fetch.RequestsPerSecond }),
	"FETCH_BURST":       intSetter(func(c *Config) *int { return &c.Fetch.Burst }),
	"FETCH_MAX_BYTES":   int64Setter(func(c *Config) *int64 { return &c.Fetch.MaxBytes }),
	"FETCH_CACHE_BYTES": int64Setter(func(c *Config) *int64 { return &c.Fetch.CacheBytes }),
	"FETCH_CACHE_TTL":   durationSetter(func(c *Config) *time.Duration { return &c.Fetch.CacheTTL }),
	"FETCH_USER_AGENT":  func(c *Config, v string) error { c.Fetch.UserAgent = v; return nil },

	"CACHE_ENABLED":   boolSetter(func(c *Config) *bool { return &c.Cache.Enabled }),
	"CACHE_MAX_BYTES": int64Setter(func(c *Config) *int64 { return &c.Cache.MaxBytes }),
	"CACHE_TTL":       durationSetter(func(c *Config) *time.Duration { return &c.Cache.TTL }),

	"STORAGE":              func(c *Config, v string) error { c.Storage = StorageBackend(strings.ToLower(v)); return nil },
	"LOCAL_ROOT":           func(c *Config, v string) error { c.Local.RootDir = v; return nil },
	"S3_BUCKET":            func(c *Config, v string) error { c.S3.Bucket = v; return nil },
	"S3_REGION":            func(c *Config, v string) error { c.S3.Region = v; return nil },
	"S3_ENDPOINT":          func(c *Config, v string) error { c.S3.Endpoint = v; return nil },
	"S3_ACCESS_KEY_ID":     func(c *Config, v string) error { c.S3.AccessKeyID = v; return nil },
	"S3_SECRET_ACCESS_KEY": func(c *Config, v string) error { c.S3.SecretAccessKey = v; return nil },
	"S3_PATH_STYLE":        boolSetter(func(c *Config) *bool { return &c.S3.UsePathStyle }),
	"S3_SECURE":            boolSetter(func(c *Config) *bool { return &c.S3.Secure }),
}

func intSetter(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func int64Setter(field func(*Config) *int64) setter {
	return func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolSetter(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationSetter(field func(*Config) *time.Duration) setter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// listSetter parses a comma separated quality list such as "82,78,74".
func listSetter(field func(*Config) *[]int) setter {
	return func(c *Config, v string) error {
		parts := strings.Split(v, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		*field(c) = out
		return nil
	}
}
