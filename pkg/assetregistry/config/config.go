package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/asset-registry/pkg/assetregistry"
	"github.com/tendant/asset-registry/pkg/assetregistry/github"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/jsonfile"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/kvtree"
	"github.com/tendant/asset-registry/pkg/assetregistry/repo/postgres"
	"github.com/tendant/asset-registry/pkg/assetregistry/urlstrategy"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverJSON     = "json"
	DriverPostgres = "postgres"
	DriverKVTree   = "kvtree"
)

const redacted = "REDACTED"

// Config represents the settings of the asset registry server
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Store  StoreConfig  `yaml:"store"`
	GitHub GitHubConfig `yaml:"github"`
	Policy PolicyConfig `yaml:"policy"`
	URLs   URLConfig    `yaml:"urls"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
}

// AuthConfig guards the mutating routes with a shared secret.
type AuthConfig struct {
	Header string `yaml:"header" env:"API_KEY_HEADER" env-default:"X-Api-Key"`
	Secret string `yaml:"secret" env:"API_KEY"`
}

type StoreConfig struct {
	Driver   string         `yaml:"driver" env:"STORE_DRIVER" env-default:"memory"`
	JSON     JSONConfig     `yaml:"json"`
	Postgres PostgresConfig `yaml:"postgres"`
	KVTree   KVTreeConfig   `yaml:"kvtree"`
}

// JSONConfig keeps the document either in a local file or in an S3 object.
// The S3 bucket wins when both are set.
type JSONConfig struct {
	Path string       `yaml:"path" env:"STORE_JSON_PATH" env-default:"./data/assets.json"`
	S3   JSONS3Config `yaml:"s3"`
}

type JSONS3Config struct {
	Bucket          string `yaml:"bucket" env:"STORE_S3_BUCKET"`
	Key             string `yaml:"key" env:"STORE_S3_KEY" env-default:"assets.json"`
	Region          string `yaml:"region" env:"AWS_S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `yaml:"create_bucket" env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

type PostgresConfig struct {
	URL    string `yaml:"url" env:"DATABASE_URL"`
	Schema string `yaml:"schema" env:"DB_SCHEMA" env-default:"assets"`
	// SkipMigrations leaves the schema to `assetregistry migrate`.
	SkipMigrations bool `yaml:"skip_migrations" env:"DB_SKIP_MIGRATIONS" env-default:"false"`
}

type KVTreeConfig struct {
	Directory string `yaml:"directory" env:"KVTREE_DIR" env-default:"./data/kvtree"`
}

type GitHubConfig struct {
	Token          string        `yaml:"token" env:"GITHUB_TOKEN"`
	BaseURL        string        `yaml:"base_url" env:"GITHUB_API_URL"`
	Owner          string        `yaml:"owner" env:"GITHUB_OWNER"`
	Repo           string        `yaml:"repo" env:"GITHUB_REPO"`
	Timeout        time.Duration `yaml:"timeout" env:"GITHUB_TIMEOUT" env-default:"15s"`
	CacheTTL       time.Duration `yaml:"cache_ttl" env:"GITHUB_CACHE_TTL" env-default:"60s"`
	CommitterName  string        `yaml:"committer_name" env:"GITHUB_COMMITTER_NAME"`
	CommitterEmail string        `yaml:"committer_email" env:"GITHUB_COMMITTER_EMAIL"`
}

type PolicyConfig struct {
	AllowedExtensions  []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" env-separator:","`
	AllowedRemoteHosts []string `yaml:"allowed_remote_hosts" env:"ALLOWED_REMOTE_HOSTS" env-separator:","`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"26214400"`
}

// URLConfig drives public URL resolution.
type URLConfig struct {
	CDNTemplate  string `yaml:"cdn_template" env:"CDN_TEMPLATE" env-default:"https://cdn.jsdelivr.net/gh/{owner}/{repo}@{branch}/{path}"`
	BlobBaseURL  string `yaml:"blob_base_url" env:"GITHUB_BLOB_BASE_URL" env-default:"https://github.com"`
	LocalBaseURL string `yaml:"local_base_url" env:"LOCAL_BASE_URL"`
	S3BaseURL    string `yaml:"s3_base_url" env:"S3_BASE_URL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads the YAML file at path and applies environment overrides. An
// empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage writes the supported environment variables to w.
func Usage(w io.Writer) error {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, text)
	return err
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("port is required")
	}
	if strings.TrimSpace(c.Auth.Header) == "" {
		return errors.New("auth header is required")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverJSON:
		if c.Store.JSON.S3.Bucket == "" && c.Store.JSON.Path == "" {
			return errors.New("json store needs a path or an s3 bucket")
		}
	case DriverPostgres:
		if c.Store.Postgres.URL == "" {
			return errors.New("database url is required when using postgres")
		}
	case DriverKVTree:
		if c.Store.KVTree.Directory == "" {
			return errors.New("kvtree directory is required")
		}
	default:
		return fmt.Errorf("unsupported store driver %q (use memory, json, postgres or kvtree)", c.Store.Driver)
	}

	if (c.GitHub.Owner == "") != (c.GitHub.Repo == "") {
		return errors.New("github owner and repo must be set together")
	}
	if c.GitHub.Timeout < 0 || c.GitHub.CacheTTL < 0 {
		return errors.New("github timeout and cache ttl must not be negative")
	}
	if c.Policy.MaxUploadBytes < 0 {
		return errors.New("max upload bytes must not be negative")
	}
	if _, err := c.resolverConfig(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds a text or JSON slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	out.Auth.Secret = mask(c.Auth.Secret)
	out.GitHub.Token = mask(c.GitHub.Token)
	out.Store.JSON.S3.SecretAccessKey = mask(c.Store.JSON.S3.SecretAccessKey)
	if c.Store.Postgres.URL != "" {
		if u, err := url.Parse(c.Store.Postgres.URL); err == nil {
			out.Store.Postgres.URL = u.Redacted()
		} else {
			out.Store.Postgres.URL = redacted
		}
	}
	out.Policy.AllowedExtensions = append([]string(nil), c.Policy.AllowedExtensions...)
	out.Policy.AllowedRemoteHosts = append([]string(nil), c.Policy.AllowedRemoteHosts...)
	return out
}

func (c *Config) resolverConfig() (urlstrategy.Config, error) {
	rc := urlstrategy.Config{
		CDNTemplate: c.URLs.CDNTemplate,
		BlobBaseURL: c.URLs.BlobBaseURL,
		DiskBaseURLs: map[assetregistry.Disk]string{
			assetregistry.DiskLocal: c.URLs.LocalBaseURL,
			assetregistry.DiskS3:    c.URLs.S3BaseURL,
		},
	}
	if _, err := urlstrategy.New(rc); err != nil {
		return rc, err
	}
	return rc, nil
}

// Runtime is a wired service together with the resources it owns.
type Runtime struct {
	Service assetregistry.Service
	Store   assetregistry.Repository
	GitHub  *github.Client
}

// Close releases the GitHub cache and the store.
func (r *Runtime) Close() error {
	if r.GitHub != nil {
		r.GitHub.Close()
	}
	if r.Store != nil {
		return r.Store.Close()
	}
	return nil
}

// BuildService opens the configured store and wires the service around it.
func (c *Config) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := c.OpenStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}
	rt := &Runtime{Store: store}

	rc, err := c.resolverConfig()
	if err != nil {
		rt.Close()
		return nil, err
	}
	resolver, err := urlstrategy.New(rc)
	if err != nil {
		rt.Close()
		return nil, err
	}

	options := []assetregistry.Option{
		assetregistry.WithRepository(store),
		assetregistry.WithResolver(resolver),
		assetregistry.WithLogger(logger),
		assetregistry.WithDefaults(c.GitHub.Owner, c.GitHub.Repo),
		assetregistry.WithPolicy(assetregistry.Policy{
			AllowedExtensions:  c.Policy.AllowedExtensions,
			AllowedRemoteHosts: c.Policy.AllowedRemoteHosts,
			MaxUploadBytes:     c.Policy.MaxUploadBytes,
		}),
	}

	if c.GitHub.Token != "" {
		client, err := github.New(github.Config{
			Token:          c.GitHub.Token,
			BaseURL:        c.GitHub.BaseURL,
			Timeout:        c.GitHub.Timeout,
			CacheTTL:       c.GitHub.CacheTTL,
			CommitterName:  c.GitHub.CommitterName,
			CommitterEmail: c.GitHub.CommitterEmail,
			Logger:         logger,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to build github client: %w", err)
		}
		rt.GitHub = client
		options = append(options, assetregistry.WithContentHost(client))
	} else {
		logger.Warn("GITHUB_TOKEN not set, github uploads are disabled")
	}

	svc, err := assetregistry.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// OpenStore opens the repository selected by Store.Driver.
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger) (assetregistry.Repository, error) {
	switch c.Store.Driver {
	case DriverMemory:
		return jsonfile.NewMemory(), nil

	case DriverJSON:
		var sink jsonfile.Sink
		if s3cfg := c.Store.JSON.S3; s3cfg.Bucket != "" {
			s3sink, err := jsonfile.NewS3Sink(ctx, jsonfile.S3Config{
				Region:                 s3cfg.Region,
				Bucket:                 s3cfg.Bucket,
				Key:                    s3cfg.Key,
				AccessKeyID:            s3cfg.AccessKeyID,
				SecretAccessKey:        s3cfg.SecretAccessKey,
				Endpoint:               s3cfg.Endpoint,
				UsePathStyle:           s3cfg.UsePathStyle,
				CreateBucketIfNotExist: s3cfg.CreateBucket,
			})
			if err != nil {
				return nil, err
			}
			sink = s3sink
		} else {
			fileSink, err := jsonfile.NewFileSink(c.Store.JSON.Path)
			if err != nil {
				return nil, err
			}
			sink = fileSink
		}
		return jsonfile.Open(ctx, sink)

	case DriverPostgres:
		pool, err := postgres.Connect(ctx, c.Store.Postgres.URL, c.Store.Postgres.Schema)
		if err != nil {
			return nil, err
		}
		if !c.Store.Postgres.SkipMigrations {
			if err := c.migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return postgres.NewWithPool(pool), nil

	case DriverKVTree:
		level, _ := c.Log.SlogLevel()
		return kvtree.Open(kvtree.Config{
			Directory: c.Store.KVTree.Directory,
			Logger:    logger,
			LogLevel:  level,
		})

	default:
		return nil, fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// MigrateDatabase creates the schema and applies the migrations.
func (c *Config) MigrateDatabase(ctx context.Context) error {
	if c.Store.Driver != DriverPostgres {
		return fmt.Errorf("migrations need the postgres driver, configured driver is %s", c.Store.Driver)
	}
	pool, err := postgres.Connect(ctx, c.Store.Postgres.URL, c.Store.Postgres.Schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	return c.migrate(ctx, pool)
}

func (c *Config) migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureSchema(ctx, pool, c.Store.Postgres.Schema); err != nil {
		return err
	}
	return postgres.Migrate(ctx, pool)
}
