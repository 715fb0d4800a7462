// Package backup exports the remote dataset to timestamped JSON files on
// disk, optionally mirroring each export to S3-compatible storage.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter produces the dataset snapshot, normally the remote store's
// backup RPC.
type Exporter interface {
	BackupData(ctx context.Context) (json.RawMessage, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	Dir       string
	KeepCount int
	S3        S3Config
}

// Result describes one completed export.
type Result struct {
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Uploaded  bool      `json:"uploaded"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager runs exports and prunes old ones.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	exporter Exporter
	client   s3Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a backup manager. S3 mirroring stays off unless the
// bucket and both keys are configured.
func NewManager(cfg Config, exporter Exporter, logger *slog.Logger) *Manager {
	if cfg.KeepCount <= 0 {
		cfg.KeepCount = 30
	}
	m := &Manager{
		cfg:      cfg,
		exporter: exporter,
		logger:   logger,
		now:      time.Now,
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// UploadEnabled reports whether exports also go to S3.
func (m *Manager) UploadEnabled() bool {
	return m.client != nil
}

// Run fetches a fresh snapshot, writes it under the backup directory and
// mirrors it to S3 when configured. A failed upload does not fail the
// export; the local file is the deliverable.
func (m *Manager) Run(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.exporter.BackupData(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetching backup snapshot: %w", err)
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating backup dir: %w", err)
	}

	now := m.now().UTC()
	filename := fmt.Sprintf("itshard-backup-%s.json", now.Format("2006-01-02T150405Z"))
	path := filepath.Join(m.cfg.Dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("writing backup file: %w", err)
	}

	result := Result{
		Filename:  filename,
		SizeBytes: int64(len(data)),
		CreatedAt: now,
	}

	if m.client != nil {
		if err := m.upload(ctx, filename, data); err != nil {
			m.logger.Warn("backup upload failed, local copy kept", "file", filename, "error", err)
		} else {
			result.Uploaded = true
		}
	}

	if err := m.prune(); err != nil {
		m.logger.Warn("pruning old backups failed", "error", err)
	}

	m.logger.Info("backup complete", "file", filename, "bytes", result.SizeBytes, "uploaded", result.Uploaded)
	return result, nil
}

// upload pushes one export to the bucket, retrying transient failures with
// backoff.
func (m *Manager) upload(ctx context.Context, key string, data []byte) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(m.cfg.S3.Bucket),
			Key:           aws.String(key),
			Body:          strings.NewReader(string(data)),
			ContentType:   aws.String("application/json"),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// List returns completed exports, newest first.
func (m *Manager) List() ([]Result, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup dir: %w", err)
	}

	var results []Result
	for _, entry := range entries {
		if entry.IsDir() || !isBackupFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		results = append(results, Result{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Filename > results[j].Filename
	})
	return results, nil
}

// Open returns the contents of one export by filename.
func (m *Manager) Open(filename string) ([]byte, error) {
	if !isBackupFile(filename) || filepath.Base(filename) != filename {
		return nil, fmt.Errorf("not a backup file: %s", filename)
	}
	return os.ReadFile(filepath.Join(m.cfg.Dir, filename))
}

// prune deletes the oldest exports beyond the keep count.
func (m *Manager) prune() error {
	results, err := m.List()
	if err != nil {
		return err
	}
	for _, old := range results[min(len(results), m.cfg.KeepCount):] {
		if err := os.Remove(filepath.Join(m.cfg.Dir, old.Filename)); err != nil {
			return err
		}
		m.logger.Debug("pruned old backup", "file", old.Filename)
	}
	return nil
}

func isBackupFile(name string) bool {
	return strings.HasPrefix(name, "itshard-backup-") && strings.HasSuffix(name, ".json")
}
