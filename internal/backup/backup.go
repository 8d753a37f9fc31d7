// Package backup takes encrypted snapshots of the grocery database and keeps
// them in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/grocerylist/internal/config"
	"github.com/dukerupert/grocerylist/internal/database"
	"github.com/dukerupert/grocerylist/internal/metrics"
)

// ErrNotConfigured is returned when bucket or credentials are missing.
var ErrNotConfigured = errors.New("backup not configured: S3 bucket and credentials are required")

const timestampLayout = "2006-01-02T150405.000Z"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Backup describes one stored snapshot.
type Backup struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager manages encrypted backups to S3-compatible storage.
type Manager struct {
	cfg    config.BackupConfig
	conn   *database.Conn
	client s3Client
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. Without bucket and credentials every
// operation returns ErrNotConfigured.
func NewManager(cfg config.BackupConfig, conn *database.Conn, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{cfg: cfg, conn: conn, logger: logger}
	if cfg.Enabled() {
		m.client = newS3Client(cfg)
	}
	return m
}

func newS3Client(cfg config.BackupConfig) *s3.Client {
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

func (m *Manager) keyPrefix() string {
	return strings.Trim(m.cfg.Prefix, "/") + "/backup-"
}

// RunNow snapshots the open database, encrypts the snapshot and uploads it.
func (m *Manager) RunNow(ctx context.Context, passphrase string) (b Backup, err error) {
	defer func() { metrics.ObserveBackup(err) }()

	if m.client == nil {
		return Backup{}, ErrNotConfigured
	}
	if passphrase == "" {
		return Backup{}, ErrPassphraseRequired
	}

	tmpDir, err := os.MkdirTemp("", "grocerylist-backup-*")
	if err != nil {
		return Backup{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if err := m.conn.Snapshot(ctx, snapshot); err != nil {
		return Backup{}, err
	}

	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return Backup{}, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plaintext, passphrase)
	if err != nil {
		return Backup{}, fmt.Errorf("encrypt: %w", err)
	}

	now := time.Now().UTC()
	b = Backup{
		Key:       m.keyPrefix() + now.Format(timestampLayout) + ".db.enc",
		Size:      int64(len(sealed)),
		CreatedAt: now,
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(b.Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(b.Size),
	})
	if err != nil {
		return Backup{}, fmt.Errorf("upload to s3: %w", err)
	}

	m.logger.Info("backup uploaded", "key", b.Key, "bytes", b.Size)
	return b, nil
}

// List returns stored backups, newest first.
func (m *Manager) List(ctx context.Context) ([]Backup, error) {
	if m.client == nil {
		return nil, ErrNotConfigured
	}

	var out []Backup
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.keyPrefix()),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			b := Backup{Key: key, Size: aws.ToInt64(obj.Size), CreatedAt: createdAt(key)}
			if b.CreatedAt.IsZero() && obj.LastModified != nil {
				b.CreatedAt = obj.LastModified.UTC()
			}
			out = append(out, b)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// createdAt recovers the timestamp embedded in a backup key, or the zero
// time if the key was not written by RunNow.
func createdAt(key string) time.Time {
	name := strings.TrimSuffix(strings.TrimPrefix(path.Base(key), "backup-"), ".db.enc")
	t, err := time.Parse(timestampLayout, name)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Cleanup deletes backups older than retention and returns how many were
// removed. A non-positive retention keeps everything.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if m.client == nil {
		return 0, ErrNotConfigured
	}
	if retention <= 0 {
		return 0, nil
	}

	backups, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-retention)
	deleted := 0
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(b.Key),
		}); err != nil {
			m.logger.Warn("delete old backup", "key", b.Key, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info("old backups removed", "count", deleted)
	}
	return deleted, nil
}

// Restore downloads and decrypts a backup, checks its integrity and replaces
// the database file at dstPath. Nothing may hold dstPath open.
func (m *Manager) Restore(ctx context.Context, key, passphrase, dstPath string) error {
	if m.client == nil {
		return ErrNotConfigured
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read download: %w", err)
	}
	plaintext, err := Open(sealed, passphrase)
	if err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "grocerylist-restore-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	restored := filepath.Join(tmpDir, "restored.db")
	if err := os.WriteFile(restored, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(ctx, restored); err != nil {
		return err
	}

	// Stage beside the target so the final rename stays on one filesystem.
	staged := dstPath + ".restore"
	if err := os.WriteFile(staged, plaintext, 0600); err != nil {
		return fmt.Errorf("stage restored db: %w", err)
	}
	os.Remove(dstPath + "-wal")
	os.Remove(dstPath + "-shm")
	if err := os.Rename(staged, dstPath); err != nil {
		os.Remove(staged)
		return fmt.Errorf("replace database: %w", err)
	}

	m.logger.Info("backup restored", "key", key, "path", dstPath)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	conn := database.New(path, nil)
	if err := conn.Open(ctx); err != nil {
		return err
	}
	defer conn.Close()

	row, found, err := conn.QueryOne(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if !found || row["integrity_check"] != "ok" {
		return fmt.Errorf("integrity check failed: %v", row["integrity_check"])
	}
	return nil
}

// Start runs a backup and a retention sweep every interval until ctx is
// cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context, interval time.Duration, passphrase string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil || interval <= 0 || m.done != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx, passphrase); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
					continue
				}
				if _, err := m.Cleanup(ctx, m.cfg.Retention); err != nil {
					m.logger.Error("backup cleanup failed", "error", err)
				}
			}
		}
	}(m.done)
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
