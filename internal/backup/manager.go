package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jainuniversity/campus-portal/pkg/errors"
)

const encryptedSuffix = ".enc.gz"

// Manager snapshots the credential store into encrypted, compressed files.
type Manager struct {
	db            *sql.DB
	backupDir     string
	encryptionKey []byte
	retentionDays int
	log           *zap.Logger
	now           func() time.Time
}

// NewManager creates a new backup manager
func NewManager(db *sql.DB, backupDir string, encryptionKey string, retentionDays int, log *zap.Logger) (*Manager, error) {
	if encryptionKey == "" {
		return nil, fmt.Errorf("%w: backup encryption key is empty", errors.ErrBackupFailed)
	}
	if log == nil {
		log = zap.NewNop()
	}

	keyHash := sha256.Sum256([]byte(encryptionKey))

	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Manager{
		db:            db,
		backupDir:     backupDir,
		encryptionKey: keyHash[:],
		retentionDays: retentionDays,
		log:           log.Named("backup"),
		now:           time.Now,
	}, nil
}

// CreateBackup writes an encrypted snapshot and its checksum sidecar and
// returns the snapshot path.
func (m *Manager) CreateBackup(ctx context.Context) (string, error) {
	timestamp := m.now().UTC().Format("20060102_150405.000")
	backupPath := filepath.Join(m.backupDir, fmt.Sprintf("backup_%s.db", timestamp))

	// VACUUM INTO does not accept bound parameters.
	vacuumQuery := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(backupPath, "'", "''"))
	if _, err := m.db.ExecContext(ctx, vacuumQuery); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrBackupFailed, err)
	}
	defer os.Remove(backupPath)

	encryptedPath := backupPath + encryptedSuffix
	if err := m.encryptAndCompressFile(backupPath, encryptedPath); err != nil {
		os.Remove(encryptedPath)
		return "", fmt.Errorf("%w: failed to encrypt backup: %v", errors.ErrBackupFailed, err)
	}

	if err := m.createChecksumFile(encryptedPath); err != nil {
		return "", fmt.Errorf("%w: failed to create checksum: %v", errors.ErrBackupFailed, err)
	}

	m.log.Info("backup created", zap.String("path", encryptedPath))
	return encryptedPath, nil
}

// encryptAndCompressFile seals srcPath with AES-GCM and gzips the result
func (m *Manager) encryptAndCompressFile(srcPath, dstPath string) error {
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	gcm, err := m.gcm()
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	dstFile, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	gzWriter := gzip.NewWriter(dstFile)
	if _, err := gzWriter.Write(ciphertext); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush compressed data: %w", err)
	}

	return dstFile.Sync()
}

// Decrypt verifies backupPath and returns the plaintext database image
func (m *Manager) Decrypt(backupPath string) ([]byte, error) {
	if err := m.VerifyBackup(backupPath); err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	gzReader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}
	defer gzReader.Close()

	data, err := io.ReadAll(gzReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}

	gcm, err := m.gcm()
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: backup too short", errors.ErrDecryptionFailed)
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (m *Manager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// createChecksumFile creates SHA-256 checksum file
func (m *Manager) createChecksumFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(data)
	return os.WriteFile(filePath+".sha256", []byte(fmt.Sprintf("%x", hash)), 0600)
}

// VerifyBackup verifies backup integrity
func (m *Manager) VerifyBackup(backupPath string) error {
	storedChecksum, err := os.ReadFile(backupPath + ".sha256")
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	hash := sha256.Sum256(data)
	if fmt.Sprintf("%x", hash) != strings.TrimSpace(string(storedChecksum)) {
		return fmt.Errorf("%w: checksum mismatch", errors.ErrBackupFailed)
	}

	return nil
}

// CleanOldBackups removes backups older than the retention period and
// returns how many files were deleted.
func (m *Manager) CleanOldBackups() (int, error) {
	cutoffTime := m.now().AddDate(0, 0, -m.retentionDays)

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}

	deletedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			filePath := filepath.Join(m.backupDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				m.log.Warn("failed to delete old backup", zap.String("path", filePath), zap.Error(err))
				continue
			}
			deletedCount++
		}
	}

	if deletedCount > 0 {
		m.log.Info("cleaned old backups", zap.Int("count", deletedCount))
	}

	return deletedCount, nil
}

// StartAutomatedBackups starts automated backup scheduler
func (m *Manager) StartAutomatedBackups(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("automated backups started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			m.log.Info("stopping automated backups")
			return
		case <-ticker.C:
			if _, err := m.CreateBackup(ctx); err != nil {
				m.log.Error("scheduled backup failed", zap.Error(err))
			}
			if _, err := m.CleanOldBackups(); err != nil {
				m.log.Error("backup cleanup failed", zap.Error(err))
			}
		}
	}
}
