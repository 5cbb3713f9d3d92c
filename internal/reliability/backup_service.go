// Package reliability backs the databases up and keeps them compact.
package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/reporting"
	"github.com/rs/zerolog"
)

const (
	backupPrefix    = "frontier-backup-"
	backupSuffix    = ".tar.gz"
	backupTimestamp = "2006-01-02-150405"
	remoteDir       = "backups"
	metadataFile    = "backup-metadata.json"

	// minBackupsToKeep survive rotation regardless of age
	minBackupsToKeep = 3
)

// ObjectStore is remote storage for archives. reporting.R2Client satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]reporting.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// BackupMetadata is stored inside every archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database in the archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes a stored archive
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupService snapshots the databases into tar.gz archives under a local
// directory and, when a store is set, uploads them.
type BackupService struct {
	databases []*database.DB
	dir       string
	store     ObjectStore // Optional
	now       func() time.Time
	log       zerolog.Logger
}

// NewBackupService creates a backup service writing archives to dir. Nil databases are skipped.
func NewBackupService(databases []*database.DB, dir string, log zerolog.Logger) *BackupService {
	var dbs []*database.DB
	for _, db := range databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return &BackupService{
		databases: dbs,
		dir:       dir,
		now:       time.Now,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// SetObjectStore enables uploads
func (s *BackupService) SetObjectStore(store ObjectStore) {
	s.store = store
}

// CreateBackup writes an archive of every database and uploads it when a store is
// set. It returns the local archive path.
func (s *BackupService) CreateBackup(ctx context.Context) (string, error) {
	startTime := time.Now()
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	stagingDir, err := os.MkdirTemp(s.dir, "staging-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{Timestamp: s.now().UTC()}
	files := make([]string, 0, len(s.databases)+1)

	for _, db := range s.databases {
		filename := db.Name() + ".db"
		target := filepath.Join(stagingDir, filename)

		// VACUUM INTO produces a consistent copy while the database stays online
		if _, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
			return "", fmt.Errorf("failed to snapshot %s: %w", db.Name(), err)
		}

		info, err := os.Stat(target)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s snapshot: %w", db.Name(), err)
		}
		checksum, err := calculateChecksum(target)
		if err != nil {
			return "", fmt.Errorf("failed to checksum %s: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	metaBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stagingDir, metadataFile), metaBytes, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFile)

	var archive bytes.Buffer
	if err := writeArchive(&archive, stagingDir, files); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archiveName := backupPrefix + metadata.Timestamp.Format(backupTimestamp) + backupSuffix
	archivePath := filepath.Join(s.dir, archiveName)
	if err := os.WriteFile(archivePath, archive.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	if s.store != nil {
		key := path.Join(remoteDir, archiveName)
		if err := s.store.Upload(ctx, key, archive.Bytes(), "application/gzip"); err != nil {
			return archivePath, fmt.Errorf("failed to upload backup: %w", err)
		}
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int("bytes", archive.Len()).
		Bool("uploaded", s.store != nil).
		Msg("Backup completed")

	return archivePath, nil
}

// ListLocalBackups lists archives in the backup directory, newest first
func (s *BackupService) ListLocalBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseBackupName(e.Name())
		if !ok {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		backups = append(backups, BackupInfo{Filename: e.Name(), Timestamp: ts, SizeBytes: size})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// ListRemoteBackups lists uploaded archives, newest first
func (s *BackupService) ListRemoteBackups(ctx context.Context) ([]BackupInfo, error) {
	if s.store == nil {
		return nil, nil
	}
	objects, err := s.store.List(ctx, remoteDir+"/"+backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote backups: %w", err)
	}
	var backups []BackupInfo
	for _, obj := range objects {
		ts, ok := parseBackupName(path.Base(obj.Key))
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Unrecognized object in backup prefix")
			continue
		}
		backups = append(backups, BackupInfo{Filename: path.Base(obj.Key), Timestamp: ts, SizeBytes: obj.Size})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays, locally and remotely.
// The newest minBackupsToKeep always survive; retentionDays of 0 keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0

	local, err := s.ListLocalBackups()
	if err != nil {
		return 0, fmt.Errorf("failed to list local backups: %w", err)
	}
	for _, b := range expired(local, cutoff) {
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	remote, err := s.ListRemoteBackups(ctx)
	if err != nil {
		return deleted, err
	}
	for _, b := range expired(remote, cutoff) {
		if err := s.store.Delete(ctx, path.Join(remoteDir, b.Filename)); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old remote backup")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("retention_days", retentionDays).Msg("Backup rotation completed")
	return deleted, nil
}

// expired returns the backups past cutoff, sparing the newest minBackupsToKeep.
func expired(newestFirst []BackupInfo, cutoff time.Time) []BackupInfo {
	var out []BackupInfo
	for i, b := range newestFirst {
		if i < minBackupsToKeep {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	ts, err := time.Parse(backupTimestamp, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func sortNewestFirst(backups []BackupInfo) {
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
}

// calculateChecksum calculates SHA256 checksum of a file
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeArchive writes a tar.gz of the named files in sourceDir to w
func writeArchive(w io.Writer, sourceDir string, names []string) error {
	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(sourceDir, name))
		if err != nil {
			return err
		}
		header := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: time.Now(),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tarWriter.Write(data); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}
