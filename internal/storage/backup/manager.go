package backup

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var magicBytes = []byte("ASBACKUP")

const (
	filePrefix    = "backup-"
	fileExtension = ".bak"
	checksumSize  = sha256.Size
	headerVersion = 1
	maxHeaderSize = 64 << 10

	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
)

var (
	ErrInvalidMagic     = errors.New("backup: invalid magic bytes")
	ErrChecksumMismatch = errors.New("backup: checksum mismatch")
	ErrNoBackups        = errors.New("backup: no backups available")
)

// Source produces a backend backup stream.
type Source interface {
	Backup(ctx context.Context, w io.Writer) (uint64, error)
}

type fileHeader struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	Backend   string `json:"backend"`
}

// Config configures the backup manager.
type Config struct {
	Dir string

	// Backend is recorded in each file header.
	Backend string

	RetentionCount int
	RetentionDays  int

	Logger *slog.Logger
}

// DefaultConfig returns the default backup configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Manager creates, verifies and prunes backup files.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates the backup directory if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("backup: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "backup"),
		now:    time.Now,
	}, nil
}

// Info contains metadata about a backup file.
type Info struct {
	ID        string `json:"id"`
	Backend   string `json:"backend,omitempty"`
	Since     uint64 `json:"since,omitempty"` // set by Create only
	CreatedAt int64  `json:"created_at"`
	Size      int64  `json:"size"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum,omitempty"`
}

// Create streams a backup of src into a new file and prunes old ones.
func (m *Manager) Create(ctx context.Context, src Source) (*Info, error) {
	now := m.now()
	id := m.generateID(now)

	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("backup: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	buf := bufio.NewWriter(io.MultiWriter(file, hash))

	fail := func(msg string, err error) (*Info, error) {
		file.Close()
		return nil, fmt.Errorf("backup: %s: %w", msg, err)
	}

	hdr := fileHeader{
		Version:   headerVersion,
		CreatedAt: now.UnixMilli(),
		Backend:   m.cfg.Backend,
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return fail("marshal header", err)
	}

	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	for _, part := range [][]byte{magicBytes, hdrLen[:], hdrJSON} {
		if _, err := buf.Write(part); err != nil {
			return fail("write header", err)
		}
	}

	since, err := src.Backup(ctx, buf)
	if err != nil {
		return fail("write payload", err)
	}
	if err := buf.Flush(); err != nil {
		return fail("flush", err)
	}

	// The trailer is not part of the hash.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		return fail("write checksum", err)
	}
	if err := file.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("backup: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("backup: rename: %w", err)
	}

	info := &Info{
		ID:        id,
		Backend:   m.cfg.Backend,
		Since:     since,
		CreatedAt: hdr.CreatedAt,
		Size:      stat.Size(),
		Path:      finalPath,
		Checksum:  hex.EncodeToString(sum),
	}

	if err := m.Prune(); err != nil {
		m.logger.Warn("prune backups failed", "error", err)
	}
	return info, nil
}

// Open verifies a backup file and returns a reader over its payload.
// The caller closes the reader.
func (m *Manager) Open(path string) (*Info, io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, payload, err := verify(f, path)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return info, readCloser{Reader: payload, Closer: f}, nil
}

// Verify checks the checksum and header of a backup file.
func (m *Manager) Verify(path string) (*Info, error) {
	info, rc, err := m.Open(path)
	if err != nil {
		return nil, err
	}
	rc.Close()
	return info, nil
}

// Latest returns the newest backup that verifies. Corrupt files are
// skipped.
func (m *Manager) Latest() (*Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	for i := len(infos) - 1; i >= 0; i-- {
		info, err := m.Verify(infos[i].Path)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			m.logger.Warn("skipping corrupt backup", "path", infos[i].Path, "error", err)
			continue
		}
		return nil, err
	}
	return nil, ErrNoBackups
}

type readCloser struct {
	io.Reader
	io.Closer
}

func verify(f *os.File, path string) (*Info, io.Reader, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+4+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	prefix := make([]byte, len(magicBytes)+4)
	if _, err := f.ReadAt(prefix, 0); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(prefix[:len(magicBytes)], magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	hdrLen := int64(binary.BigEndian.Uint32(prefix[len(magicBytes):]))
	payloadStart := int64(len(prefix)) + hdrLen
	if hdrLen == 0 || hdrLen > maxHeaderSize || payloadStart > dataLen {
		return nil, nil, fmt.Errorf("backup: invalid header length %d", hdrLen)
	}
	hdrJSON := make([]byte, hdrLen)
	if _, err := f.ReadAt(hdrJSON, int64(len(prefix))); err != nil {
		return nil, nil, err
	}

	var hdr fileHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("backup: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, fmt.Errorf("backup: unsupported version %d", hdr.Version)
	}

	info := &Info{
		ID:        strings.TrimSuffix(filepath.Base(path), fileExtension),
		Backend:   hdr.Backend,
		CreatedAt: hdr.CreatedAt,
		Size:      stat.Size(),
		Path:      path,
		Checksum:  hex.EncodeToString(expected),
	}
	return info, io.NewSectionReader(f, payloadStart, dataLen-payloadStart), nil
}

// List lists backup files oldest first (metadata only).
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	sort.Strings(paths)

	var infos []*Info
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:        strings.TrimSuffix(filepath.Base(p), fileExtension),
			Path:      p,
			Size:      stat.Size(),
			CreatedAt: stat.ModTime().UnixMilli(),
		})
	}
	return infos, nil
}

// Prune applies the retention policy and deletes old backups. The newest
// backup is always kept.
func (m *Manager) Prune() error {
	infos, err := m.List()
	if err != nil {
		return err
	}
	if len(infos) <= 1 {
		return nil
	}

	keep := make(map[string]struct{}, len(infos))

	if m.cfg.RetentionCount > 0 {
		start := max(len(infos)-m.cfg.RetentionCount, 0)
		for _, info := range infos[start:] {
			keep[info.Path] = struct{}{}
		}
	}

	if m.cfg.RetentionDays > 0 {
		cutoff := m.now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour).UnixMilli()
		for _, info := range infos {
			if info.CreatedAt > cutoff {
				keep[info.Path] = struct{}{}
			}
		}
	}

	keep[infos[len(infos)-1].Path] = struct{}{}

	var errs []error
	for _, info := range infos {
		if _, ok := keep[info.Path]; ok {
			continue
		}
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		m.logger.Debug("pruned backup", "id", info.ID)
	}
	return errors.Join(errs...)
}

// Run creates a backup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration, src Source) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			info, err := m.Create(ctx, src)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
				continue
			}
			m.logger.Info("backup created",
				"id", info.ID,
				"size", info.Size,
				"duration", time.Since(start))
		}
	}
}

func (m *Manager) generateID(t time.Time) string {
	ts := t.UTC().Format("20060102T150405")
	seq := 1

	entries, _ := os.ReadDir(m.cfg.Dir)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, filePrefix+ts+"-") && strings.HasSuffix(name, fileExtension) {
			seq++
		}
	}

	return fmt.Sprintf("%s%s-%04d", filePrefix, ts, seq)
}
