// Package session persists CLI conversation transcripts under the user's
// home directory as JSON Lines, one file per session.
package session

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// Store manages transcript persistence under a base directory,
// ~/.azoai by default.
type Store struct {
	// BaseDir is the root for all persisted data.
	BaseDir string
}

// NewStore constructs a Store rooted at the default base directory.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".azoai")}, nil
}

// ProjectHash returns a stable short hash for a workspace path, used to key
// the per-project last-session marker.
func ProjectHash(path string) string {
	clean := filepath.Clean(path)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:8])
}

// TranscriptPath returns the JSONL path for a session transcript.
func (s *Store) TranscriptPath(sessionID string) string {
	return filepath.Join(s.BaseDir, "transcripts", sessionID+".jsonl")
}

// Append writes one message to the session transcript. Transcripts may hold
// credentialed conversation content, so files are created 0600.
func (s *Store) Append(sessionID string, message messages.Message) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	path := s.TranscriptPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	if err := messages.NewWriter(file).Write(message); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// Load replays every message stored for a session, in append order.
// Malformed lines are skipped so replay survives partial writes.
func (s *Store) Load(sessionID string) ([]messages.Message, error) {
	file, err := os.Open(s.TranscriptPath(sessionID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var replayed []messages.Message
	scanner := bufio.NewScanner(file)
	// Large assistant replies can exceed the default scanner token size.
	const maxLineSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		message, err := messages.Decode([]byte(line))
		if err != nil {
			logging.Debug("session", "skipping malformed transcript line: %v", err)
			continue
		}
		replayed = append(replayed, message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return replayed, nil
}

// SaveLast records the most recent session id for a project directory.
func (s *Store) SaveLast(projectDir string, sessionID string) error {
	path := s.lastSessionPath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("write last session: %w", err)
	}
	return nil
}

// LoadLast returns the most recent session id recorded for a project
// directory.
func (s *Store) LoadLast(projectDir string) (string, error) {
	raw, err := os.ReadFile(s.lastSessionPath(projectDir))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Store) lastSessionPath(projectDir string) string {
	return filepath.Join(s.BaseDir, "projects", ProjectHash(projectDir), "last_session")
}

// List returns stored session ids sorted by modification time, newest first.
func (s *Store) List(limit int) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, "transcripts"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type entry struct {
		Name string
		Time time.Time
	}

	var list []entry
	for _, item := range entries {
		if item.IsDir() {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(item.Name(), filepath.Ext(item.Name()))
		list = append(list, entry{Name: name, Time: info.ModTime()})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Time.After(list[j].Time)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	result := make([]string, 0, len(list))
	for _, item := range list {
		result = append(result, item.Name)
	}
	return result, nil
}
