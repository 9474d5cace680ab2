// Package txlog implements the append-only durability log as one JSON
// record per line. Appends are serialized and optionally fsynced; replay
// streams the file in order and truncates a corrupt tail, which is what a
// crash mid-append leaves behind.
package txlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"curricula/application/ports"
)

const logFileName = "transactions.log"

// FileLog is a file-backed ports.TransactionLog
type FileLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	fsync  bool
	seq    uint64
	size   int64
	logger *zap.Logger
}

// Open creates or opens the log under dir. The sequence counter resumes
// from the last valid entry.
func Open(dir string, fsync bool, logger *zap.Logger) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(dir, logFileName)

	l := &FileLog{path: path, fsync: fsync, logger: logger}
	if err := l.recover(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	return l, nil
}

// recover scans the existing file, counts valid entries, and truncates
// anything after the last parseable line.
func (l *FileLog) recover() error {
	file, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scanning log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)

	var validBytes int64
	for scanner.Scan() {
		line := scanner.Bytes()
		var entry ports.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			l.logger.Warn("truncating corrupt log tail",
				zap.Uint64("last_valid_seq", l.seq),
				zap.Int64("valid_bytes", validBytes))
			break
		}
		l.seq = entry.Seq
		l.size++
		validBytes += int64(len(line)) + 1
	}
	if err := scanner.Err(); err != nil {
		l.logger.Warn("log scan stopped early, truncating tail", zap.Error(err))
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}
	if info.Size() > validBytes {
		if err := os.Truncate(l.path, validBytes); err != nil {
			return fmt.Errorf("truncating corrupt tail: %w", err)
		}
	}
	return nil
}

// Append durably records one entry. The entry's sequence number is assigned
// here; callers leave Seq zero.
func (l *FileLog) Append(ctx context.Context, entry ports.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Seq = l.seq + 1
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding log entry: %w", err)
	}

	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("writing log entry: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing log entry: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flushing log: %w", err)
	}
	if l.fsync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("syncing log: %w", err)
		}
	}

	l.seq = entry.Seq
	l.size++
	return nil
}

// Replay streams entries in append order
func (l *FileLog) Replay(ctx context.Context, fn func(entry ports.LogEntry) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening log for replay: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var entry ports.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// recover() truncated the tail at open; a parse failure here
			// means the file changed underneath us.
			return fmt.Errorf("corrupt log entry during replay: %w", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Size returns the number of entries currently in the log
func (l *FileLog) Size() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size, nil
}

// LastSeq returns the sequence number of the last appended entry
func (l *FileLog) LastSeq() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq, nil
}

// SyncSeq advances the sequence counter to at least seq
func (l *FileLog) SyncSeq(seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.seq {
		l.seq = seq
	}
	return nil
}

// Truncate drops all entries up to and including seq by rewriting the file.
// Called after a snapshot covers those entries.
func (l *FileLog) Truncate(ctx context.Context, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return err
	}

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating truncate temp file: %w", err)
	}

	src, err := os.Open(l.path)
	if err != nil {
		tmp.Close()
		return err
	}

	kept := int64(0)
	writer := bufio.NewWriter(tmp)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		var entry ports.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			break
		}
		if entry.Seq <= seq {
			continue
		}
		writer.Write(scanner.Bytes())
		writer.WriteByte('\n')
		kept++
	}
	src.Close()

	if err := writer.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("swapping truncated log: %w", err)
	}

	// Reopen the append handle on the new file
	l.file.Close()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopening log after truncate: %w", err)
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	l.size = kept

	l.logger.Info("log truncated", zap.Uint64("through_seq", seq), zap.Int64("entries_kept", kept))
	return nil
}

// Close flushes and releases the underlying file
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return err
	}
	if l.fsync {
		if err := l.file.Sync(); err != nil {
			return err
		}
	}
	return l.file.Close()
}
