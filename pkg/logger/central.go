// Package logger implements Karabo's data/central logger: Mode A (a
// central log-topic sink that rotates flat files) and Mode B (a
// per-device logger assignment manager).
package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/hash"
)

// Record is one {timestamp, type, category, message} log line.
type Record struct {
	Timestamp time.Time
	Type      string
	Category  string
	Message   string
}

func (r Record) line() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\n",
		r.Timestamp.UTC().Format(time.RFC3339Nano), r.Type, r.Category, r.Message)
}

// CentralLogger is Mode A: it subscribes to the broker's log topic and
// appends every record to a size-rotated flat file. Rotation is driven
// by a maximum-size threshold (megabytes): closing the current file and
// incrementing an index persisted in LastIndex.txt.
type CentralLogger struct {
	directory       string
	maximumFileSize int64 // bytes
	flushInterval   time.Duration

	mu      sync.Mutex
	file    *os.File
	index   int
	written int64

	onOpenFailure func(error)
}

// NewCentralLogger constructs a CentralLogger rooted at directory. The
// sizeLimitMB argument is the configured maximumFileSize (megabytes);
// onOpenFailure is invoked (in addition to the returned error) when the
// directory or the current log file cannot be opened, because an open
// failure surfaces as a device ERROR transition + unacknowledgeable
// alarm, not only as a Go error the caller handles inline.
func NewCentralLogger(directory string, sizeLimitMB int, flushInterval time.Duration, onOpenFailure func(error)) (*CentralLogger, error) {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		err = fmt.Errorf("logger: creating directory: %w", err)
		if onOpenFailure != nil {
			onOpenFailure(err)
		}
		return nil, err
	}
	l := &CentralLogger{
		directory:       directory,
		maximumFileSize: int64(sizeLimitMB) * 1024 * 1024,
		flushInterval:   flushInterval,
		onOpenFailure:   onOpenFailure,
	}
	idx, err := l.readLastIndex()
	if err != nil {
		idx = 0
	}
	l.index = idx
	if err := l.openCurrent(); err != nil {
		if onOpenFailure != nil {
			onOpenFailure(err)
		}
		return nil, err
	}
	return l, nil
}

func (l *CentralLogger) lastIndexPath() string { return filepath.Join(l.directory, "LastIndex.txt") }
func (l *CentralLogger) pathFor(index int) string {
	return filepath.Join(l.directory, fmt.Sprintf("log_%d.txt", index))
}

func (l *CentralLogger) readLastIndex() (int, error) {
	data, err := os.ReadFile(l.lastIndexPath())
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (l *CentralLogger) writeLastIndex() error {
	return os.WriteFile(l.lastIndexPath(), []byte(strconv.Itoa(l.index)+"\n"), 0o644)
}

func (l *CentralLogger) openCurrent() error {
	f, err := os.OpenFile(l.pathFor(l.index), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logger: opening %s: %w", l.pathFor(l.index), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.written = info.Size()
	return l.writeLastIndex()
}

// AppendBatch writes every record in a single log-topic message body,
// rotating first if the next write would exceed maximumFileSize.
func (l *CentralLogger) AppendBatch(records []Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range records {
		line := r.line()
		if l.maximumFileSize > 0 && l.written+int64(len(line)) > l.maximumFileSize {
			if err := l.rotate(); err != nil {
				return err
			}
		}
		n, err := l.file.WriteString(line)
		if err != nil {
			return fmt.Errorf("logger: writing record: %w", err)
		}
		l.written += int64(n)
	}
	return nil
}

func (l *CentralLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.index++
	return l.openCurrent()
}

// Flush fsyncs the current file; intended to be driven by a ticker at
// flushInterval: a flush timer fires every flushInterval seconds.
func (l *CentralLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Run drives the flush timer until ctx is canceled.
func (l *CentralLogger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				klog.WithField("error", err).Warn("central logger: flush failed")
			}
		}
	}
}

func (l *CentralLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// HandleLogTopicMessage decodes one broker log-topic body (a `messages`
// Hash sequence, one sub-Hash per record) into Records and appends them.
func (l *CentralLogger) HandleLogTopicMessage(body *hash.Hash) error {
	messages, err := body.GetHash("messages")
	if err != nil {
		return nil
	}
	var records []Record
	for _, key := range messages.Keys() {
		entry, err := messages.GetHash(key)
		if err != nil {
			continue
		}
		typ, _ := entry.GetString("type")
		category, _ := entry.GetString("category")
		message, _ := entry.GetString("message")
		ts := time.Now().UTC()
		if v, ok := entry.Get("timestamp"); ok {
			if t, ok := v.(time.Time); ok {
				ts = t
			}
		}
		records = append(records, Record{Timestamp: ts, Type: typ, Category: category, Message: message})
	}
	if len(records) == 0 {
		return nil
	}
	return l.AppendBatch(records)
}
