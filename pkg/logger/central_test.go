package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/karabo/pkg/hash"
)

func TestCentralLoggerAppendsAndRotates(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCentralLogger(dir, 0, time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	// Force rotation by sizing the limit to a single short record.
	l.maximumFileSize = 1

	if err := l.AppendBatch([]Record{
		{Timestamp: time.Now(), Type: "INFO", Category: "device", Message: "first"},
		{Timestamp: time.Now(), Type: "INFO", Category: "device", Message: "second"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if l.index == 0 {
		t.Fatalf("expected at least one rotation to have occurred")
	}

	data, err := os.ReadFile(filepath.Join(dir, "LastIndex.txt"))
	if err != nil {
		t.Fatalf("expected LastIndex.txt to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected LastIndex.txt to be non-empty")
	}
}

func TestHandleLogTopicMessageAppendsRecords(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCentralLogger(dir, 10, time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	body := hash.New()
	messages := hash.New()
	m0 := hash.New()
	m0.Set("type", "INFO")
	m0.Set("category", "device")
	m0.Set("message", "hello")
	messages.Set("0", m0)
	body.Set("messages", messages)

	if err := l.HandleLogTopicMessage(body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "log_0.txt"))
	if err != nil {
		t.Fatalf("expected log_0.txt to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log_0.txt to contain the appended record")
	}
}

func TestOnOpenFailureInvokedOnBadDirectory(t *testing.T) {
	// A path whose parent cannot be created (root-owned /proc) should
	// surface via onOpenFailure rather than panicking.
	called := false
	_, err := NewCentralLogger("/proc/1/nonexistent-karabo-logger", 10, time.Second, func(error) {
		called = true
	})
	if err == nil {
		t.Fatalf("expected an error for an unwritable directory")
	}
	if !called {
		t.Fatalf("expected onOpenFailure to be invoked for an unwritable directory")
	}
}
