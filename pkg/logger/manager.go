package logger

import (
	"encoding/xml"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgryski/go-rendezvous"
	"github.com/gofrs/flock"

	"github.com/newtron-network/karabo/internal/klog"
)

// DeviceStatus is one tracked device's last-known logger assignment and
// liveness, as polled from the owning logger server.
type DeviceStatus struct {
	DeviceID     string
	LoggerID     string
	LastUpdate   time.Time
	ExpectedRate time.Duration
}

// LoggerPoller is implemented by whatever transport reaches a logger
// server's slotGetLoggedDevices/equivalent. Manager stores it but does
// not call it; no implementation ships in this module.
type LoggerPoller interface {
	DeviceList(loggerID string) ([]string, error)
	LastUpdateOf(loggerID, deviceID string) (time.Time, error)
}

// Manager is Mode B: it assigns every tracked device to one of the
// configured logger server ids, persists the mapping, and drops the
// assignments of lagging devices on ReassignIfLagging.
//
// Assignment uses rendezvous (highest random weight) hashing over the
// configured logger ids rather than round-robin, so adding or removing
// a logger server only moves the devices whose rendezvous winner
// actually changed instead of reshuffling the whole table.
type Manager struct {
	mu         sync.Mutex
	loggers    []string
	rendezvous *rendezvous.Rendezvous
	assignment map[string]string // deviceId -> loggerId
	blockedIDs map[string]bool
	blockedCls map[string]bool

	mapPath string
	poller  LoggerPoller
}

// NewManager constructs a Manager over the given logger server ids.
func NewManager(loggerIDs []string, mapPath string, poller LoggerPoller) *Manager {
	m := &Manager{
		loggers:    append([]string(nil), loggerIDs...),
		assignment: make(map[string]string),
		blockedIDs: make(map[string]bool),
		blockedCls: make(map[string]bool),
		mapPath:    mapPath,
		poller:     poller,
	}
	m.rendezvous = rendezvous.New(m.loggers, hashString)
	return m
}

func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// BlockDevice excludes a device id from assignment.
func (m *Manager) BlockDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockedIDs[deviceID] = true
	delete(m.assignment, deviceID)
}

// BlockClass excludes an entire classId from assignment.
func (m *Manager) BlockClass(classID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockedCls[classID] = true
}

// Assign returns the logger id a device should report to, assigning it
// for the first time if unseen. Blocked devices/classes return "".
func (m *Manager) Assign(deviceID, classID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blockedIDs[deviceID] || m.blockedCls[classID] {
		return ""
	}
	if existing, ok := m.assignment[deviceID]; ok {
		return existing
	}
	if len(m.loggers) == 0 {
		return ""
	}
	chosen := m.rendezvous.Get(deviceID)
	m.assignment[deviceID] = chosen
	return chosen
}

// ReassignIfLagging checks the given device statuses against now; a
// device whose last update has lagged its expected cadence has its
// assignment dropped and is returned, so the next Assign picks a logger
// for it afresh (possibly the same one).
func (m *Manager) ReassignIfLagging(now time.Time, statuses []DeviceStatus) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reAdded []string
	for _, st := range statuses {
		if m.blockedIDs[st.DeviceID] {
			continue
		}
		if st.ExpectedRate <= 0 {
			continue
		}
		if now.Sub(st.LastUpdate) > st.ExpectedRate {
			delete(m.assignment, st.DeviceID)
			klog.WithField("deviceId", st.DeviceID).Warn("logger manager: device lagging, re-adding")
			reAdded = append(reAdded, st.DeviceID)
		}
	}
	return reAdded
}

// Snapshot returns the current deviceId -> loggerId assignment table.
func (m *Manager) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.assignment))
	for k, v := range m.assignment {
		out[k] = v
	}
	return out
}

type loggerMapXML struct {
	XMLName xml.Name        `xml:"loggerMap"`
	Entries []loggerMapEntry `xml:"entry"`
}

type loggerMapEntry struct {
	DeviceID string `xml:"deviceId,attr"`
	LoggerID string `xml:"loggerId,attr"`
}

// Persist writes the current assignment table to loggermap.xml under an
// exclusive advisory lock, truncate-then-write.
func (m *Manager) Persist() error {
	if m.mapPath == "" {
		return nil
	}
	snapshot := m.Snapshot()

	fl := flock.New(m.mapPath + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("logger manager: acquiring map lock: %w", err)
	}
	defer fl.Unlock()

	doc := loggerMapXML{}
	for deviceID, loggerID := range snapshot {
		doc.Entries = append(doc.Entries, loggerMapEntry{DeviceID: deviceID, LoggerID: loggerID})
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)

	f, err := os.Create(m.mapPath)
	if err != nil {
		return fmt.Errorf("logger manager: writing map: %w", err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Restore loads a prior loggermap.xml (if present) under a shared
// advisory lock.
func (m *Manager) Restore() error {
	if m.mapPath == "" {
		return nil
	}
	fl := flock.New(m.mapPath + ".lock")
	if err := fl.RLock(); err != nil {
		return fmt.Errorf("logger manager: acquiring map read lock: %w", err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(m.mapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var doc loggerMapXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range doc.Entries {
		m.assignment[e.DeviceID] = e.LoggerID
	}
	return nil
}
