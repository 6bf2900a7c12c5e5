// Package alarm implements Karabo's alarm service: a per-device alarm
// tree with an acknowledgement workflow, row-update fanout, and XML
// persistence.
package alarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/hash"
)

// Severity mirrors validator.AlarmSeverity without importing it, since
// the alarm service is the persistence/ack layer, not the evaluator.
type Severity string

const (
	SeverityWarn  Severity = "WARN"
	SeverityAlarm Severity = "ALARM"
)

// UpdateType names the row-update kinds emitted on signalAlarmServiceUpdate.
type UpdateType string

const (
	UpdateAdd              UpdateType = "add"
	UpdateUpdate           UpdateType = "update"
	UpdateAcknowledgeable  UpdateType = "acknowledgeable"
	UpdateRemove           UpdateType = "remove"
	UpdateRefuseAck        UpdateType = "refuseAcknowledgement"
	UpdateInit             UpdateType = "init"
)

// Entry is one alarm condition at deviceId.property.alarmType.
type Entry struct {
	ID                 uint64
	DeviceID           string
	Property           string
	AlarmType          string
	Severity           Severity
	Description        string
	FirstOccurrence    time.Time
	MostRecent         time.Time
	NeedsAcknowledging bool
	Acknowledgeable    bool
	Acknowledged       bool
}

func entryKey(deviceID, property, alarmType string) string {
	return deviceID + "." + property + "." + alarmType
}

// Delta mirrors validator.Delta's shape for the slotUpdateAlarms call:
// ToAdd/ToClear keyed by "property.alarmType" (deviceId is supplied
// separately, matching the slotUpdateAlarms(deviceId, ...) call shape).
type Delta struct {
	ToAdd   map[string]AddSpec
	ToClear []string // "property.alarmType" keys leaving their range
}

// AddSpec is the payload for one newly-crossed or still-active alarm.
type AddSpec struct {
	Severity           Severity
	Description        string
	NeedsAcknowledging bool
}

// Service owns the alarm tree for every device it tracks. Entries live
// in an arena (a slice indexed by id) rather than behind raw pointers,
// per the Design Notes' "never expose raw node addresses across
// mutations" guidance — the id is the only handle either direction of
// the forward/reverse index needs.
type Service struct {
	InstanceID string
	ss         *fabric.SignalSlotable

	mu      sync.RWMutex // m_alarmChangeMutex: readers concurrent, writers exclusive
	byKey   map[string]*Entry
	arena   []*Entry // index i holds the entry whose ID == i, or nil if removed
	nextID  uint64

	storagePath   string
	flushInterval time.Duration

	pendingRows map[string]rowUpdate
	rowMu       sync.Mutex
}

type rowUpdate struct {
	updateType UpdateType
	entry      Entry
}

// NewService returns an empty alarm Service persisting to
// storagePath/<instanceId>.xml.
func NewService(ss *fabric.SignalSlotable, instanceID, storagePath string, flushInterval time.Duration) *Service {
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	s := &Service{
		InstanceID:    instanceID,
		ss:            ss,
		byKey:         make(map[string]*Entry),
		storagePath:   storagePath,
		flushInterval: flushInterval,
		pendingRows:   make(map[string]rowUpdate),
	}
	if ss != nil {
		ss.RegisterSlot("slotUpdateAlarms", s.handleSlotUpdateAlarms)
		ss.RegisterSlot("slotAcknowledgeAlarm", s.handleSlotAcknowledgeAlarm)
		ss.RegisterSlot("slotRequestAlarmDump", s.handleSlotRequestAlarmDump)
	}
	return s
}

func (s *Service) allocateID() uint64 {
	id := s.nextID
	s.nextID++
	for int(id) >= len(s.arena) {
		s.arena = append(s.arena, nil)
	}
	return id
}

func (s *Service) insert(e *Entry) {
	s.byKey[entryKey(e.DeviceID, e.Property, e.AlarmType)] = e
	for int(e.ID) >= len(s.arena) {
		s.arena = append(s.arena, nil)
	}
	s.arena[e.ID] = e
}

func (s *Service) remove(key string) {
	e, ok := s.byKey[key]
	if !ok {
		return
	}
	delete(s.byKey, key)
	if int(e.ID) < len(s.arena) {
		s.arena[e.ID] = nil
	}
}

// UpdateAlarms applies one device's toAdd/toClear delta, mutating the
// alarm tree and returning the row updates to publish.
func (s *Service) UpdateAlarms(deviceID string, delta Delta) map[string]rowUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make(map[string]rowUpdate)
	now := time.Now().UTC()

	for _, clearKey := range delta.ToClear {
		property, alarmType := splitAlarmKey(clearKey)
		full := entryKey(deviceID, property, alarmType)
		e, ok := s.byKey[full]
		if !ok {
			continue
		}
		if e.NeedsAcknowledging && !e.Acknowledged {
			e.Acknowledgeable = true
			rows[fmt.Sprint(e.ID)] = rowUpdate{updateType: UpdateAcknowledgeable, entry: *e}
			continue
		}
		s.remove(full)
		rows[fmt.Sprint(e.ID)] = rowUpdate{updateType: UpdateRemove, entry: *e}
	}

	for addKey, spec := range delta.ToAdd {
		property, alarmType := splitAlarmKey(addKey)
		full := entryKey(deviceID, property, alarmType)
		if existing, ok := s.byKey[full]; ok {
			existing.Severity = spec.Severity
			existing.Description = spec.Description
			existing.NeedsAcknowledging = spec.NeedsAcknowledging
			existing.MostRecent = now
			rows[fmt.Sprint(existing.ID)] = rowUpdate{updateType: UpdateUpdate, entry: *existing}
			continue
		}
		e := &Entry{
			ID:                 s.allocateID(),
			DeviceID:           deviceID,
			Property:           property,
			AlarmType:          alarmType,
			Severity:           spec.Severity,
			Description:        spec.Description,
			FirstOccurrence:    now,
			MostRecent:         now,
			NeedsAcknowledging: spec.NeedsAcknowledging,
		}
		s.insert(e)
		rows[fmt.Sprint(e.ID)] = rowUpdate{updateType: UpdateAdd, entry: *e}
	}

	return rows
}

func splitAlarmKey(key string) (property, alarmType string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func (s *Service) handleSlotUpdateAlarms(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
	deviceID, _ := body.GetString("deviceId")
	delta := Delta{ToAdd: map[string]AddSpec{}}

	// Each alarm arrives as a {severity, value, ...} sub-Hash at its
	// "property.alarmType" path, so its key is the parent of the
	// severity leaf.
	if toAddHash, err := body.GetHash("toAdd"); err == nil {
		for _, leaf := range toAddHash.Paths() {
			key, field := splitAlarmKey(leaf)
			if field != "severity" {
				continue
			}
			entryHash, err := toAddHash.GetHash(key)
			if err != nil {
				continue
			}
			sev, _ := entryHash.GetString("severity")
			desc, _ := entryHash.GetString("description")
			needsAck, _ := entryHash.GetBool("needsAcknowledging")
			delta.ToAdd[key] = AddSpec{Severity: Severity(sev), Description: desc, NeedsAcknowledging: needsAck}
		}
	}
	if toClearHash, err := body.GetHash("toClear"); err == nil {
		for _, leaf := range toClearHash.Paths() {
			if key, field := splitAlarmKey(leaf); field == "severity" {
				delta.ToClear = append(delta.ToClear, key)
			}
		}
	}

	rows := s.UpdateAlarms(deviceID, delta)
	s.publishRows(ctx, rows)
	return hash.New(), nil
}

func (s *Service) handleSlotAcknowledgeAlarm(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
	rows := make(map[string]rowUpdate)

	s.mu.Lock()
	for _, idStr := range body.Keys() {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			continue
		}
		if int(id) >= len(s.arena) || s.arena[id] == nil {
			klog.WithField("id", idStr).Warn("slotAcknowledgeAlarm: unknown id")
			continue
		}
		e := s.arena[id]
		key := entryKey(e.DeviceID, e.Property, e.AlarmType)
		if e.Acknowledgeable {
			s.remove(key)
			rows[idStr] = rowUpdate{updateType: UpdateRemove, entry: *e}
		} else {
			rows[idStr] = rowUpdate{updateType: UpdateRefuseAck, entry: *e}
		}
	}
	s.mu.Unlock()

	s.publishRows(ctx, rows)
	return hash.New(), nil
}

func (s *Service) handleSlotRequestAlarmDump(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := hash.New()
	for _, e := range s.arena {
		if e == nil {
			continue
		}
		out.Set(fmt.Sprint(e.ID), encodeEntry(*e, UpdateInit))
	}
	return out, nil
}

func encodeEntry(e Entry, ut UpdateType) *hash.Hash {
	h := hash.New()
	h.Set("updateType", string(ut))
	entry := hash.New()
	entry.Set("deviceId", e.DeviceID)
	entry.Set("property", e.Property)
	entry.Set("alarmType", e.AlarmType)
	entry.Set("severity", string(e.Severity))
	entry.Set("description", e.Description)
	entry.Set("firstOccurrence", e.FirstOccurrence)
	entry.Set("mostRecent", e.MostRecent)
	entry.Set("needsAcknowledging", e.NeedsAcknowledging)
	entry.Set("acknowledgeable", e.Acknowledgeable)
	entry.Set("acknowledged", e.Acknowledged)
	h.Set("entry", entry)
	return h
}

// publishRows buffers rows under a short debounce and emits one coalesced
// signalAlarmServiceUpdate, so a burst of updates from one device
// collapses into a single message.
func (s *Service) publishRows(ctx context.Context, rows map[string]rowUpdate) {
	if len(rows) == 0 || s.ss == nil {
		return
	}
	s.rowMu.Lock()
	for k, v := range rows {
		s.pendingRows[k] = v
	}
	s.rowMu.Unlock()

	// Debounce window: in this in-process implementation we flush
	// immediately after a short coalescing pause rather than running a
	// persistent timer goroutine per call, since slotUpdateAlarms calls
	// already arrive batched from a single Validator delta.
	time.Sleep(5 * time.Millisecond)

	s.rowMu.Lock()
	pending := s.pendingRows
	s.pendingRows = make(map[string]rowUpdate)
	s.rowMu.Unlock()
	if len(pending) == 0 {
		return
	}

	out := hash.New()
	for id, row := range pending {
		out.Set(id, encodeEntry(row.entry, row.updateType))
	}
	_ = s.ss.EmitSignal(ctx, "signalAlarmServiceUpdate", out)
}

// StartPersistence runs the flush loop (every flushInterval, snapshot to
// storagePath/<instanceId>.xml under an advisory file lock) until ctx is
// canceled, following the same rotate-and-flush-timer shape as
// pkg/audit's logger but writing a full snapshot rather than append-only
// records.
func (s *Service) StartPersistence(ctx context.Context) {
	if s.storagePath == "" {
		return
	}
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				klog.WithInstance(s.InstanceID).WithField("error", err).Warn("alarm persistence flush failed")
			}
		}
	}
}

func (s *Service) snapshotPath() string {
	return fmt.Sprintf("%s/%s.xml", s.storagePath, s.InstanceID)
}

func (s *Service) flush() error {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.byKey))
	for _, e := range s.arena {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	s.mu.RUnlock()

	fl := flock.New(s.snapshotPath() + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("alarm: acquiring snapshot lock: %w", err)
	}
	defer fl.Unlock()

	return writeSnapshotXML(s.snapshotPath(), s.InstanceID, entries)
}

// Restore loads a prior snapshot (if present) under a shared advisory
// lock, rebuilding the id arena and reverse index.
func (s *Service) Restore() error {
	if s.storagePath == "" {
		return nil
	}
	fl := flock.New(s.snapshotPath() + ".lock")
	if err := fl.RLock(); err != nil {
		return fmt.Errorf("alarm: acquiring snapshot read lock: %w", err)
	}
	defer fl.Unlock()

	entries, err := readSnapshotXML(s.snapshotPath())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		entry := e
		s.insert(&entry)
		if entry.ID >= s.nextID {
			s.nextID = entry.ID + 1
		}
	}
	return nil
}
