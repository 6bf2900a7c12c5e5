package fabric

import (
	"sync"
	"time"
)

// InstanceInfo describes a tracked peer instance.
type InstanceInfo struct {
	InstanceID   string
	ClassID      string
	LastSeen     time.Time
	HeartbeatMs  int64
}

// Topology tracks instanceNew/instanceUpdated/instanceGone transitions
// derived from heartbeats broadcast over the signal fanout: a peer is
// considered gone once its heartbeat is missed for more than 3x its
// declared interval.
type Topology struct {
	mu        sync.Mutex
	instances map[string]*InstanceInfo

	onNew   func(InstanceInfo)
	onGone  func(instanceID string)
	onUp    func(InstanceInfo)
}

// NewTopology returns an empty Topology. Any of the callbacks may be nil.
func NewTopology(onNew func(InstanceInfo), onUpdated func(InstanceInfo), onGone func(string)) *Topology {
	return &Topology{
		instances: make(map[string]*InstanceInfo),
		onNew:     onNew,
		onUp:      onUpdated,
		onGone:    onGone,
	}
}

// Heartbeat records a heartbeat from instanceID, firing onNew the first
// time it's seen or onUpdated on subsequent beats.
func (t *Topology) Heartbeat(instanceID, classID string, heartbeatMs int64) {
	t.mu.Lock()
	info, known := t.instances[instanceID]
	now := time.Now()
	if !known {
		info = &InstanceInfo{InstanceID: instanceID, ClassID: classID, HeartbeatMs: heartbeatMs}
		t.instances[instanceID] = info
	}
	info.LastSeen = now
	info.HeartbeatMs = heartbeatMs
	snapshot := *info
	t.mu.Unlock()

	if !known {
		if t.onNew != nil {
			t.onNew(snapshot)
		}
		return
	}
	if t.onUp != nil {
		t.onUp(snapshot)
	}
}

// Sweep evicts any instance whose heartbeat has been missed for more
// than 3x its declared interval, firing onGone for each. Callers run
// this on a timer; the device server binary does not call it.
func (t *Topology) Sweep() {
	now := time.Now()
	var gone []string

	t.mu.Lock()
	for id, info := range t.instances {
		if info.HeartbeatMs <= 0 {
			continue
		}
		deadline := time.Duration(info.HeartbeatMs) * time.Millisecond * 3
		if now.Sub(info.LastSeen) > deadline {
			gone = append(gone, id)
			delete(t.instances, id)
		}
	}
	t.mu.Unlock()

	for _, id := range gone {
		if t.onGone != nil {
			t.onGone(id)
		}
	}
}

// Instances returns a snapshot of all currently tracked instances.
func (t *Topology) Instances() []InstanceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]InstanceInfo, 0, len(t.instances))
	for _, info := range t.instances {
		out = append(out, *info)
	}
	return out
}

// Remove evicts instanceID immediately (used when an instanceGone
// broadcast is received explicitly rather than inferred from silence).
func (t *Topology) Remove(instanceID string) {
	t.mu.Lock()
	_, known := t.instances[instanceID]
	delete(t.instances, instanceID)
	t.mu.Unlock()
	if known && t.onGone != nil {
		t.onGone(instanceID)
	}
}
