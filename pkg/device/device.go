// Package device implements the Karabo device runtime: the
// Schema+Validator-backed parameter store, the state machine, the
// slot-call guard (lock + allowed-state check), and schema injection.
package device

import (
	"context"
	"fmt"
	"os/user"
	"sync"
	"time"

	"github.com/newtron-network/karabo/internal/klog"
	"github.com/newtron-network/karabo/pkg/fabric"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/karerrors"
	"github.com/newtron-network/karabo/pkg/schema"
	"github.com/newtron-network/karabo/pkg/state"
	"github.com/newtron-network/karabo/pkg/timestamp"
	"github.com/newtron-network/karabo/pkg/validator"
	"github.com/newtron-network/karabo/pkg/wire"
)

// ExpectedParameters builds (or extends) a static schema for a device
// class. Concrete device classes chain these from most-derived to
// most-base, the expectedParameters chaining contract.
type ExpectedParameters func(s *schema.Schema)

// Slot is a callable command registered against a device, distinct from
// fabric.SlotFunc in that it also receives the Device so handlers can
// read/write parameters directly.
type Slot func(ctx context.Context, d *Device, body *hash.Hash) (*hash.Hash, error)

// Device owns one instance's parameter store, schema, and state.
type Device struct {
	ID       string
	ClassID  string
	ServerID string

	mu sync.RWMutex

	parameters *hash.Hash

	staticSchema   *schema.Schema
	injectedSchema *schema.Schema
	fullSchema     *schema.Schema
	stateViewCache map[state.State]*schema.Schema

	internalValidator *validator.Validator
	externalValidator *validator.Validator

	currentState state.State

	slots map[string]Slot

	ss *fabric.SignalSlotable

	extrapolator *timestamp.Extrapolator

	alarmServiceID string

	inputChannels  map[string]*InputChannel
	outputChannels map[string]*OutputChannel

	preReconfigure  func(incoming *hash.Hash) error
	postReconfigure func()
	preDestruction  func()

	initialFunctions []func(ctx context.Context, d *Device)

	timeServerID string
}

// SetPreReconfigure registers the subclass hook SlotReconfigure calls
// after validation and before applying the change; it may mutate
// incoming in place, or return an error to abort the reconfigure before
// anything is applied.
func (d *Device) SetPreReconfigure(fn func(incoming *hash.Hash) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preReconfigure = fn
}

// SetPostReconfigure registers the subclass hook SlotReconfigure calls
// after the change has been applied and signalChanged emitted.
func (d *Device) SetPostReconfigure(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postReconfigure = fn
}

// SetPreDestruction registers the subclass hook slotKillDevice calls
// before emitting signalDeviceInstanceGone and stopping the event loop.
func (d *Device) SetPreDestruction(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preDestruction = fn
}

// AddInitialFunction registers a function to run (in registration
// order) on the device's worker once construction completes — the
// construction-to-ready handoff. Call RunInitialFunctions once the
// device is otherwise ready.
func (d *Device) AddInitialFunction(fn func(ctx context.Context, d *Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialFunctions = append(d.initialFunctions, fn)
}

// RunInitialFunctions runs every registered initial function, in
// registration order, on its own goroutine (the device's "worker")
// so a slow first-light routine never blocks the caller that just
// finished constructing the device.
func (d *Device) RunInitialFunctions(ctx context.Context) {
	d.mu.RLock()
	fns := append([]func(ctx context.Context, d *Device){}, d.initialFunctions...)
	d.mu.RUnlock()
	go func() {
		for _, fn := range fns {
			fn(ctx, d)
		}
	}()
}

// DefaultAlarmServiceInstanceID is the well-known instance id devices
// address slotUpdateAlarms to when SetAlarmService hasn't overridden it.
const DefaultAlarmServiceInstanceID = "karaboAlarmService"

// lockedByPath is the reserved parameter every device carries for the
// cooperative lock protocol (pkg/lock): "" means unlocked, otherwise the
// instance id currently holding the lock. It is an ordinary
// reconfigurable Hash element — claiming a lock is just a slotReconfigure
// of this one path (core/Lock.cc's lock_impl), which is what makes it
// visible through slotGetConfiguration like any other parameter.
const lockedByPath = "lockedBy"

// alarmRequestTimeout bounds the fire-and-forget slotUpdateAlarms call so
// a missing or slow alarm service never blocks a parameter update.
const alarmRequestTimeout = 2 * time.Second

// SetAlarmService points publishAlarmDelta at a non-default alarm
// service instance id.
func (d *Device) SetAlarmService(instanceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alarmServiceID = instanceID
}

// New constructs a Device in state.INIT, running expected through the
// static schema, validating the supplied config in init mode, and
// rejecting missing mandatory parameters — the deterministic
// construction sequence.
func New(ctx context.Context, id, classID string, ss *fabric.SignalSlotable, expected ExpectedParameters, config *hash.Hash) (*Device, error) {
	staticSchema := schema.New(classID)
	staticSchema.Key(lockedByPath).Leaf(schema.ValueString).Reconfigurable().
		DefaultValue("").Description("instance id holding this device's cooperative lock, empty when unlocked")
	if expected != nil {
		expected(staticSchema)
	}

	d := &Device{
		ID:             id,
		ClassID:        classID,
		parameters:     hash.New(),
		staticSchema:   staticSchema,
		injectedSchema: schema.New(classID),
		currentState:   state.INIT,
		slots:          make(map[string]Slot),
		ss:             ss,
		extrapolator:   timestamp.NewExtrapolator(),
		stateViewCache: make(map[state.State]*schema.Schema),
	}
	d.rebuildFullSchema()

	if config == nil {
		config = hash.New()
	}

	v := validator.New(validator.ModeExternal, d.currentState)
	v.AllowInitOnly = true
	validated, errs, _ := v.Validate(d.fullSchema, config)
	if len(errs) > 0 {
		return nil, karerrors.NewParameterError(id, fmt.Sprintf("construction validation failed: %v", errs))
	}
	for _, path := range staticSchema.Paths() {
		if dv, ok := staticSchema.DefaultValue(path); ok && !validated.Has(path) {
			validated.Set(path, dv)
		}
	}
	if mandErrs := validator.CheckMandatory(d.fullSchema, validated); len(mandErrs) > 0 {
		return nil, karerrors.NewParameterError(id, fmt.Sprintf("missing mandatory parameters: %v", mandErrs))
	}

	d.parameters = validated
	d.internalValidator = validator.New(validator.ModeInternal, d.currentState)
	d.externalValidator = validator.New(validator.ModeExternal, d.currentState)

	d.bindInfraSlots()
	return d, nil
}

func (d *Device) rebuildFullSchema() {
	full := d.staticSchema.Clone()
	full.Merge(d.injectedSchema)
	d.fullSchema = full
	d.stateViewCache = make(map[state.State]*schema.Schema)
	d.syncChannels()
}

// StateFilteredSchema returns (and lazily caches) the schema view
// restricted to elements writable/callable in st.
func (d *Device) StateFilteredSchema(st state.State) *schema.Schema {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.stateViewCache[st]; ok {
		return cached
	}
	view := d.fullSchema.WithFilter(schema.Filter{State: st})
	d.stateViewCache[st] = view
	return view
}

func (d *Device) bindInfraSlots() {
	if d.ss == nil {
		return
	}
	d.ss.RegisterSlot("slotReconfigure", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		ok, reason, err := d.SlotReconfigure(ctx, source, body)
		if err != nil {
			return nil, err
		}
		out := hash.New()
		out.Set("success", ok)
		out.Set("reason", reason)
		return out, nil
	})
	d.ss.RegisterSlot("slotGetConfiguration", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		return d.Snapshot(), nil
	})
	d.ss.RegisterSlot("slotTimeTick", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		id, _ := body.GetInt64("id")
		sec, _ := body.GetInt64("sec")
		atto, _ := body.GetInt64("atto")
		period, _ := body.GetInt64("periodNanos")
		d.extrapolator.Tick(uint64(id), uint64(sec), uint64(atto), uint64(period))
		d.mu.Lock()
		d.timeServerID = source
		d.mu.Unlock()
		return hash.New(), nil
	})
	d.ss.RegisterSlot("slotGetConfigurationSlice", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		rawPaths, ok := body.Get("paths")
		if !ok {
			return nil, karerrors.NewParameterError("paths", "slotGetConfigurationSlice requires a paths list")
		}
		var paths []string
		switch list := rawPaths.(type) {
		case []string:
			paths = list
		case []any:
			for _, p := range list {
				s, _ := p.(string)
				paths = append(paths, s)
			}
		default:
			return nil, karerrors.NewParameterError("paths", "paths must be a list of strings")
		}
		snap := d.Snapshot()
		out := hash.New()
		for _, path := range paths {
			v, ok := snap.Get(path)
			if !ok {
				return nil, karerrors.NewParameterError(path, "unknown path in slotGetConfigurationSlice")
			}
			out.Set(path, v)
		}
		return out, nil
	})
	d.ss.RegisterSlot("slotGetSchema", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		onlyCurrentState, _ := body.GetBool("onlyCurrentState")
		s := d.Schema()
		if onlyCurrentState {
			s = d.StateFilteredSchema(d.State())
		}
		xmlBytes, err := wire.EncodeSchemaXML(s)
		if err != nil {
			return nil, err
		}
		out := hash.New()
		out.Set("schemaXml", string(xmlBytes))
		return out, nil
	})
	d.ss.RegisterSlot("slotClearLock", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		d.clearLock()
		return hash.New(), nil
	})
	d.ss.RegisterSlot("slotGetTime", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		return d.systemInfo(false), nil
	})
	d.ss.RegisterSlot("slotGetSystemInfo", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		return d.systemInfo(true), nil
	})
	d.ss.RegisterSlot("slotKillDevice", func(ctx context.Context, source string, body *hash.Hash) (*hash.Hash, error) {
		d.mu.Lock()
		preDestruction := d.preDestruction
		d.mu.Unlock()
		if preDestruction != nil {
			preDestruction()
		}
		d.Log(ctx, "INFO", "killed by "+source)
		gone := hash.New()
		gone.Set("serverId", d.ServerID)
		gone.Set("deviceId", d.ID)
		_ = d.ss.EmitSignal(ctx, "signalDeviceInstanceGone", gone)
		d.ss.Stop()
		return hash.New(), nil
	})
}

// systemInfo builds the reply body for slotGetTime/slotGetSystemInfo.
// includeHost additionally fills in the user/broker fields
// slotGetSystemInfo carries beyond slotGetTime's time-only payload.
func (d *Device) systemInfo(includeHost bool) *hash.Hash {
	out := hash.New()
	ts := d.extrapolator.Actual()
	d.mu.RLock()
	timeServerID := d.timeServerID
	d.mu.RUnlock()
	out.Set("time", ts.String())
	out.Set("timeServerId", timeServerID)
	out.Set("reference", d.ID)
	if includeHost {
		out.Set("user", currentUser())
		if d.ss != nil {
			out.Set("broker", d.ss.InstanceID)
		}
	}
	return out
}

// Call dispatches to a user-registered slot through the slot-call
// guard: it must exist, callerID must be either the lock holder or the
// device must be unlocked, and the current state must be in the slot's
// AllowedStates.
func (d *Device) Call(ctx context.Context, callerID, slotName string, body *hash.Hash) (*hash.Hash, error) {
	d.mu.RLock()
	fn, ok := d.slots[slotName]
	cur := d.currentState
	held := d.lockedByLocked()
	d.mu.RUnlock()

	if !ok {
		return nil, karerrors.NewParameterError(slotName, "no such slot")
	}
	if held != "" && held != callerID {
		return nil, &karerrors.LockError{DeviceID: d.ID, Reason: fmt.Sprintf("locked by %s", held)}
	}
	if allowed, has := d.fullSchema.AllowedStates(slotName); has && !allowed.Allows(cur) {
		d.emitNoTransition(ctx, slotName, cur, allowed)
		return nil, &karerrors.BadTransitionError{DeviceID: d.ID, Slot: slotName, State: string(cur), Allowed: statesToStrings(allowed)}
	}
	return fn(ctx, d, body)
}

// RegisterSlot binds a user slot handler.
func (d *Device) RegisterSlot(name string, fn Slot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[name] = fn
}

func (d *Device) emitNoTransition(ctx context.Context, slotName string, cur state.State, allowed state.Set) {
	if d.ss == nil {
		return
	}
	body := hash.New()
	body.Set("deviceId", d.ID)
	body.Set("slot", slotName)
	body.Set("state", string(cur))
	_ = d.ss.EmitSignal(ctx, "signalNoTransition", body)
}

func statesToStrings(s state.Set) []string {
	states := s.List()
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

// SlotReconfigure validates candidate against the external Validator
// and, on success, applies it and emits signalChanged for exactly the
// paths that changed. On rejection nothing is applied and no
// signalChanged is emitted.
//
// An empty candidate hash returns immediately with ErrSuppressReply and
// no reply is published at all, matching
// karabo::core::Device::slotReconfigure's early "if
// (newConfiguration.empty()) return;" (core/Device.cc:248-249) — a
// requesting caller simply times out rather than getting back a
// reply of (true, "").
func (d *Device) SlotReconfigure(ctx context.Context, callerID string, candidate *hash.Hash) (bool, string, error) {
	if candidate == nil || candidate.Len() == 0 {
		return false, "", karerrors.ErrSuppressReply
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if held := d.lockedByLocked(); held != "" && held != callerID {
		return false, fmt.Sprintf("device is locked by %s", held), nil
	}

	d.externalValidator.CurrentState = d.currentState
	validated, errs, delta := d.externalValidator.Validate(d.fullSchema, candidate)
	if len(errs) > 0 {
		return false, fmt.Sprintf("%v", errs), nil
	}

	if d.preReconfigure != nil {
		if err := d.preReconfigure(validated); err != nil {
			return false, err.Error(), nil
		}
	}

	ts := d.extrapolator.Actual()
	changed := d.applyLocked(validated, ts)
	d.publishAlarmDelta(ctx, delta)
	if len(changed) > 0 {
		d.emitChanged(ctx, changed)
	}
	if d.postReconfigure != nil {
		d.postReconfigure()
	}
	return true, "", nil
}

// Set applies an internally-sourced update (bypassing accessMode
// checks), used by a device's own slot handlers to publish computed
// readbacks.
func (d *Device) Set(ctx context.Context, updates *hash.Hash, ts timestamp.Timestamp) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.internalValidator.CurrentState = d.currentState
	validated, errs, delta := d.internalValidator.Validate(d.fullSchema, updates)
	if len(errs) > 0 {
		klog.WithDevice(d.ID).WithField("errors", errs).Warn("internal set validation failed")
	}
	changed := d.applyLocked(validated, ts)
	d.publishAlarmDelta(ctx, delta)
	if len(changed) > 0 {
		d.emitChanged(ctx, changed)
	}
	return changed
}

// applyLocked writes validated leaves into d.parameters, returning the
// paths whose value actually changed (signalChanged fires only for
// these, per the invariant that it never flushes unchanged state).
func (d *Device) applyLocked(validated *hash.Hash, ts timestamp.Timestamp) []string {
	var changed []string
	for _, path := range validated.Paths() {
		newVal, _ := validated.Get(path)
		oldVal, existed := d.parameters.Get(path)
		if existed && hash.ValuesEqual(newVal, oldVal) {
			continue
		}
		d.parameters.Set(path, newVal)
		_ = d.parameters.SetAttribute(path, "timestamp", ts)
		changed = append(changed, path)
	}
	return changed
}

func (d *Device) emitChanged(ctx context.Context, paths []string) {
	if d.ss == nil {
		return
	}
	body := hash.New()
	for _, p := range paths {
		v, _ := d.parameters.Get(p)
		body.Set(p, v)
	}
	_ = d.ss.EmitSignal(ctx, "signalChanged", body)
}

func (d *Device) publishAlarmDelta(ctx context.Context, delta *validator.Delta) {
	if d.ss == nil || delta == nil {
		return
	}
	if len(delta.ToAdd) == 0 && len(delta.ToClear) == 0 {
		return
	}
	body := hash.New()
	body.Set("deviceId", d.ID)
	toAdd := hash.New()
	for k, e := range delta.ToAdd {
		entry := hash.New()
		entry.Set("severity", string(e.Severity))
		entry.Set("value", e.Value)
		toAdd.Set(k, entry)
	}
	toClear := hash.New()
	for k, e := range delta.ToClear {
		entry := hash.New()
		entry.Set("severity", string(e.Severity))
		entry.Set("value", e.Value)
		toClear.Set(k, entry)
	}
	body.Set("toAdd", toAdd)
	body.Set("toClear", toClear)

	target := d.alarmServiceID
	if target == "" {
		target = DefaultAlarmServiceInstanceID
	}
	go func() {
		reqCtx, cancel := context.WithTimeout(context.Background(), alarmRequestTimeout)
		defer cancel()
		if _, err := d.ss.Request(reqCtx, target, "slotUpdateAlarms", body, alarmRequestTimeout); err != nil {
			klog.WithDevice(d.ID).WithField("error", err).Warn("slotUpdateAlarms request failed")
		}
	}()
}

// UpdateState transitions to next, emitting signalStateChanged. It does
// not itself check whether the transition is legal — concrete device
// classes gate that through their own FSM logic before calling this.
func (d *Device) UpdateState(ctx context.Context, next state.State) {
	d.mu.Lock()
	prev := d.currentState
	d.currentState = next
	d.mu.Unlock()

	if prev == next {
		return
	}
	if d.ss == nil {
		return
	}
	body := hash.New()
	body.Set("deviceId", d.ID)
	body.Set("state", string(next))
	_ = d.ss.EmitSignal(ctx, "signalStateChanged", body)

	d.Log(ctx, "INFO", fmt.Sprintf("state %s -> %s", prev, next))
}

// Log emits signalLog for the central logger's target='log' topic
// (pkg/logger.CentralLogger.HandleLogTopicMessage), batching a single
// {timestamp,type,category,message} record.
func (d *Device) Log(ctx context.Context, logType, message string) {
	if d.ss == nil {
		return
	}
	entry := hash.New()
	entry.Set("type", logType)
	entry.Set("category", d.ID)
	entry.Set("message", message)
	entry.Set("timestamp", time.Now().UTC())

	messages := hash.New()
	messages.Set("0", entry)

	body := hash.New()
	body.Set("messages", messages)
	_ = d.ss.EmitSignal(ctx, "signalLog", body)
}

// State returns the current state.
func (d *Device) State() state.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentState
}

// Snapshot returns a deep copy of the current parameter Hash.
func (d *Device) Snapshot() *hash.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parameters.Clone()
}

// Schema returns the device's current full schema.
func (d *Device) Schema() *schema.Schema {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fullSchema
}

// AppendSchema merges delta into the injected schema. Reapplying the
// same delta is a no-op beyond the merge's natural idempotence when
// delta only overwrites existing nodes; no Fingerprint-based
// short-circuit is applied, here or by any caller.
// Existing InputChannel/OutputChannel objects are preserved by path, so
// handlers registered on them before the call keep firing afterward.
func (d *Device) AppendSchema(ctx context.Context, delta *schema.Schema) {
	d.mu.Lock()
	d.injectedSchema.Merge(delta)
	d.rebuildFullSchema()
	full := d.fullSchema
	d.mu.Unlock()
	d.emitSchemaUpdated(ctx, full)
}

// UpdateSchema discards the previous injection entirely and replaces it
// with delta, then rebuilds. Unlike AppendSchema this does not preserve
// elements from the prior injected schema that delta omits — it does
// still preserve InputChannel/OutputChannel objects for any channel path
// delta redeclares, since syncChannels keys on path, not on injection
// generation.
func (d *Device) UpdateSchema(ctx context.Context, delta *schema.Schema) {
	d.mu.Lock()
	d.injectedSchema = delta.Clone()
	d.rebuildFullSchema()
	full := d.fullSchema
	d.mu.Unlock()
	d.emitSchemaUpdated(ctx, full)
}

func (d *Device) emitSchemaUpdated(ctx context.Context, full *schema.Schema) {
	if d.ss == nil {
		return
	}
	body := hash.New()
	body.Set("instanceId", d.ID)
	if xmlBytes, err := wire.EncodeSchemaXML(full); err == nil {
		body.Set("schemaXml", string(xmlBytes))
	}
	_ = d.ss.EmitSignal(ctx, "signalSchemaUpdated", body)
}

// lockedByLocked reads the lockedBy parameter. Callers must hold d.mu
// (read or write).
func (d *Device) lockedByLocked() string {
	v, _ := d.parameters.Get(lockedByPath)
	s, _ := v.(string)
	return s
}

// LockedBy returns the instance id currently holding this device's
// cooperative lock, or "" if unlocked. A remote caller claims or steals
// this via pkg/lock.Acquire, which is nothing more than a
// slotReconfigure({lockedBy: holder}) against this device — there is no
// separate lock side-channel to query.
func (d *Device) LockedBy() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lockedByLocked()
}

// clearLock resets lockedBy to "" directly, bypassing the reconfigure
// guard — slotClearLock is the fire-and-forget release call
// (core/Lock.cc's unlock_impl) and is intentionally not itself guarded
// by the lock it releases.
func (d *Device) clearLock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parameters.Set(lockedByPath, "")
}

// currentUser resolves the OS user running the device-server process,
// falling back to "unknown" rather than failing slotGetSystemInfo when
// the lookup is unavailable (e.g. a minimal container image).
func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

// OnTimeTick advances the extrapolator and returns the actual
// Timestamp, for device classes that want to stamp computed values
// against the train clock.
func (d *Device) OnTimeTick(id, sec, atto, periodNanos uint64) timestamp.Timestamp {
	d.extrapolator.Tick(id, sec, atto, periodNanos)
	return d.extrapolator.Actual()
}
