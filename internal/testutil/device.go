package testutil

import (
	"testing"

	"github.com/newtron-network/karabo/pkg/device"
	"github.com/newtron-network/karabo/pkg/fabric/broker"
	"github.com/newtron-network/karabo/pkg/hash"
	"github.com/newtron-network/karabo/pkg/schema"
)

// RunningDevice constructs a device.Device against expected parameters
// over a fresh in-memory fabric.
func RunningDevice(t *testing.T, instanceID, classID string, expected device.ExpectedParameters, config *hash.Hash) *device.Device {
	t.Helper()
	ss := NewSignalSlotable(t, instanceID, classID)
	ctx := Context(t)

	d, err := device.New(ctx, instanceID, classID, ss, expected, config)
	AssertNoError(t, err, "constructing device")
	return d
}

// RunningDeviceOnBroker is RunningDevice for a device that must be
// reachable by other SignalSlotable instances sharing broker b — the
// shape a lock test needs for its locker and its locked device.
func RunningDeviceOnBroker(t *testing.T, b *broker.Broker, instanceID, classID string, expected device.ExpectedParameters, config *hash.Hash) *device.Device {
	t.Helper()
	ss := NewSignalSlotableOnBroker(t, b, instanceID, classID)
	ctx := Context(t)

	d, err := device.New(ctx, instanceID, classID, ss, expected, config)
	AssertNoError(t, err, "constructing device")
	return d
}

// SimpleSchema returns a one-parameter schema fixture (a reconfigurable
// float named "value"), useful for tests that only need a minimal
// AllowedStates/bounds scenario.
func SimpleSchema(classID string) *schema.Schema {
	s := schema.New(classID)
	s.Key("value").Leaf(schema.ValueFloat).Reconfigurable().DefaultValue(0.0)
	return s
}
