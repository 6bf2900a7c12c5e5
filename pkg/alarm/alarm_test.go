package alarm

import (
	"context"
	"fmt"
	"testing"

	"github.com/newtron-network/karabo/pkg/hash"
)

func TestAlarmLifecycleAddAcknowledgeableAcknowledge(t *testing.T) {
	s := NewService(nil, "alarmService1", "", 0)

	rows := s.UpdateAlarms("dev1", Delta{
		ToAdd: map[string]AddSpec{
			"temp.alarmHigh": {Severity: SeverityAlarm, Description: "hot", NeedsAcknowledging: true},
		},
	})
	if len(rows) != 1 {
		t.Fatalf("expected one add row, got %d", len(rows))
	}
	var id uint64
	for _, row := range rows {
		if row.updateType != UpdateAdd {
			t.Fatalf("expected add, got %s", row.updateType)
		}
		id = row.entry.ID
	}

	rows = s.UpdateAlarms("dev1", Delta{
		ToAdd:   map[string]AddSpec{},
		ToClear: []string{"temp.alarmHigh"},
	})
	row, ok := rows[fmt.Sprint(id)]
	if !ok || row.updateType != UpdateAcknowledgeable {
		t.Fatalf("expected acknowledgeable row for id %d, got %+v", id, rows)
	}

	s.mu.RLock()
	_, stillPresent := s.byKey[entryKey("dev1", "temp", "alarmHigh")]
	s.mu.RUnlock()
	if !stillPresent {
		t.Fatalf("acknowledgeable entry should remain until explicitly acknowledged")
	}

	ack := hash.New()
	ack.Set(fmt.Sprint(id), true)
	if _, err := s.handleSlotAcknowledgeAlarm(context.Background(), "op1", ack); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.mu.RLock()
	_, gone := s.byKey[entryKey("dev1", "temp", "alarmHigh")]
	s.mu.RUnlock()
	if gone {
		t.Fatalf("expected entry to be removed from m_alarms after acknowledgement")
	}
}

func TestAcknowledgeRefusedWhenStillActive(t *testing.T) {
	s := NewService(nil, "alarmService1", "", 0)

	rows := s.UpdateAlarms("dev1", Delta{
		ToAdd: map[string]AddSpec{
			"temp.alarmHigh": {Severity: SeverityAlarm, Description: "hot", NeedsAcknowledging: true},
		},
	})
	var id uint64
	for _, row := range rows {
		id = row.entry.ID
	}

	ack := hash.New()
	ack.Set(fmt.Sprint(id), true)
	if _, err := s.handleSlotAcknowledgeAlarm(context.Background(), "op1", ack); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.mu.RLock()
	_, stillPresent := s.byKey[entryKey("dev1", "temp", "alarmHigh")]
	s.mu.RUnlock()
	if !stillPresent {
		t.Fatalf("an active (non-acknowledgeable) alarm must survive an acknowledge attempt")
	}
}

func TestAcknowledgeUnknownIDIsIgnored(t *testing.T) {
	s := NewService(nil, "alarmService1", "", 0)
	ack := hash.New()
	ack.Set("999", true)
	if _, err := s.handleSlotAcknowledgeAlarm(context.Background(), "op1", ack); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestAlarmDumpReturnsCurrentTable(t *testing.T) {
	s := NewService(nil, "alarmService1", "", 0)
	s.UpdateAlarms("dev1", Delta{
		ToAdd: map[string]AddSpec{
			"temp.alarmHigh": {Severity: SeverityAlarm, Description: "hot", NeedsAcknowledging: true},
		},
	})

	out, err := s.handleSlotRequestAlarmDump(context.Background(), "op1", hash.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("expected one row in dump, got %d", out.Len())
	}
}

func TestArenaSlotClearedAfterRemoval(t *testing.T) {
	s := NewService(nil, "alarmService1", "", 0)
	rows := s.UpdateAlarms("dev1", Delta{
		ToAdd: map[string]AddSpec{
			"temp.alarmHigh": {Severity: SeverityAlarm, NeedsAcknowledging: false},
		},
	})
	var id uint64
	for _, row := range rows {
		id = row.entry.ID
	}
	s.UpdateAlarms("dev1", Delta{ToClear: []string{"temp.alarmHigh"}})

	s.mu.RLock()
	slot := s.arena[id]
	s.mu.RUnlock()
	if slot != nil {
		t.Fatalf("expected arena slot to be cleared after a non-acknowledgeable alarm clears")
	}
}
