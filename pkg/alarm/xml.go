package alarm

import (
	"encoding/xml"
	"os"
	"time"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000Z07:00", s)
}

type snapshotXML struct {
	XMLName  xml.Name   `xml:"alarms"`
	Instance string     `xml:"instanceId,attr"`
	Entries  []entryXML `xml:"entry"`
}

type entryXML struct {
	ID                 uint64 `xml:"id,attr"`
	DeviceID           string `xml:"deviceId"`
	Property           string `xml:"property"`
	AlarmType          string `xml:"alarmType"`
	Severity           string `xml:"severity"`
	Description        string `xml:"description"`
	FirstOccurrence    string `xml:"firstOccurrence"`
	MostRecent         string `xml:"mostRecent"`
	NeedsAcknowledging bool   `xml:"needsAcknowledging"`
	Acknowledgeable    bool   `xml:"acknowledgeable"`
	Acknowledged       bool   `xml:"acknowledged"`
}

func writeSnapshotXML(path, instanceID string, entries []Entry) error {
	doc := snapshotXML{Instance: instanceID}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, entryXML{
			ID:                 e.ID,
			DeviceID:           e.DeviceID,
			Property:           e.Property,
			AlarmType:          e.AlarmType,
			Severity:           string(e.Severity),
			Description:        e.Description,
			FirstOccurrence:    e.FirstOccurrence.Format("2006-01-02T15:04:05.000Z07:00"),
			MostRecent:         e.MostRecent.Format("2006-01-02T15:04:05.000Z07:00"),
			NeedsAcknowledging: e.NeedsAcknowledging,
			Acknowledgeable:    e.Acknowledgeable,
			Acknowledged:       e.Acknowledged,
		})
	}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

func readSnapshotXML(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var doc snapshotXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		first, _ := parseTime(e.FirstOccurrence)
		recent, _ := parseTime(e.MostRecent)
		out = append(out, Entry{
			ID:                 e.ID,
			DeviceID:           e.DeviceID,
			Property:           e.Property,
			AlarmType:          e.AlarmType,
			Severity:           Severity(e.Severity),
			Description:        e.Description,
			FirstOccurrence:    first,
			MostRecent:         recent,
			NeedsAcknowledging: e.NeedsAcknowledging,
			Acknowledgeable:    e.Acknowledgeable,
			Acknowledged:       e.Acknowledged,
		})
	}
	return out, nil
}
