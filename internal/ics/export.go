package ics

import (
	"bytes"
	"fmt"
	"time"

	ical "github.com/emersion/go-ical"

	"clubsync/internal/model"
)

// ExportCalendar republishes persisted events as an iCalendar feed so other
// calendars can subscribe to the merged result. Each event becomes one
// VEVENT whose UID is the event's external identifier (falling back to the
// store ID for locally created events).
func ExportCalendar(name string, events []model.Event) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//clubsync//EN")
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}

	now := time.Now().UTC()
	for _, ev := range events {
		vevent := ical.NewComponent(ical.CompEvent)

		uid := ev.ExternalID
		if uid == "" {
			uid = ev.ID
		}
		vevent.Props.SetText(ical.PropUID, uid)
		vevent.Props.SetText(ical.PropSummary, ev.Title)
		if ev.Description != "" {
			vevent.Props.SetText(ical.PropDescription, ev.Description)
		}
		if ev.Location != "" {
			vevent.Props.SetText(ical.PropLocation, ev.Location)
		}

		vevent.Props.SetDateTime(ical.PropDateTimeStart, time.UnixMilli(ev.StartTime).UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, time.UnixMilli(ev.EndTime).UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)

		cal.Children = append(cal.Children, vevent)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
