package ics

import (
	"fmt"
	"time"
)

const (
	// maxOccurrences caps expansion of a single recurring event. Degenerate
	// rules are clipped at the cap and the series still counts as expanded.
	maxOccurrences = 1000

	// matchTolerance absorbs sub-minute rounding when comparing EXDATE and
	// RECURRENCE-ID instants against generated candidates.
	matchTolerance = time.Minute

	// defaultEventDuration is assumed when a block has no DTEND.
	defaultEventDuration = 2 * time.Hour
)

// Instance is one concrete event occurrence: either a non-recurring event
// or a single expansion of a recurring series, ready for reconciliation.
type Instance struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time

	// ExternalID correlates this occurrence with its persisted record
	// across repeated runs: the base UID for single events, UID plus the
	// instance start epoch for recurring instances.
	ExternalID string

	IsRecurring bool
	IsOverride  bool

	// RecurrenceID is set on override blocks: the instant of the series
	// occurrence this block replaces.
	RecurrenceID *time.Time
}

// parsedEvent pairs an instance with the series information needed for
// expansion.
type parsedEvent struct {
	inst    Instance
	rule    *RecurrenceRule
	exdates []time.Time
}

// ExpandEvents turns parsed VEVENT blocks into the concrete instances
// intersecting [from, to]. Recurring series are expanded with their EXDATE
// exceptions and RECURRENCE-ID overrides applied; non-recurring events pass
// through when their start falls inside the window. The input is not
// mutated; a fresh list is returned.
func ExpandEvents(events []RawEvent, from, to time.Time) []Instance {
	var bases []parsedEvent
	overrides := map[string][]Instance{}

	for _, raw := range events {
		pe, err := fromRaw(raw)
		if err != nil {
			logger.Warn().Err(err).Str("uid", raw.Value("UID")).Msg("skipping unparseable event block")
			continue
		}
		if pe.inst.IsOverride {
			overrides[pe.inst.UID] = append(overrides[pe.inst.UID], pe.inst)
			continue
		}
		bases = append(bases, pe)
	}

	instances := make([]Instance, 0, len(bases))
	for _, pe := range bases {
		instances = append(instances, expand(pe, overrides[pe.inst.UID], from, to)...)
	}
	return instances
}

// fromRaw derives an Instance plus series metadata from a property bag.
func fromRaw(raw RawEvent) (parsedEvent, error) {
	dtstart := raw["DTSTART"]
	start, err := ParseDateTime(dtstart.Value, dtstart.Params["TZID"])
	if err != nil {
		return parsedEvent{}, fmt.Errorf("bad DTSTART: %w", err)
	}

	end := start.Add(defaultEventDuration)
	if dtend, ok := raw["DTEND"]; ok {
		if e, err := ParseDateTime(dtend.Value, dtend.Params["TZID"]); err == nil {
			end = e
		}
	}

	inst := Instance{
		UID:         raw.Value("UID"),
		Summary:     raw.Value("SUMMARY"),
		Description: raw.Value("DESCRIPTION"),
		Location:    raw.Value("LOCATION"),
		Start:       start,
		End:         end,
	}

	if rid, ok := raw["RECURRENCE-ID"]; ok {
		t, err := ParseDateTime(rid.Value, rid.Params["TZID"])
		if err == nil {
			inst.RecurrenceID = &t
			inst.IsOverride = true
		} else {
			logger.Warn().Err(err).Str("uid", inst.UID).Msg("ignoring unparseable RECURRENCE-ID")
		}
	}

	pe := parsedEvent{inst: inst}

	if exdate, ok := raw["EXDATE"]; ok {
		pe.exdates = ParseExDates(exdate)
	}

	if rruleProp, ok := raw["RRULE"]; ok {
		rule, err := ParseRecurrenceRule(rruleProp.Value)
		if err != nil {
			// A rule outside the handled grammar degrades the event to
			// non-recurring rather than dropping it.
			logger.Warn().Err(err).Str("uid", inst.UID).Msg("treating event as non-recurring")
		} else {
			pe.rule = rule
		}
	}

	return pe, nil
}

// expand produces the window-intersecting instances of one base event.
func expand(pe parsedEvent, overrides []Instance, from, to time.Time) []Instance {
	base := pe.inst

	if pe.rule == nil {
		if base.Start.Before(from) || base.Start.After(to) {
			return nil
		}
		out := base
		if ov, ok := findOverride(overrides, base.Start); ok {
			out = overridden(ov)
		}
		out.ExternalID = externalID(base, base.Start, false)
		return []Instance{out}
	}

	candidates := occurrences(pe, from, to)
	duration := base.End.Sub(base.Start)

	var out []Instance
	for _, at := range candidates {
		if matchesAny(pe.exdates, at) {
			continue
		}

		inst := base
		inst.Start = at
		inst.End = at.Add(duration)
		inst.IsRecurring = true

		if ov, ok := findOverride(overrides, at); ok {
			inst = overridden(ov)
		}

		inst.ExternalID = externalID(base, at, true)
		out = append(out, inst)
	}
	return out
}

// occurrences generates candidate instants for a recurring event. The
// window is extended by a one-month forward guard so overrides just past
// the edge still resolve, and results are clipped at maxOccurrences.
func occurrences(pe parsedEvent, from, to time.Time) []time.Time {
	r, err := pe.rule.buildRRule(pe.inst.Start)
	if err != nil {
		logger.Warn().Err(err).Str("uid", pe.inst.UID).Msg("recurrence rule rejected, using base start only")
		if pe.inst.Start.Before(from) || pe.inst.Start.After(to) {
			return nil
		}
		return []time.Time{pe.inst.Start}
	}

	guard := to.AddDate(0, 1, 0)
	times := r.Between(from, guard, true)
	if len(times) > maxOccurrences {
		logger.Warn().Str("uid", pe.inst.UID).Int("cap", maxOccurrences).
			Msg("recurrence expansion clipped at safety ceiling")
		times = times[:maxOccurrences]
	}
	return times
}

// overridden builds the instance for an override block replacing a series
// occurrence. The override's own fields win entirely; identity stays
// anchored at the replaced occurrence via the caller's externalID.
func overridden(ov Instance) Instance {
	out := ov
	out.IsRecurring = true
	out.IsOverride = true
	return out
}

// findOverride locates an override whose RECURRENCE-ID matches the
// candidate instant within the match tolerance.
func findOverride(overrides []Instance, at time.Time) (Instance, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && within(*ov.RecurrenceID, at, matchTolerance) {
			return ov, true
		}
	}
	return Instance{}, false
}

// matchesAny reports whether the instant matches an exception date within
// tolerance.
func matchesAny(exdates []time.Time, at time.Time) bool {
	for _, ex := range exdates {
		if within(ex, at, matchTolerance) {
			return true
		}
	}
	return false
}

func within(a, b time.Time, tol time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// externalID derives the stable identifier that makes re-synchronization
// idempotent. Events without a UID fall back to summary plus start epoch.
func externalID(base Instance, at time.Time, recurring bool) string {
	id := base.UID
	if id == "" {
		id = fmt.Sprintf("%s_%d", base.Summary, base.Start.UnixMilli())
	}
	if recurring {
		return fmt.Sprintf("%s_%d", id, at.UnixMilli())
	}
	return id
}
