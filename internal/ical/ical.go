package ical

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/rbright/pilot-availability/internal/availability"
)

const (
	productID = "-//rbright//pilot-availability//EN"
	uidSuffix = "@pilot-availability"
)

type ImportResult struct {
	Blockouts []availability.Blockout
	Skipped   int
}

// Export serializes blockouts as a PUBLISH feed. Recurring blockouts carry
// an RRULE; one-time blockouts keep their literal interval.
func Export(cal availability.Calendar, pilotID string, blockouts []availability.Blockout, now time.Time) (string, error) {
	feed := ics.NewCalendar()
	feed.SetMethod(ics.MethodPublish)
	feed.SetProductId(productID)
	feed.SetName(fmt.Sprintf("Availability %s", strings.TrimSpace(pilotID)))

	for _, b := range blockouts {
		event := feed.AddEvent(eventUID(b))
		event.SetDtStampTime(now.UTC())
		event.SetStartAt(b.Start.UTC())
		event.SetEndAt(b.End.UTC())
		event.SetSummary(fallback(b.Label, "Unavailable"))
		event.AddProperty(ics.ComponentProperty("TRANSP"), "OPAQUE")

		if !b.Recurring() {
			continue
		}
		rule, err := cal.RuleString(b)
		if err != nil {
			return "", fmt.Errorf("encode blockout %s: %w", b.ID, err)
		}
		event.AddProperty(ics.ComponentPropertyRrule, rule)
	}

	return feed.Serialize(), nil
}

// Import reads VEVENTs into blockouts owned by pilotID. Events without a
// usable interval or with rules outside the supported set are skipped.
func Import(cal availability.Calendar, r io.Reader, pilotID string) (ImportResult, error) {
	parsed, err := ics.ParseCalendar(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse ics: %w", err)
	}

	var result ImportResult
	for _, event := range parsed.Events() {
		b, mapErr := mapEvent(cal, event, pilotID)
		if mapErr != nil {
			result.Skipped++
			continue
		}
		result.Blockouts = append(result.Blockouts, b)
	}
	return result, nil
}

func mapEvent(cal availability.Calendar, event *ics.VEvent, pilotID string) (availability.Blockout, error) {
	start, err := event.GetStartAt()
	if err != nil {
		return availability.Blockout{}, err
	}
	allDay := isAllDay(event.GetProperty(ics.ComponentPropertyDtStart))
	end, err := event.GetEndAt()
	if err != nil || !end.After(start) {
		if !allDay {
			return availability.Blockout{}, errors.New("event has no end after start")
		}
		end = start.AddDate(0, 0, 1)
	}
	// All-day DTEND is exclusive; an end at midnight would also block the
	// following day.
	if allDay {
		end = end.Add(-time.Second)
	}

	b := availability.Blockout{
		PilotID: pilotID,
		Label:   sanitize(propertyValue(event.GetProperty(ics.ComponentPropertySummary))),
		Start:   start,
		End:     end,
	}

	// Our own UIDs carry the blockout id; anything else is a foreign event.
	uid := strings.TrimSpace(propertyValue(event.GetProperty(ics.ComponentPropertyUniqueId)))
	if id, ok := strings.CutSuffix(uid, uidSuffix); ok {
		b.ID = strings.TrimSpace(id)
	} else {
		b.SourceUID = uid
	}

	if rule := strings.TrimSpace(propertyValue(event.GetProperty(ics.ComponentPropertyRrule))); rule != "" {
		recurrence, horizon, ruleErr := cal.RecurrenceFromRRule(rule, start)
		if ruleErr != nil {
			return availability.Blockout{}, ruleErr
		}
		b.Recurrence = recurrence
		b.Horizon = horizon
	}

	if err := b.Validate(cal); err != nil {
		return availability.Blockout{}, err
	}
	return b, nil
}

func eventUID(b availability.Blockout) string {
	id := strings.TrimSpace(b.ID)
	if id == "" {
		id = b.Start.UTC().Format("20060102T150405Z")
	}
	return id + uidSuffix
}

func isAllDay(property *ics.IANAProperty) bool {
	if property == nil {
		return false
	}
	if values, ok := property.ICalParameters["VALUE"]; ok {
		for _, value := range values {
			if strings.EqualFold(strings.TrimSpace(value), "DATE") {
				return true
			}
		}
	}
	return len(strings.TrimSpace(property.Value)) == 8
}

func propertyValue(property *ics.IANAProperty) string {
	if property == nil {
		return ""
	}
	return property.Value
}

func sanitize(value string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(value)), " ")
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}
