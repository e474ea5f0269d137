package core

import (
	"context"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog/log"
)

// icsFloatingLayout renders DTSTART/DTEND without a zone; stored times carry none.
const icsFloatingLayout = "20060102T150405"

// EncodeCalendar renders events as an iCalendar document. Events whose times
// do not parse are left out.
func EncodeCalendar(ctx context.Context, name string, events []Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//" + name + "//EN")

	for _, event := range events {
		startAt, err := ParseEventTime(event.StartTime)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("id", event.Id).Msg("skipping event with invalid start_time")
			continue
		}

		endAt, err := ParseEventTime(event.EndTime)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("id", event.Id).Msg("skipping event with invalid end_time")
			continue
		}

		vevent := cal.AddEvent(event.Id + "@" + name)
		vevent.SetDtStampTime(now)
		vevent.SetSummary(event.Title)

		if event.Description != "" {
			vevent.SetDescription(event.Description)
		}

		vevent.SetProperty(ical.ComponentPropertyDtStart, startAt.Format(icsFloatingLayout))
		vevent.SetProperty(ical.ComponentPropertyDtEnd, endAt.Format(icsFloatingLayout))
	}

	return cal.Serialize()
}
