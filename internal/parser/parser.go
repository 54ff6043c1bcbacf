// Package parser turns the occupancy sensor's text upload into a model.Reading.
//
// The sensor firmware emits a loose line format:
//
//	date=Monday,_Jan_20_at_12:17_AM
//	subject=Lights=false
//	body=FA3=false;FA4=false;FA5=false
//
// Parsing is best-effort: unrecognized lines, keys and values are skipped.
package parser

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/model"
)

const (
	// DateLayout matches the sensor's date field once underscores are turned into spaces.
	// The sensor omits the year.
	DateLayout = "Monday, Jan 2 at 3:04 PM"

	fieldSep  = ";"
	keyValSep = "="
)

var BodySensors = []model.SensorDef{
	{ID: "gpio4", Name: "GPIO4"},
	{ID: "gpio5", Name: "GPIO5"},
	{ID: "fa3", Name: "hall_light_on", Label: "hall light"},
	{ID: "fa4", Name: "main_light_on", Label: "main room light"},
	{ID: "fa5", Name: "work_light_on", Label: "work room light"},
}

var SubjectSensors = []model.SensorDef{
	{ID: model.SummaryField, Name: "any_lights_on", Label: "one or more lights"},
}

type Options struct {
	SpaceName string
	Location  *time.Location
}

// Parser keeps its own sensor registries; sensor states carry over between
// uploads when a later upload omits or garbles a field.
type Parser struct {
	body      *model.Registry
	subject   *model.Registry
	spaceName string
	location  *time.Location
	now       func() time.Time
}

func New(opts Options) *Parser {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		body:      model.NewRegistry(BodySensors),
		subject:   model.NewRegistry(SubjectSensors),
		spaceName: opts.SpaceName,
		location:  loc,
		now:       time.Now,
	}
}

func (p *Parser) Parse(raw string) *model.Reading {
	var changedAt *time.Time

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		key, val, ok := splitKeyVal(line)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "date":
			changedAt = p.parseDate(val)
		case "subject":
			p.parseSubject(val)
		case "body":
			p.parseBody(val)
		default:
			log.Debug().Str("key", key).Msg("Ignoring unknown status field")
		}
	}

	return model.NewReading(changedAt, p.body.Snapshot(), p.subject.Snapshot(), raw, p.spaceName)
}

func (p *Parser) parseDate(value string) *time.Time {
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(value, "_", " ")), " ")
	parsed, err := time.ParseInLocation(DateLayout, normalized, p.location)
	if err != nil {
		log.Debug().Err(err).Str("date", value).Msg("Could not parse status date")
		return nil
	}

	year := p.now().In(p.location).Year()
	t := time.Date(year, parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, p.location)
	if t.Month() != parsed.Month() || t.Day() != parsed.Day() {
		// Feb 29 outside a leap year.
		log.Debug().Str("date", value).Int("year", year).Msg("Status date does not exist this year")
		return nil
	}
	return &t
}

func (p *Parser) parseSubject(value string) {
	key, val, ok := splitKeyVal(value)
	if !ok {
		log.Debug().Str("subject", value).Msg("Skipping malformed subject")
		return
	}
	key = strings.ToLower(key)
	val = strings.ToLower(val)

	if !p.subject.Has(key) || !isSubjectToken(val) {
		log.Debug().Str("key", key).Str("value", val).Msg("Skipping unrecognized subject sensor")
		return
	}
	if err := p.subject.Set(key, val); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Skipping subject sensor")
	}
}

func (p *Parser) parseBody(value string) {
	if value == "" {
		return
	}
	for _, field := range strings.Split(value, fieldSep) {
		key, val, ok := splitKeyVal(field)
		if !ok {
			log.Debug().Str("field", field).Msg("Skipping malformed body field")
			continue
		}
		key = strings.ToLower(key)
		val = strings.ToLower(val)

		if !p.body.Has(key) || (val != "true" && val != "false") {
			log.Debug().Str("key", key).Str("value", val).Msg("Skipping unrecognized body field")
			continue
		}
		if err := p.body.Set(key, val); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Skipping body field")
		}
	}
}

func isSubjectToken(v string) bool {
	switch v {
	case "true", "false", "on", "off":
		return true
	default:
		return false
	}
}

// splitKeyVal splits on the first separator only and trims both halves.
func splitKeyVal(s string) (string, string, bool) {
	key, val, found := strings.Cut(strings.TrimSpace(s), keyValSep)
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(val), true
}
