package caldav

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// iCalendar (RFC 5545) emission. Events are serialized by hand rather than
// through a library encoder because the calendar server this talks to is
// picky about the exact shape of the object: property order, CRLF endings,
// and 75-octet folding all matter for interoperability.

const (
	prodID    = "-//Clinicabot//Margot Agendamento v1.4//PT"
	uidDomain = "clinicabot.margot"

	// icalStampUTC is the DTSTAMP/UID timestamp layout, always UTC.
	icalStampUTC = "20060102T150405Z"
	// icalLocal is the DTSTART/DTEND layout, local wall-clock time with the
	// zone carried by a TZID parameter.
	icalLocal = "20060102T150405"

	// maxLineOctets is the RFC 5545 physical line limit, excluding CRLF.
	maxLineOctets = 75
)

// EventDraft holds the fields of an appointment about to be written to the
// calendar.
type EventDraft struct {
	Start       time.Time
	End         time.Time
	PatientName string
	Phone       string
	Email       string
	Procedure   string
	Indication  string
}

// Summary returns the event summary by the clinic's naming convention.
func (d EventDraft) Summary() string {
	return "Consulta - " + d.PatientName
}

// indicationIsNoise reports whether the collected indication amounts to
// "nobody referred me" and should be left out of the event description.
func indicationIsNoise(indication string) bool {
	switch strings.ToLower(strings.TrimSpace(indication)) {
	case "", "não indicado", "nao indicado", "ninguem", "ninguém", "nao":
		return true
	}
	return false
}

// description assembles the free-text description from the collected patient
// fields, one field per line.
func (d EventDraft) description() string {
	parts := []string{"Paciente: " + d.PatientName}
	if d.Phone != "" {
		parts = append(parts, "Contato: "+d.Phone)
	}
	if d.Email != "" {
		parts = append(parts, "Email: "+d.Email)
	}
	if d.Procedure != "" {
		parts = append(parts, "Interesse: "+d.Procedure)
	}
	if !indicationIsNoise(d.Indication) {
		parts = append(parts, "Indicação: "+d.Indication)
	}
	return strings.Join(parts, "\n")
}

// NewEventUID generates a globally unique event identifier: UTC timestamp,
// random token, domain suffix.
func NewEventUID(now time.Time) string {
	return fmt.Sprintf("%s-%s@%s", now.UTC().Format(icalStampUTC), uuid.New(), uidDomain)
}

// escapeText escapes a TEXT property value: commas and semicolons get a
// backslash, newlines become the literal two-character sequence \n.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, ";", `\;`)
	s = strings.ReplaceAll(s, "\r\n", `\n`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// foldLine folds one logical content line so no physical line exceeds 75
// octets, indenting continuation lines with a single space. Splits never
// land inside a multi-byte UTF-8 sequence. Each physical line ends in CRLF.
func foldLine(line string) string {
	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n")
		line = " " + line[cut:]
		// Continuation lines carry the leading space within the limit.
	}
	b.WriteString(line)
	b.WriteString("\r\n")
	return b.String()
}

func isRuneStart(c byte) bool { return c&0xC0 != 0x80 }

// EncodeEvent serializes the draft as a complete VCALENDAR object. The
// stamp parameterizes DTSTAMP and must already be the creation instant;
// Start/End are rendered in loc's wall-clock time with a TZID parameter,
// omitted only when loc is UTC.
func EncodeEvent(d EventDraft, uid string, stamp time.Time, loc *time.Location) []byte {
	tzid := ""
	if loc.String() != "UTC" {
		tzid = ";TZID=" + loc.String()
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:" + stamp.UTC().Format(icalStampUTC),
		"DTSTART" + tzid + ":" + d.Start.In(loc).Format(icalLocal),
		"DTEND" + tzid + ":" + d.End.In(loc).Format(icalLocal),
		"SUMMARY:" + d.Summary(),
		"DESCRIPTION:" + escapeText(d.description()),
		"STATUS:CONFIRMED",
		"TRANSP:OPAQUE",
		"SEQUENCE:0",
		"END:VEVENT",
		"END:VCALENDAR",
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(foldLine(line))
	}
	return []byte(b.String())
}
