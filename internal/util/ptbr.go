package util

import (
	"fmt"
	"time"
)

var ptWeekdays = [...]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

var ptMonths = [...]string{
	time.January:   "janeiro",
	time.February:  "fevereiro",
	time.March:     "março",
	time.April:     "abril",
	time.May:       "maio",
	time.June:      "junho",
	time.July:      "julho",
	time.August:    "agosto",
	time.September: "setembro",
	time.October:   "outubro",
	time.November:  "novembro",
	time.December:  "dezembro",
}

// WeekdayPtBR returns the Brazilian Portuguese weekday name.
func WeekdayPtBR(d time.Weekday) string { return ptWeekdays[d] }

// MonthPtBR returns the Brazilian Portuguese month name.
func MonthPtBR(m time.Month) string { return ptMonths[m] }

// FormatDateTimePtBR renders an instant the way it is presented to
// patients: "segunda-feira, 14 de setembro às 15:00".
func FormatDateTimePtBR(t time.Time) string {
	return fmt.Sprintf("%s, %02d de %s às %02d:%02d",
		ptWeekdays[t.Weekday()], t.Day(), ptMonths[t.Month()], t.Hour(), t.Minute())
}

// FormatDateTimeLongPtBR adds the year and is used for temporal context:
// "segunda-feira, 14 de setembro de 2026, 15:00".
func FormatDateTimeLongPtBR(t time.Time) string {
	return fmt.Sprintf("%s, %02d de %s de %d, %02d:%02d",
		ptWeekdays[t.Weekday()], t.Day(), ptMonths[t.Month()], t.Year(), t.Hour(), t.Minute())
}
