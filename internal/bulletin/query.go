package bulletin

import (
	"fmt"
	"time"

	"github.com/DeafMist/boletin-radar/internal/models"
)

// LookbackDays is how many days of bulletins a single search covers.
const LookbackDays = 26

const dateLayout = "2006-01-02"

// Query is a date-windowed search for one district.
type Query struct {
	District int
	Window   models.DateWindow
	Payload  string
}

// BuildQuery returns the search covering the LookbackDays calendar days up
// to and including now's date, evaluated in now's location.
func BuildQuery(district int, now time.Time) Query {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, 0, -LookbackDays)

	// The endpoint expects this exact key order, so url.Values is not used.
	payload := fmt.Sprintf("opcion=area&start=%s&end=%s&dato=&distritos=%d",
		start.Format(dateLayout), end.Format(dateLayout), district)

	return Query{
		District: district,
		Window:   models.DateWindow{Start: start, End: end},
		Payload:  payload,
	}
}
