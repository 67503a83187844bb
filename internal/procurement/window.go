package procurement

import (
	"fmt"
	"time"
)

const dateLayout = "20060102"

// Window is the inclusive date range sent as startDate/endDate.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window ending at end (YYYYMMDD, empty for today) and
// starting daysBack days earlier.
func NewWindow(end string, daysBack int, now time.Time) (Window, error) {
	if daysBack < 0 {
		return Window{}, fmt.Errorf("days back must not be negative, got %d", daysBack)
	}
	endDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if end != "" {
		t, err := time.ParseInLocation(dateLayout, end, now.Location())
		if err != nil {
			return Window{}, fmt.Errorf("invalid end date %q (want YYYYMMDD): %w", end, err)
		}
		endDate = t
	}
	return Window{Start: endDate.AddDate(0, 0, -daysBack), End: endDate}, nil
}

// StartParam returns the start date in upstream format.
func (w Window) StartParam() string { return w.Start.Format(dateLayout) }

// EndParam returns the end date in upstream format.
func (w Window) EndParam() string { return w.End.Format(dateLayout) }

func (w Window) String() string {
	return w.StartParam() + "-" + w.EndParam()
}
