package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/sta1300/notifier-backend/internal/utils"
)

//Occasion A day with an announcement.
type Occasion struct {
	// Date is either YYYY-MM-DD (that day only) or MM-DD (every year).
	Date  string `json:"date" validate:"required"`
	Title string `json:"title" validate:"required"`
	Body  string `json:"body" validate:"required"`
}

//Calendar Tells which occasion, if any, falls on a day.
type Calendar interface {
	OccasionOn(ctx context.Context, day time.Time) (*Occasion, error)
}

//FixedCalendar Occasions on fixed dates.
type FixedCalendar struct {
	occasions []Occasion
}

//NewFixedCalendar -_-
func NewFixedCalendar(occasions ...Occasion) (*FixedCalendar, error) {
	for _, o := range occasions {
		if err := utils.Validate.Struct(o); err != nil {
			return nil, fmt.Errorf("invalid occasion %q: %w", o.Date, err)
		}
		if !validDate(o.Date) {
			return nil, fmt.Errorf("invalid occasion date %q", o.Date)
		}
	}
	return &FixedCalendar{occasions: occasions}, nil
}

//LoadFixedCalendar Reads occasions from a JSON array file.
func LoadFixedCalendar(path string) (*FixedCalendar, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var occasions []Occasion
	if err := json.Unmarshal(data, &occasions); err != nil {
		return nil, fmt.Errorf("Error parsing calendar %v: %w", path, err)
	}

	return NewFixedCalendar(occasions...)
}

//OccasionOn The first occasion of the day. A dated occasion beats a yearly one.
func (c *FixedCalendar) OccasionOn(_ context.Context, day time.Time) (*Occasion, error) {
	full := day.Format("2006-01-02")
	yearly := day.Format("01-02")

	var found *Occasion
	for i := range c.occasions {
		o := c.occasions[i]
		if o.Date == full {
			return &o, nil
		}
		if o.Date == yearly && found == nil {
			found = &o
		}
	}
	return found, nil
}

func validDate(date string) bool {
	if _, err := time.Parse("2006-01-02", date); err == nil {
		return true
	}
	// leap day must be accepted as a yearly date
	_, err := time.Parse("2006-01-02", "2000-"+date)
	return err == nil
}
