package checkout

import (
	"fmt"
	"time"

	"tienda/internal/models"
	"tienda/internal/validation"

	"github.com/go-playground/validator/v10"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	pickupOpensAt  = 9 * 60  // 09:00
	pickupClosesAt = 17 * 60 // 17:00, exclusive
)

// Details are the personal and delivery fields of the checkout form.
type Details struct {
	Name  string `json:"name" validate:"required"`
	DNI   string `json:"dni" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`

	DeliveryMethod models.DeliveryMethod `json:"delivery_method" validate:"required,oneof=pickup carrier"`

	Street       string `json:"street,omitempty" validate:"required_if=DeliveryMethod carrier"`
	Number       string `json:"number,omitempty" validate:"required_if=DeliveryMethod carrier"`
	Floor        string `json:"floor,omitempty"`
	Locality     string `json:"locality,omitempty" validate:"required_if=DeliveryMethod carrier"`
	Province     string `json:"province,omitempty" validate:"required_if=DeliveryMethod carrier"`
	PostalCode   string `json:"postal_code,omitempty" validate:"required_if=DeliveryMethod carrier"`
	Instructions string `json:"instructions,omitempty"`

	PickupDate string `json:"pickup_date,omitempty" validate:"required_if=DeliveryMethod pickup"`
	PickupTime string `json:"pickup_time,omitempty" validate:"required_if=DeliveryMethod pickup"`
}

// DetailsValidator checks checkout form details against the store calendar.
type DetailsValidator struct {
	validate *validator.Validate
	loc      *time.Location
}

// NewDetailsValidator creates a validator that interprets pickup dates and
// times in loc.
func NewDetailsValidator(loc *time.Location) *DetailsValidator {
	if loc == nil {
		loc = time.UTC
	}
	return &DetailsValidator{
		validate: validation.New(),
		loc:      loc,
	}
}

// Validate returns nil when d is complete, or a *validation.Error naming
// every offending field. now decides which pickup dates are in the past.
func (v *DetailsValidator) Validate(d Details, now time.Time) error {
	verr := &validation.Error{}
	verr.Merge(validation.Struct(v.validate, d))

	if d.DeliveryMethod == models.DeliveryPickup {
		if d.PickupDate != "" {
			if msg := v.checkDate(d.PickupDate, now); msg != "" {
				verr.Add("pickup_date", msg)
			}
		}
		if d.PickupTime != "" {
			if msg := checkTime(d.PickupTime); msg != "" {
				verr.Add("pickup_time", msg)
			}
		}
	}
	return verr.OrNil()
}

func (v *DetailsValidator) checkDate(raw string, now time.Time) string {
	date, err := time.ParseInLocation(dateLayout, raw, v.loc)
	if err != nil {
		return "must be a date formatted YYYY-MM-DD"
	}
	local := now.In(v.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, v.loc)
	if date.Before(today) {
		return "must be today or a later date"
	}
	return ""
}

func checkTime(raw string) string {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return "must be a time formatted HH:MM"
	}
	minutes := t.Hour()*60 + t.Minute()
	if minutes < pickupOpensAt || minutes >= pickupClosesAt {
		return fmt.Sprintf("must be between %s and %s", clock(pickupOpensAt), clock(pickupClosesAt))
	}
	return ""
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// PickupNote is the order note recorded for pickups without instructions.
func (d Details) PickupNote() string {
	if d.Instructions != "" || d.DeliveryMethod != models.DeliveryPickup {
		return d.Instructions
	}
	return fmt.Sprintf("Retiro: %s %s", d.PickupDate, d.PickupTime)
}
