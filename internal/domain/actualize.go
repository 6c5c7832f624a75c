package domain

import (
	"fmt"
	"strings"
)

const maxTourIDLength = 64

// Request check modes of an actualization.
const (
	ActualizeAuto   = 0
	ActualizeForce  = 1
	ActualizeCached = 2
)

// ParseTourID accepts the offer ids found in result pages: letters, digits,
// '-' and '_'.
func ParseTourID(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" || len(value) > maxTourIDLength {
		return "", ErrInvalidTourID
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return "", ErrInvalidTourID
		}
	}
	return value, nil
}

// ActualizeRequest asks the remote to re-check price and availability of one offer.
type ActualizeRequest struct {
	TourID       string `json:"tour_id"`
	RequestCheck int    `json:"request_check"`
	Currency     int    `json:"currency,omitempty"`
}

func (r ActualizeRequest) Validate() error {
	if _, err := ParseTourID(r.TourID); err != nil {
		return err
	}
	if r.RequestCheck < ActualizeAuto || r.RequestCheck > ActualizeCached {
		return fmt.Errorf("%w: request_check must be 0, 1 or 2", ErrInvalidCriteria)
	}
	if r.Currency < 0 {
		return fmt.Errorf("%w: currency must not be negative", ErrInvalidCriteria)
	}
	return nil
}

// ActualizedTour is the current state of one offer as confirmed by the operator.
type ActualizedTour struct {
	TourID        string  `json:"tourid"`
	HotelCode     string  `json:"hotelcode"`
	HotelName     string  `json:"hotelname"`
	HotelStars    int     `json:"hotelstars"`
	CountryName   string  `json:"countryname"`
	RegionName    string  `json:"regionname"`
	DepartureName string  `json:"departurename,omitempty"`
	OperatorCode  string  `json:"operatorcode"`
	OperatorName  string  `json:"operatorname"`
	FlyDate       string  `json:"flydate"`
	Nights        int     `json:"nights"`
	Placement     string  `json:"placement,omitempty"`
	Adults        int     `json:"adults"`
	Children      int     `json:"child"`
	Meal          string  `json:"meal"`
	MealName      string  `json:"mealrussian,omitempty"`
	Room          string  `json:"room,omitempty"`
	TourName      string  `json:"tourname,omitempty"`
	Price         float64 `json:"price"`
	FuelCharge    float64 `json:"fuelcharge"`
	PriceUE       float64 `json:"priceue,omitempty"`
	Currency      string  `json:"currency"`
}

type FlightPoint struct {
	Port     string `json:"port"`
	PortName string `json:"portname,omitempty"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type Flight struct {
	Company   string      `json:"company"`
	Number    string      `json:"number"`
	Plane     string      `json:"plane,omitempty"`
	Departure FlightPoint `json:"departure"`
	Arrival   FlightPoint `json:"arrival"`
}

// FlightOption is one outbound and return flight combination offered for a tour.
type FlightOption struct {
	Forward      []Flight `json:"forward"`
	Backward     []Flight `json:"backward"`
	DateForward  string   `json:"dateforward"`
	DateBackward string   `json:"datebackward"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency,omitempty"`
	FuelCharge   float64  `json:"fuelcharge,omitempty"`
	Default      bool     `json:"isdefault"`
}

// TourFlights is the detailed actualization: flight options plus free-form
// tour information (flags, extra payments) passed through as decoded.
type TourFlights struct {
	Flights []FlightOption `json:"flights"`
	Info    map[string]any `json:"tourinfo,omitempty"`
}

// TourDetails combines the actualized offer with its flights.
type TourDetails struct {
	Tour    ActualizedTour `json:"tour"`
	Flights []FlightOption `json:"flights"`
	Info    map[string]any `json:"tourinfo,omitempty"`
}
