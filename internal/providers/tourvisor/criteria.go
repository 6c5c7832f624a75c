package tourvisor

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/t3m14/tours-sub000/internal/domain"
)

const dateLayout = "02.01.2006"

const (
	defaultDepartureDays = 7
	defaultWindowDays    = 7
	defaultNightsFrom    = 7
	defaultNightsTo      = 10
	defaultAdults        = 2
	maxChildren          = 3
)

// PrepareCriteria validates criteria and fills in the defaults the remote
// needs. It never talks to the network.
func PrepareCriteria(criteria domain.SearchCriteria, now time.Time) (domain.SearchCriteria, error) {
	if criteria.Departure <= 0 {
		return criteria, fmt.Errorf("%w: departure is required", domain.ErrInvalidCriteria)
	}
	if criteria.Country <= 0 {
		return criteria, fmt.Errorf("%w: country is required", domain.ErrInvalidCriteria)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from, err := parseDate(criteria.DateFrom, today.AddDate(0, 0, defaultDepartureDays))
	if err != nil {
		return criteria, fmt.Errorf("%w: datefrom: %v", domain.ErrInvalidCriteria, err)
	}
	to, err := parseDate(criteria.DateTo, today.AddDate(0, 0, defaultDepartureDays+defaultWindowDays))
	if err != nil {
		return criteria, fmt.Errorf("%w: dateto: %v", domain.ErrInvalidCriteria, err)
	}
	if to.Before(from) {
		to = from.AddDate(0, 0, defaultWindowDays)
	}
	criteria.DateFrom = from.Format(dateLayout)
	criteria.DateTo = to.Format(dateLayout)

	if criteria.NightsFrom <= 0 {
		criteria.NightsFrom = defaultNightsFrom
	}
	if criteria.NightsTo <= 0 {
		criteria.NightsTo = defaultNightsTo
	}
	if criteria.NightsTo < criteria.NightsFrom {
		criteria.NightsTo = criteria.NightsFrom
	}
	if criteria.Adults <= 0 {
		criteria.Adults = defaultAdults
	}
	if criteria.Children < 0 || criteria.Children > maxChildren {
		return criteria, fmt.Errorf("%w: child must be between 0 and %d", domain.ErrInvalidCriteria, maxChildren)
	}
	if len(criteria.ChildAges) > criteria.Children {
		criteria.ChildAges = criteria.ChildAges[:criteria.Children]
	}
	return criteria, nil
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fallback, nil
	}
	for _, layout := range []string{dateLayout, time.DateOnly} {
		if parsed, err := time.ParseInLocation(layout, value, fallback.Location()); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// criteriaParams renders prepared criteria as search.php query parameters.
func criteriaParams(c domain.SearchCriteria) url.Values {
	params := url.Values{}
	params.Set("departure", strconv.Itoa(c.Departure))
	params.Set("country", strconv.Itoa(c.Country))
	params.Set("datefrom", c.DateFrom)
	params.Set("dateto", c.DateTo)
	params.Set("nightsfrom", strconv.Itoa(c.NightsFrom))
	params.Set("nightsto", strconv.Itoa(c.NightsTo))
	params.Set("adults", strconv.Itoa(c.Adults))
	if c.Children > 0 {
		params.Set("child", strconv.Itoa(c.Children))
		for i, age := range c.ChildAges {
			params.Set("childage"+strconv.Itoa(i+1), strconv.Itoa(age))
		}
	}
	setInt(params, "stars", c.Stars)
	setBool(params, "starsbetter", c.StarsBetter)
	setInt(params, "meal", c.Meal)
	setBool(params, "mealbetter", c.MealBetter)
	setInt(params, "rating", c.Rating)
	setString(params, "hotels", c.Hotels)
	setString(params, "hoteltypes", c.HotelTypes)
	setInt(params, "pricetype", c.PriceType)
	setString(params, "regions", c.Regions)
	setString(params, "subregions", c.Subregions)
	setString(params, "operators", c.Operators)
	setInt(params, "pricefrom", c.PriceFrom)
	setInt(params, "priceto", c.PriceTo)
	setInt(params, "currency", c.Currency)
	if c.HideRegular {
		params.Set("hideregular", "1")
	}
	setString(params, "services", c.Services)
	return params
}

func setInt(params url.Values, key string, value int) {
	if value > 0 {
		params.Set(key, strconv.Itoa(value))
	}
}

func setString(params url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		params.Set(key, value)
	}
}

func setBool(params url.Values, key string, value *bool) {
	if value == nil {
		return
	}
	if *value {
		params.Set(key, "1")
		return
	}
	params.Set(key, "0")
}
