package tourvisor

import (
	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/providers/common"
)

var (
	tourPaths = [][]string{
		{"data", "tour"},
		{"tour"},
		{"data"},
		{},
	}
	flightListPaths = [][]string{
		{"data", "flights"},
		{"flights"},
	}
	tourInfoPaths = [][]string{
		{"data", "tourinfo"},
		{"tourinfo"},
	}
)

// ExtractActualizedTour locates the offer in an actualize response. found is
// false when the remote returned no tour, e.g. for an expired offer.
func ExtractActualizedTour(tree *common.Node) (domain.ActualizedTour, bool) {
	for _, path := range tourPaths {
		if node := tree.Path(path...); looksLikeTour(node) {
			return tourFromNode(node), true
		}
	}
	if node := findTourObject(tree, 0); node != nil {
		return tourFromNode(node), true
	}
	return domain.ActualizedTour{}, false
}

func looksLikeTour(n *common.Node) bool {
	if !n.IsObject() {
		return false
	}
	if n.Get("tourid") != nil || n.Get("operatorcode") != nil {
		return true
	}
	return n.Get("price") != nil && n.Get("flydate") != nil
}

func findTourObject(n *common.Node, depth int) *common.Node {
	if n == nil || depth > maxSearchDepth {
		return nil
	}
	switch n.Kind {
	case common.KindObject:
		if looksLikeTour(n) {
			return n
		}
		for _, key := range n.Keys {
			if found := findTourObject(n.Fields[key], depth+1); found != nil {
				return found
			}
		}
	case common.KindArray:
		for _, item := range n.Items {
			if found := findTourObject(item, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

func tourFromNode(n *common.Node) domain.ActualizedTour {
	price, _ := common.Float(n.Get("price"))
	fuel, _ := common.Float(n.Get("fuelcharge"))
	priceUE, _ := common.Float(n.Get("priceue"))
	return domain.ActualizedTour{
		TourID:        common.Text(n.Get("tourid")),
		HotelCode:     common.Text(n.Get("hotelcode")),
		HotelName:     common.Text(n.Get("hotelname")),
		HotelStars:    common.Count(n.Get("hotelstars")),
		CountryName:   common.Text(n.Get("countryname")),
		RegionName:    common.Text(common.FirstField(n, "hotelregionname", "regionname")),
		DepartureName: common.Text(n.Get("departurename")),
		OperatorCode:  common.Text(n.Get("operatorcode")),
		OperatorName:  common.Text(n.Get("operatorname")),
		FlyDate:       common.Text(n.Get("flydate")),
		Nights:        common.Count(n.Get("nights")),
		Placement:     common.Text(n.Get("placement")),
		Adults:        common.Count(n.Get("adults")),
		Children:      common.Count(n.Get("child")),
		Meal:          common.Text(n.Get("meal")),
		MealName:      common.Text(n.Get("mealrussian")),
		Room:          common.Text(n.Get("room")),
		TourName:      common.Text(n.Get("tourname")),
		Price:         price,
		FuelCharge:    fuel,
		PriceUE:       priceUE,
		Currency:      common.Text(n.Get("currency")),
	}
}

// ExtractTourFlights reads the flight options and tour information of a
// detailed actualization. Missing parts yield an empty list and nil info.
func ExtractTourFlights(tree *common.Node) domain.TourFlights {
	result := domain.TourFlights{Flights: []domain.FlightOption{}}
	for _, path := range flightListPaths {
		node := tree.Path(path...)
		if node.IsNull() {
			continue
		}
		if node.IsObject() && node.Get("flight") != nil {
			node = node.Get("flight")
		}
		for _, entry := range node.List() {
			if entry.IsObject() {
				result.Flights = append(result.Flights, flightOptionFromNode(entry))
			}
		}
		break
	}
	for _, path := range tourInfoPaths {
		if node := tree.Path(path...); node.IsObject() {
			result.Info, _ = node.Value().(map[string]any)
			break
		}
	}
	return result
}

func flightOptionFromNode(n *common.Node) domain.FlightOption {
	option := domain.FlightOption{
		Forward:      flightsFromNode(n.Get("forward")),
		Backward:     flightsFromNode(n.Get("backward")),
		DateForward:  common.Text(n.Get("dateforward")),
		DateBackward: common.Text(n.Get("datebackward")),
		Default:      common.Flag(n.Get("isdefault")),
	}
	option.Price, option.Currency = amount(n.Get("price"))
	option.FuelCharge, _ = amount(n.Get("fuelcharge"))
	return option
}

// amount reads either a bare number or a {"value","currency"} object.
func amount(n *common.Node) (float64, string) {
	if n.IsObject() {
		value, _ := common.Float(n.Get("value"))
		return value, common.Text(n.Get("currency"))
	}
	value, _ := common.Float(n)
	return value, ""
}

func flightsFromNode(n *common.Node) []domain.Flight {
	if n.IsObject() && n.Get("flight") != nil {
		n = n.Get("flight")
	}
	flights := []domain.Flight{}
	for _, entry := range n.List() {
		if !entry.IsObject() {
			continue
		}
		flights = append(flights, domain.Flight{
			Company:   nameOf(entry.Get("company")),
			Number:    common.Text(entry.Get("number")),
			Plane:     common.Text(entry.Get("plane")),
			Departure: flightPointFromNode(entry.Get("departure")),
			Arrival:   flightPointFromNode(entry.Get("arrival")),
		})
	}
	return flights
}

func flightPointFromNode(n *common.Node) domain.FlightPoint {
	point := domain.FlightPoint{
		Date: common.Text(n.Get("date")),
		Time: common.Text(n.Get("time")),
	}
	port := n.Get("port")
	if port.IsObject() {
		point.Port = common.Text(common.FirstField(port, "id", "code"))
		point.PortName = common.Text(port.Get("name"))
	} else {
		point.Port = common.Text(port)
	}
	return point
}

// nameOf renders a reference that is either plain text or a {"id","name"} object.
func nameOf(n *common.Node) string {
	if n.IsObject() {
		return common.Text(common.FirstField(n, "name", "id"))
	}
	return common.Text(n)
}
