package tourvisor

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/providers/common"
)

// maxSearchDepth bounds every recursive walk over a response tree.
const maxSearchDepth = 16

var statusFields = []string{"state", "hotelsfound", "toursfound", "minprice", "progress", "timepassed"}

var (
	hotelListPaths = [][]string{
		{"data", "result", "hotel"},
		{"result", "hotel"},
		{"hotel"},
		{"hotels"},
		{"items"},
		{"results"},
	}
	offerListPaths = [][]string{
		{"tours", "tour"},
		{"tour"},
		{"tours"},
		{"packages"},
		{"offers"},
	}
)

var digitRunPattern = regexp.MustCompile(`\d{8,}`)

// ExtractStatus locates a status record in a decoded response. It never fails:
// when nothing status-shaped exists the conservative default is returned with
// found=false.
func ExtractStatus(tree *common.Node) (domain.SearchStatus, bool) {
	candidates := []*common.Node{
		tree.Path("data", "status"),
		tree.Get("status"),
	}
	for _, candidate := range candidates {
		if candidate.IsObject() && countStatusFields(candidate) > 0 {
			return statusFromNode(candidate), true
		}
	}
	if countStatusFields(tree) > 0 {
		return statusFromNode(tree), true
	}
	if nested := findStatusObject(tree, 0); nested != nil {
		return statusFromNode(nested), true
	}
	return domain.DefaultSearchStatus(), false
}

func countStatusFields(n *common.Node) int {
	if !n.IsObject() {
		return 0
	}
	count := 0
	for _, name := range statusFields {
		if n.Get(name) != nil {
			count++
		}
	}
	return count
}

func findStatusObject(n *common.Node, depth int) *common.Node {
	if n == nil || depth > maxSearchDepth {
		return nil
	}
	switch n.Kind {
	case common.KindObject:
		if depth > 0 && countStatusFields(n) >= 2 {
			return n
		}
		for _, key := range n.Keys {
			if found := findStatusObject(n.Fields[key], depth+1); found != nil {
				return found
			}
		}
	case common.KindArray:
		for _, item := range n.Items {
			if found := findStatusObject(item, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

func statusFromNode(n *common.Node) domain.SearchStatus {
	status := domain.SearchStatus{
		State:          parseState(common.Text(n.Get("state"))),
		HotelsFound:    common.Count(n.Get("hotelsfound")),
		ToursFound:     common.Count(n.Get("toursfound")),
		Progress:       common.Count(n.Get("progress")),
		ElapsedSeconds: common.Count(n.Get("timepassed")),
	}
	if status.Progress > 100 {
		status.Progress = 100
	}
	if price, ok := common.Float(n.Get("minprice")); ok {
		status.MinPrice = &price
	}
	return status
}

func parseState(raw string) domain.SearchState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "finished", "finish", "done", "completed":
		return domain.SearchStateFinished
	case "error", "failed", "fail":
		return domain.SearchStateError
	default:
		return domain.SearchStateSearching
	}
}

// ExtractHotels locates the hotel list in a decoded result response. Missing
// or malformed lists yield an empty slice.
func ExtractHotels(tree *common.Node) []domain.OfferedHotel {
	entries := locateHotelEntries(tree)
	hotels := make([]domain.OfferedHotel, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsObject() {
			continue
		}
		hotels = append(hotels, hotelFromNode(entry))
	}
	return hotels
}

// locateHotelEntries takes every object at the first known list path that
// holds any. Only the recursive fallback needs entries to look like hotels.
func locateHotelEntries(tree *common.Node) []*common.Node {
	for _, path := range hotelListPaths {
		node := tree.Path(path...)
		if node.IsNull() {
			continue
		}
		// A wrapper such as {"hotels":{"hotel":[...]}} holds the list one level down.
		if node.IsObject() && !looksLikeHotel(node) {
			if inner := node.Get("hotel"); !inner.IsNull() {
				node = inner
			}
		}
		if entries := objectEntries(node.List()); len(entries) > 0 {
			return entries
		}
	}
	return findHotelEntries(tree, 0)
}

func objectEntries(items []*common.Node) []*common.Node {
	entries := make([]*common.Node, 0, len(items))
	for _, item := range items {
		if item.IsObject() {
			entries = append(entries, item)
		}
	}
	return entries
}

func looksLikeHotel(n *common.Node) bool {
	return n.IsObject() && (n.Get("hotelcode") != nil || n.Get("hotelname") != nil)
}

func hasHotel(entries []*common.Node) bool {
	for _, entry := range entries {
		if looksLikeHotel(entry) {
			return true
		}
	}
	return false
}

func findHotelEntries(n *common.Node, depth int) []*common.Node {
	if n == nil || depth > maxSearchDepth {
		return nil
	}
	switch n.Kind {
	case common.KindArray:
		if hasHotel(n.Items) {
			return n.Items
		}
		for _, item := range n.Items {
			if found := findHotelEntries(item, depth+1); found != nil {
				return found
			}
		}
	case common.KindObject:
		if depth > 0 && looksLikeHotel(n) {
			return []*common.Node{n}
		}
		for _, key := range n.Keys {
			if found := findHotelEntries(n.Fields[key], depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

func hotelFromNode(n *common.Node) domain.OfferedHotel {
	rating, _ := common.Float(n.Get("hotelrating"))
	price, _ := common.Float(n.Get("price"))
	hotel := domain.OfferedHotel{
		Code:          common.Text(common.FirstField(n, "hotelcode", "code", "id")),
		Name:          common.Text(common.FirstField(n, "hotelname", "name")),
		Stars:         common.Count(n.Get("hotelstars")),
		Rating:        rating,
		Price:         price,
		CountryCode:   common.Text(n.Get("countrycode")),
		CountryName:   common.Text(n.Get("countryname")),
		RegionCode:    common.Text(n.Get("regioncode")),
		RegionName:    common.Text(n.Get("regionname")),
		SubregionCode: common.Text(n.Get("subregioncode")),
		Description:   common.CleanHTMLText(common.Text(n.Get("hoteldescription"))),
		FullDescLink:  common.Text(n.Get("fulldesclink")),
		ReviewLink:    common.Text(n.Get("reviewlink")),
		PictureLink:   common.Text(common.FirstField(n, "picturelink", "hotelpicture")),
		SeaDistance:   common.Count(n.Get("seadistance")),
		Offers:        extractOffers(n),
	}
	if hotel.Price <= 0 {
		for _, offer := range hotel.Offers {
			if hotel.Price <= 0 || offer.Price < hotel.Price {
				hotel.Price = offer.Price
			}
		}
	}
	return hotel
}

func extractOffers(hotel *common.Node) []domain.Offer {
	var entries []*common.Node
	for _, path := range offerListPaths {
		node := hotel.Path(path...)
		if node.IsNull() {
			continue
		}
		if node.IsObject() && node.Get("tour") != nil {
			continue
		}
		entries = node.List()
		break
	}

	offers := make([]domain.Offer, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsObject() {
			continue
		}
		offer, ok := offerFromNode(entry)
		if !ok {
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}

func offerFromNode(n *common.Node) (domain.Offer, bool) {
	price, ok := common.Float(n.Get("price"))
	if !ok || price <= 0 {
		return domain.Offer{}, false
	}
	fuel, _ := common.Float(n.Get("fuelcharge"))
	priceUE, _ := common.Float(n.Get("priceue"))
	return domain.Offer{
		ID:           common.Text(n.Get("tourid")),
		OperatorCode: common.Text(n.Get("operatorcode")),
		OperatorName: common.Text(n.Get("operatorname")),
		FlyDate:      common.Text(n.Get("flydate")),
		Nights:       common.Count(n.Get("nights")),
		Adults:       common.Count(n.Get("adults")),
		Children:     common.Count(n.Get("child")),
		Placement:    common.Text(n.Get("placement")),
		Meal:         common.Text(n.Get("meal")),
		MealName:     common.Text(n.Get("mealrussian")),
		Room:         common.Text(n.Get("room")),
		TourName:     common.Text(n.Get("tourname")),
		TourLink:     common.Text(n.Get("tourlink")),
		Price:        price,
		FuelCharge:   fuel,
		PriceUE:      priceUE,
		Currency:     common.Text(n.Get("currency")),
		Regular:      common.Flag(n.Get("regular")),
		Promo:        common.Flag(n.Get("promo")),
		OnRequest:    common.Flag(n.Get("onrequest")),
	}, true
}

// ExtractCorrelationID reads the job id from a submit response. The remote
// answers with a bare number, a requestid field at varying depths, or text
// that merely contains the id. Values ParseSearchJobID rejects are skipped so
// every returned id is addressable by the rest of the API.
func ExtractCorrelationID(raw []byte, tree *common.Node) (domain.SearchJobID, bool) {
	trimmed := bytes.TrimSpace(raw)
	if isDigits(trimmed) {
		if id, err := domain.ParseSearchJobID(string(trimmed)); err == nil {
			return id, true
		}
	}
	if id, ok := findRequestID(tree, 0); ok {
		return id, true
	}
	for _, match := range digitRunPattern.FindAll(raw, -1) {
		if id, err := domain.ParseSearchJobID(string(match)); err == nil {
			return id, true
		}
	}
	return "", false
}

func isDigits(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	for _, b := range value {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}

func findRequestID(n *common.Node, depth int) (domain.SearchJobID, bool) {
	if n == nil || depth > maxSearchDepth {
		return "", false
	}
	switch n.Kind {
	case common.KindObject:
		if value := common.Text(n.Get("requestid")); value != "" {
			if id, err := domain.ParseSearchJobID(value); err == nil {
				return id, true
			}
		}
		for _, key := range n.Keys {
			if id, ok := findRequestID(n.Fields[key], depth+1); ok {
				return id, true
			}
		}
	case common.KindArray:
		for _, item := range n.Items {
			if id, ok := findRequestID(item, depth+1); ok {
				return id, true
			}
		}
	}
	return "", false
}
