package domain

import (
	"strings"
	"time"
)

// SearchJobID is the opaque identifier the remote system issues for a submitted search.
type SearchJobID string

func (id SearchJobID) String() string {
	return string(id)
}

const maxJobIDLength = 32

// ParseSearchJobID accepts the numeric request ids the remote system issues.
func ParseSearchJobID(raw string) (SearchJobID, error) {
	value := strings.TrimSpace(raw)
	if value == "" || len(value) > maxJobIDLength {
		return "", ErrInvalidJobID
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", ErrInvalidJobID
		}
	}
	return SearchJobID(value), nil
}

type SearchState string

const (
	SearchStateSearching SearchState = "searching"
	SearchStateFinished  SearchState = "finished"
	SearchStateError     SearchState = "error"
)

// SearchStatus is one authoritative snapshot of a remote search.
type SearchStatus struct {
	State          SearchState `json:"state"`
	HotelsFound    int         `json:"hotelsfound"`
	ToursFound     int         `json:"toursfound"`
	MinPrice       *float64    `json:"minprice"`
	Progress       int         `json:"progress"`
	ElapsedSeconds int         `json:"timepassed"`
}

func DefaultSearchStatus() SearchStatus {
	return SearchStatus{State: SearchStateSearching}
}

func (s SearchStatus) Finished() bool {
	return s.State == SearchStateFinished
}

type Offer struct {
	ID           string  `json:"tourid"`
	OperatorCode string  `json:"operatorcode"`
	OperatorName string  `json:"operatorname"`
	FlyDate      string  `json:"flydate"`
	Nights       int     `json:"nights"`
	Adults       int     `json:"adults"`
	Children     int     `json:"child"`
	Placement    string  `json:"placement,omitempty"`
	Meal         string  `json:"meal"`
	MealName     string  `json:"mealrussian,omitempty"`
	Room         string  `json:"room,omitempty"`
	TourName     string  `json:"tourname,omitempty"`
	TourLink     string  `json:"tourlink,omitempty"`
	Price        float64 `json:"price"`
	FuelCharge   float64 `json:"fuelcharge"`
	PriceUE      float64 `json:"priceue,omitempty"`
	Currency     string  `json:"currency"`
	Regular      bool    `json:"regular"`
	Promo        bool    `json:"promo"`
	OnRequest    bool    `json:"onrequest"`
}

type OfferedHotel struct {
	Code          string  `json:"hotelcode"`
	Name          string  `json:"hotelname"`
	Stars         int     `json:"hotelstars"`
	Rating        float64 `json:"hotelrating"`
	Price         float64 `json:"price"`
	CountryCode   string  `json:"countrycode"`
	CountryName   string  `json:"countryname"`
	RegionCode    string  `json:"regioncode"`
	RegionName    string  `json:"regionname"`
	SubregionCode string  `json:"subregioncode,omitempty"`
	Description   string  `json:"hoteldescription,omitempty"`
	FullDescLink  string  `json:"fulldesclink,omitempty"`
	ReviewLink    string  `json:"reviewlink,omitempty"`
	PictureLink   string  `json:"picturelink,omitempty"`
	SeaDistance   int     `json:"seadistance,omitempty"`
	Offers        []Offer `json:"tours"`
}

// ResultPage is a normalised result response: the status embedded in it and the hotels.
type ResultPage struct {
	Status SearchStatus   `json:"status"`
	Hotels []OfferedHotel `json:"result"`
}

// SearchCriteria describes a tour search submission. Zero values mean "not set".
type SearchCriteria struct {
	Departure   int    `json:"departure"`
	Country     int    `json:"country"`
	DateFrom    string `json:"datefrom,omitempty"`
	DateTo      string `json:"dateto,omitempty"`
	NightsFrom  int    `json:"nightsfrom,omitempty"`
	NightsTo    int    `json:"nightsto,omitempty"`
	Adults      int    `json:"adults,omitempty"`
	Children    int    `json:"child,omitempty"`
	ChildAges   []int  `json:"childages,omitempty"`
	Stars       int    `json:"stars,omitempty"`
	StarsBetter *bool  `json:"starsbetter,omitempty"`
	Meal        int    `json:"meal,omitempty"`
	MealBetter  *bool  `json:"mealbetter,omitempty"`
	Rating      int    `json:"rating,omitempty"`
	Hotels      string `json:"hotels,omitempty"`
	HotelTypes  string `json:"hoteltypes,omitempty"`
	PriceType   int    `json:"pricetype,omitempty"`
	Regions     string `json:"regions,omitempty"`
	Subregions  string `json:"subregions,omitempty"`
	Operators   string `json:"operators,omitempty"`
	PriceFrom   int    `json:"pricefrom,omitempty"`
	PriceTo     int    `json:"priceto,omitempty"`
	Currency    int    `json:"currency,omitempty"`
	HideRegular bool   `json:"hideregular,omitempty"`
	Services    string `json:"services,omitempty"`
}

// RemoteDiagnostics reports the health of one remote operation.
type RemoteDiagnostics struct {
	Operation           string     `json:"operation"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs"`
	LastTimeout         bool       `json:"lastTimeout"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
	TimeoutCount        int64      `json:"timeoutCount"`
}

// ConnectionStats summarises live viewer sessions per job.
type ConnectionStats struct {
	TotalViewers int                 `json:"totalViewers"`
	Jobs         map[SearchJobID]int `json:"jobs"`
}
