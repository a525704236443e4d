package googlemaps

// Directions API status values.
const (
	statusOK             = "OK"
	statusNotFound       = "NOT_FOUND"
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusOverDailyLimit = "OVER_DAILY_LIMIT"
	statusMaxWaypoints   = "MAX_WAYPOINTS_EXCEEDED"
	statusMaxRouteLength = "MAX_ROUTE_LENGTH_EXCEEDED"
)

// directionsResponse is the body of /maps/api/directions/json.
type directionsResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Routes       []route `json:"routes"`
}

type route struct {
	Summary          string   `json:"summary"`
	OverviewPolyline polyline `json:"overview_polyline"`
	Legs             []leg    `json:"legs"`
	Warnings         []string `json:"warnings,omitempty"`
}

type polyline struct {
	Points string `json:"points"`
}

type leg struct {
	Duration     textValue `json:"duration"`
	Distance     textValue `json:"distance"`
	StartAddress string    `json:"start_address"`
	EndAddress   string    `json:"end_address"`
}

// textValue pairs a numeric value (seconds or meters) with display text.
type textValue struct {
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}
