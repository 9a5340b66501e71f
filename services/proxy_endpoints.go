package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ProxyEndpoints exposes the external data sources (weather, web search,
// calendar, geocoding) to the frontend behind the auth middleware, so API
// keys never leave the backend.
type ProxyEndpoints struct {
	weather  *WeatherService
	search   *SearchService
	calendar *CalendarService
	geo      *GeoService
}

func NewProxyEndpoints(weather *WeatherService, search *SearchService, calendar *CalendarService, geo *GeoService) *ProxyEndpoints {
	return &ProxyEndpoints{
		weather:  weather,
		search:   search,
		calendar: calendar,
		geo:      geo,
	}
}

func (e *ProxyEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/proxy", func(r chi.Router) {
		r.Get("/weather", e.WeatherHandler)
		r.Get("/forecast", e.ForecastHandler)
		r.Get("/search", e.SearchHandler)
		r.Get("/calendar/events", e.CalendarEventsHandler)
		r.Get("/calendar/connect/url", e.CalendarConnectURLHandler)
		r.Post("/calendar/connect", e.CalendarConnectHandler)
		r.Get("/geocode", e.GeocodeHandler)
		r.Get("/geocode/reverse", e.ReverseGeocodeHandler)
	})
}

func coordParams(r *http.Request) (float64, float64, bool) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	return lat, lon, latErr == nil && lonErr == nil
}

func proxyError(w http.ResponseWriter, what string, err error) {
	slog.Error("Upstream request failed", "source", what, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(w).Encode(map[string]interface{}{"error": what + " unavailable"})
}

func (e *ProxyEndpoints) WeatherHandler(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordParams(r)
	if !ok {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}

	body, err := e.weather.Current(r.Context(), lat, lon, r.URL.Query().Get("units"))
	if err != nil {
		proxyError(w, "weather", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (e *ProxyEndpoints) ForecastHandler(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordParams(r)
	if !ok {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}

	body, err := e.weather.Forecast(r.Context(), lat, lon, r.URL.Query().Get("units"))
	if err != nil {
		proxyError(w, "forecast", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (e *ProxyEndpoints) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	results, err := e.search.Search(r.Context(), query)
	if err != nil {
		proxyError(w, "search", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
}

func (e *ProxyEndpoints) CalendarEventsHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	maxResults := int64(10)
	if raw := r.URL.Query().Get("max"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 && n <= 50 {
			maxResults = n
		}
	}

	events, err := e.calendar.UpcomingEvents(r.Context(), user.ID, maxResults)
	if err != nil {
		proxyError(w, "calendar", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"events": events})
}

func (e *ProxyEndpoints) CalendarConnectURLHandler(w http.ResponseWriter, r *http.Request) {
	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		http.Error(w, "redirect_uri is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"url": e.calendar.ConnectURL(redirectURI, r.URL.Query().Get("state")),
	})
}

type calendarConnectRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

func (e *ProxyEndpoints) CalendarConnectHandler(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req calendarConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	if err := e.calendar.Connect(r.Context(), user.ID, req.Code, req.RedirectURI); err != nil {
		proxyError(w, "calendar connect", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"message": "Calendar connected"})
}

func (e *ProxyEndpoints) GeocodeHandler(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	zip := r.URL.Query().Get("zip")
	if address == "" && zip == "" {
		http.Error(w, "address or zip is required", http.StatusBadRequest)
		return
	}

	var (
		loc interface{}
		err error
	)
	if zip != "" {
		loc, err = e.geo.GeocodeZip(r.Context(), zip, r.URL.Query().Get("country"))
	} else {
		loc, err = e.geo.Geocode(r.Context(), address)
	}
	if err != nil {
		proxyError(w, "geocode", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"location": loc})
}

func (e *ProxyEndpoints) ReverseGeocodeHandler(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordParams(r)
	if !ok {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}

	loc, err := e.geo.Reverse(r.Context(), lat, lon)
	if err != nil {
		proxyError(w, "geocode", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"location": loc})
}
