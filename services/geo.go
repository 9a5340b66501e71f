package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// GeoService resolves addresses and coordinates through the OpenWeather
// geocoding API and timezone data through the Google Time Zone API. Every
// call carries a bounded timeout.
type GeoService struct {
	geocode  *resty.Client
	timezone *resty.Client
	apiKey   string
	tzKey    string
}

type GeoLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Country   string  `json:"country"`
	State     string  `json:"state,omitempty"`
}

type TimezoneInfo struct {
	ZoneID    string     `json:"zone_id"`
	RawOffset int        `json:"raw_offset"` // Seconds east of UTC, excluding DST
	DSTOffset int        `json:"dst_offset"` // Additional seconds while DST is in effect
	DSTStart  *time.Time `json:"dst_start,omitempty"`
	DSTEnd    *time.Time `json:"dst_end,omitempty"`
}

func NewGeoService(weatherAPIKey, googleAPIKey string) *GeoService {
	return &GeoService{
		geocode: resty.New().
			SetBaseURL("https://api.openweathermap.org/geo/1.0").
			SetTimeout(10 * time.Second),
		timezone: resty.New().
			SetBaseURL("https://maps.googleapis.com/maps/api").
			SetTimeout(10 * time.Second),
		apiKey: weatherAPIKey,
		tzKey:  googleAPIKey,
	}
}

// Geocode resolves a free-form address to coordinates.
func (g *GeoService) Geocode(ctx context.Context, address string) (*GeoLocation, error) {
	var out []GeoLocation
	resp, err := g.geocode.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     address,
			"limit": "1",
			"appid": g.apiKey,
		}).
		SetResult(&out).
		Get("/direct")
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("geocode status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no match for address %q", address)
	}
	return &out[0], nil
}

// GeocodeZip resolves a postal code to coordinates.
func (g *GeoService) GeocodeZip(ctx context.Context, zip, country string) (*GeoLocation, error) {
	if country == "" {
		country = "US"
	}
	var out GeoLocation
	resp, err := g.geocode.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"zip":   zip + "," + country,
			"appid": g.apiKey,
		}).
		SetResult(&out).
		Get("/zip")
	if err != nil {
		return nil, fmt.Errorf("zip geocode request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("zip geocode status %d: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

// Reverse resolves coordinates back to a place name.
func (g *GeoService) Reverse(ctx context.Context, lat, lon float64) (*GeoLocation, error) {
	var out []GeoLocation
	resp, err := g.geocode.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%f", lat),
			"lon":   fmt.Sprintf("%f", lon),
			"limit": "1",
			"appid": g.apiKey,
		}).
		SetResult(&out).
		Get("/reverse")
	if err != nil {
		return nil, fmt.Errorf("reverse geocode request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no match for %f,%f", lat, lon)
	}
	return &out[0], nil
}

type timezoneResponse struct {
	Status       string `json:"status"`
	TimeZoneID   string `json:"timeZoneId"`
	RawOffset    int    `json:"rawOffset"`
	DSTOffset    int    `json:"dstOffset"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// TimezoneFor looks up the timezone for a coordinate and derives the DST
// window for the current year from the zone database.
func (g *GeoService) TimezoneFor(ctx context.Context, lat, lon float64) (*TimezoneInfo, error) {
	var out timezoneResponse
	resp, err := g.timezone.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"location":  fmt.Sprintf("%f,%f", lat, lon),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
			"key":       g.tzKey,
		}).
		SetResult(&out).
		Get("/timezone/json")
	if err != nil {
		return nil, fmt.Errorf("timezone request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || out.Status != "OK" {
		return nil, fmt.Errorf("timezone status %d/%s: %s", resp.StatusCode(), out.Status, out.ErrorMessage)
	}

	info := &TimezoneInfo{
		ZoneID:    out.TimeZoneID,
		RawOffset: out.RawOffset,
		DSTOffset: out.DSTOffset,
	}
	if loc, err := time.LoadLocation(out.TimeZoneID); err == nil {
		start, end := dstWindow(loc, time.Now().Year())
		info.DSTStart = start
		info.DSTEnd = end
	}
	return info, nil
}

// dstWindow scans the year for the zone's DST transitions. Zones without DST
// return nil bounds.
func dstWindow(loc *time.Location, year int) (*time.Time, *time.Time) {
	var start, end *time.Time
	prev := time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	_, prevOffset := prev.Zone()

	for d := prev.AddDate(0, 0, 1); d.Year() == year; d = d.AddDate(0, 0, 1) {
		_, offset := d.Zone()
		if offset > prevOffset && start == nil {
			t := d
			start = &t
		}
		if offset < prevOffset && start != nil && end == nil {
			t := d
			end = &t
		}
		prevOffset = offset
	}
	return start, end
}
