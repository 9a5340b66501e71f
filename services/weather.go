package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// WeatherService is a thin proxy over the OpenWeather current-conditions and
// forecast endpoints: translate parameters, relay the JSON response.
type WeatherService struct {
	client *resty.Client
	apiKey string
}

func NewWeatherService(apiKey string) *WeatherService {
	return &WeatherService{
		client: resty.New().
			SetBaseURL("https://api.openweathermap.org/data/2.5").
			SetTimeout(10 * time.Second),
		apiKey: apiKey,
	}
}

func (w *WeatherService) get(ctx context.Context, path string, lat, lon float64, units string) (json.RawMessage, error) {
	if units == "" {
		units = "imperial"
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%f", lat),
			"lon":   fmt.Sprintf("%f", lon),
			"units": units,
			"appid": w.apiKey,
		}).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("weather status %d: %s", resp.StatusCode(), resp.String())
	}
	return json.RawMessage(resp.Body()), nil
}

// Current returns current conditions for a coordinate.
func (w *WeatherService) Current(ctx context.Context, lat, lon float64, units string) (json.RawMessage, error) {
	return w.get(ctx, "/weather", lat, lon, units)
}

// Forecast returns the multi-day forecast for a coordinate.
func (w *WeatherService) Forecast(ctx context.Context, lat, lon float64, units string) (json.RawMessage, error) {
	return w.get(ctx, "/forecast", lat, lon, units)
}
