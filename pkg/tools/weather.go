package tools

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
)

// WeatherOptions points the weather tool at Open-Meteo compatible endpoints.
type WeatherOptions struct {
	GeocodingURL string
	ForecastURL  string
}

// WeatherReport is the current weather for a resolved place.
type WeatherReport struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windSpeed"`
	WeatherCode int     `json:"weatherCode"`
	Description string  `json:"description"`
}

// Weather looks up current conditions via Open-Meteo. No API key is needed.
type Weather struct {
	opts   WeatherOptions
	client *http.Client
	logger zerolog.Logger
}

func NewWeather(opts WeatherOptions, client *http.Client, logger zerolog.Logger) *Weather {
	if opts.GeocodingURL == "" {
		opts.GeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Weather{opts: opts, client: client, logger: logger}
}

func (w *Weather) Declarations() []toolmanager.Declaration {
	return []toolmanager.Declaration{{
		Name:        "getWeather",
		Description: "Gets the current weather for a city or place name.",
		Parameters: toolmanager.Object(
			toolmanager.Parameter{Name: "location", Type: "string", Description: "City or place name, e.g. \"Jakarta\".", Required: true},
		),
	}}
}

func (w *Weather) Execute(ctx context.Context, args map[string]any) (any, error) {
	location, err := requiredString(args, "location")
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("name", location)
	q.Set("count", "1")
	q.Set("format", "json")

	var geo struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := getJSON(ctx, w.client, "Geocoding", w.opts.GeocodingURL+"?"+q.Encode(), &geo); err != nil {
		return nil, err
	}
	if len(geo.Results) == 0 {
		return nil, toolmanager.ExecutionError("location not found: %s", location)
	}
	place := geo.Results[0]

	q = url.Values{}
	q.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', 4, 64))
	q.Set("current_weather", "true")

	var forecast struct {
		CurrentWeather *struct {
			Temperature float64 `json:"temperature"`
			WindSpeed   float64 `json:"windspeed"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err := getJSON(ctx, w.client, "Weather", w.opts.ForecastURL+"?"+q.Encode(), &forecast); err != nil {
		return nil, err
	}
	if forecast.CurrentWeather == nil {
		return nil, toolmanager.ExecutionError("Weather API returned no current conditions")
	}

	name := place.Name
	if place.Country != "" {
		name = strings.Join([]string{place.Name, place.Country}, ", ")
	}

	cw := forecast.CurrentWeather
	w.logger.Debug().Str("location", name).Int("code", cw.WeatherCode).Msg("Weather fetched")
	return WeatherReport{
		Location:    name,
		Temperature: cw.Temperature,
		WindSpeed:   cw.WindSpeed,
		WeatherCode: cw.WeatherCode,
		Description: describeWeatherCode(cw.WeatherCode),
	}, nil
}

// describeWeatherCode maps WMO weather interpretation codes to text.
func describeWeatherCode(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75:
		return "Snow fall"
	case 77:
		return "Snow grains"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95:
		return "Thunderstorm"
	case 96, 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown"
	}
}
