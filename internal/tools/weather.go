package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	WeatherToolName = "getWeather"

	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// WMO weather interpretation codes, see https://open-meteo.com/en/docs#weathervariables
var weatherCodes = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snow",
	73: "snow",
	75: "heavy snow",
	77: "snow grains",
	80: "slight rain showers",
	81: "rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// WeatherCondition maps a WMO code to a description.
func WeatherCondition(code int) string {
	if c, ok := weatherCodes[code]; ok {
		return c
	}
	return "unknown"
}

// WeatherConfig configures the Open-Meteo client. Zero values fall back to the public endpoints.
type WeatherConfig struct {
	GeocodingURL string
	ForecastURL  string
	Language     string
	Timeout      time.Duration
}

type weatherClient struct {
	http     *http.Client
	geoURL   string
	fcURL    string
	language string
}

type weatherData struct {
	CityName    string  `json:"cityName"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Timezone    string  `json:"timezone"`
}

type weatherResult struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Data    *weatherData `json:"data,omitempty"`
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Timezone string `json:"timezone"`
}

var errCityNotFound = errors.New("city not found")

// NewWeatherTool returns the Open-Meteo backed weather tool. Lookup failures are
// reported to the engine as {"success":false,...} output, never as call errors.
func NewWeatherTool(cfg WeatherConfig) Tool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &weatherClient{
		http:     &http.Client{Timeout: cfg.Timeout},
		geoURL:   firstNonEmpty(cfg.GeocodingURL, DefaultGeocodingURL),
		fcURL:    firstNonEmpty(cfg.ForecastURL, DefaultForecastURL),
		language: firstNonEmpty(cfg.Language, "en"),
	}
	return Tool{
		Descriptor: Descriptor{
			Name:        WeatherToolName,
			Description: "Returns the current weather for a specified city including temperature, conditions, humidity, and wind speed. Requires a cityName parameter.",
			Params: []Param{
				{Name: "cityName", Type: "string", Required: true,
					Description: "The name of the city to get weather for (e.g., 'Tokyo', '東京', 'Paris', 'New York')"},
			},
			WhenToUse: []string{
				`User asks about weather in a specific city ("What's the weather in Tokyo?", "東京の天気は？", "大阪は今何度？")`,
			},
			WhenNotToUse: []string{
				"Climate or weather history questions",
				"No city can be inferred from the question",
			},
			Examples: []Example{
				{
					Query:      "What's the weather in Tokyo?",
					ToolOutput: `{"success":true,"data":{"cityName":"Tokyo","country":"Japan","temperature":18.5,"condition":"clear sky","humidity":45,"windSpeed":12.5,"timezone":"Asia/Tokyo"}}`,
					Answer:     "Tokyo is at 18.5°C with clear skies right now. Humidity is 45% and the wind is 12.5 km/h.",
				},
			},
		},
		Call: c.call,
	}
}

func (c *weatherClient) call(ctx context.Context, args map[string]any) (string, error) {
	city, _ := args["cityName"].(string)
	city = strings.TrimSpace(city)
	if city == "" {
		return encodeWeather(weatherResult{Error: "please provide a city name"})
	}

	data, err := c.lookup(ctx, city)
	switch {
	case errors.Is(err, errCityNotFound):
		return encodeWeather(weatherResult{Error: fmt.Sprintf("city %q was not found", city)})
	case err != nil:
		return encodeWeather(weatherResult{Error: "failed to fetch weather: " + err.Error()})
	}
	return encodeWeather(weatherResult{Success: true, Data: data})
}

func (c *weatherClient) lookup(ctx context.Context, city string) (*weatherData, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", c.language)
	var geo geocodingResponse
	if err := c.getJSON(ctx, c.geoURL+"?"+q.Encode(), "geocoding", &geo); err != nil {
		return nil, err
	}
	if len(geo.Results) == 0 {
		return nil, errCityNotFound
	}
	loc := geo.Results[0]

	q = url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m,weather_code,relative_humidity_2m,wind_speed_10m")
	q.Set("timezone", "auto")
	var fc forecastResponse
	if err := c.getJSON(ctx, c.fcURL+"?"+q.Encode(), "weather", &fc); err != nil {
		return nil, err
	}

	return &weatherData{
		CityName:    loc.Name,
		Country:     loc.Country,
		Temperature: fc.Current.Temperature,
		Condition:   WeatherCondition(fc.Current.WeatherCode),
		Humidity:    fc.Current.Humidity,
		WindSpeed:   fc.Current.WindSpeed,
		Timezone:    fc.Timezone,
	}, nil
}

func (c *weatherClient) getJSON(ctx context.Context, u, api string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s API error: %d", api, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func encodeWeather(r weatherResult) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
