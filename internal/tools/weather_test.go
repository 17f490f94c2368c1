//go:build !integration

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOpenMeteo(t *testing.T, geo, forecast string, forecastStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "" {
			t.Errorf("geocoding request without name")
		}
		_, _ = w.Write([]byte(geo))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		if forecastStatus != http.StatusOK {
			w.WriteHeader(forecastStatus)
			return
		}
		_, _ = w.Write([]byte(forecast))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func callWeather(t *testing.T, srv *httptest.Server, city string) weatherResult {
	t.Helper()
	tool := NewWeatherTool(WeatherConfig{
		GeocodingURL: srv.URL + "/v1/search",
		ForecastURL:  srv.URL + "/v1/forecast",
	})
	out, err := tool.Call(context.Background(), map[string]any{"cityName": city})
	if err != nil {
		t.Fatalf("weather tool must not return call errors, got %v", err)
	}
	var res weatherResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("bad output %s: %v", out, err)
	}
	return res
}

func TestWeatherTool_Success(t *testing.T) {
	srv := newOpenMeteo(t,
		`{"results":[{"name":"Tokyo","latitude":35.6895,"longitude":139.69171,"country":"Japan","timezone":"Asia/Tokyo"}]}`,
		`{"current":{"temperature_2m":18.5,"weather_code":0,"relative_humidity_2m":45,"wind_speed_10m":12.5},"timezone":"Asia/Tokyo"}`,
		http.StatusOK)

	res := callWeather(t, srv, " Tokyo ")
	if !res.Success || res.Data == nil {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Data.CityName != "Tokyo" || res.Data.Temperature != 18.5 || res.Data.Condition != "clear sky" {
		t.Fatalf("unexpected data: %+v", res.Data)
	}
}

func TestWeatherTool_Failures(t *testing.T) {
	srv := newOpenMeteo(t, `{}`, ``, http.StatusOK)
	if res := callWeather(t, srv, "Atlantis"); res.Success || !strings.Contains(res.Error, "not found") {
		t.Fatalf("expected not found, got %+v", res)
	}
	if res := callWeather(t, srv, "   "); res.Success || res.Error == "" {
		t.Fatalf("expected empty city error, got %+v", res)
	}

	broken := newOpenMeteo(t, `{"results":[{"name":"Paris","latitude":48.85,"longitude":2.35}]}`, ``, http.StatusBadGateway)
	if res := callWeather(t, broken, "Paris"); res.Success || !strings.Contains(res.Error, "502") {
		t.Fatalf("expected upstream error, got %+v", res)
	}
}

func TestWeatherCondition(t *testing.T) {
	if WeatherCondition(95) != "thunderstorm" {
		t.Fatalf("code 95 = %q", WeatherCondition(95))
	}
	if WeatherCondition(1234) != "unknown" {
		t.Fatalf("unmapped code should be unknown")
	}
}
