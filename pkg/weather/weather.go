// Package weather looks up current conditions for a free-text place name.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/raincheckbot/raincheck/relay/contract"
)

const maxResponseSizeBytes = 1 << 20

// Conditions that count as rain for the umbrella verdict.
var rainConditions = map[string]bool{
	"Rain":         true,
	"Drizzle":      true,
	"Thunderstorm": true,
}

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openweathermap.org/data/2.5/weather"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ contractx.WeatherService = (*Client)(nil)

type apiResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("weather base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid weather base url: %w", err)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("weather api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Current fetches a fresh summary for the location. No caching: a saved
// location always triggers a new lookup.
func (c *Client) Current(ctx context.Context, location string) (contractx.WeatherSummary, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return contractx.WeatherSummary{}, fmt.Errorf("%w: location is empty", contractx.ErrLookup)
	}

	query := url.Values{}
	query.Set("q", location)
	query.Set("units", "metric")
	query.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return contractx.WeatherSummary{}, fmt.Errorf("%w: build weather request: %v", contractx.ErrLookup, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.WeatherSummary{}, fmt.Errorf("%w: execute weather request: %v", contractx.ErrLookup, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.WeatherSummary{}, fmt.Errorf("%w: read weather response: %v", contractx.ErrLookup, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.WeatherSummary{}, fmt.Errorf("%w: weather http status=%d body=%s", contractx.ErrLookup, resp.StatusCode, string(raw))
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.WeatherSummary{}, fmt.Errorf("%w: decode weather response: %v", contractx.ErrLookup, err)
	}

	summary := contractx.WeatherSummary{
		TemperatureC: parsed.Main.Temp,
		FeelsLikeC:   parsed.Main.FeelsLike,
		HumidityPct:  parsed.Main.Humidity,
	}
	// An absent or unmatched condition list defaults to no rain.
	for _, w := range parsed.Weather {
		if rainConditions[w.Main] {
			summary.WillRain = true
			break
		}
	}
	return summary, nil
}
