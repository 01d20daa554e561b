// Package weather looks up current conditions through the open-meteo
// geocoding and forecast APIs.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Conditions struct {
	Temperature float64 `json:"temperature"`
	Code        int     `json:"weather_code"`
}

// Report is the answer to a city lookup.
type Report struct {
	Place       Place      `json:"place"`
	Conditions  Conditions `json:"conditions"`
	Description string     `json:"description"`
}

type Options struct {
	GeocodingURL string
	ForecastURL  string
	// Language of place names, e.g. "en".
	Language string
	Timeout  time.Duration
	RetryMax int
	Logger   *zap.Logger
}

type Client struct {
	geoURL   string
	fcURL    string
	language string
	timeout  time.Duration
	http     *retryablehttp.Client
	log      *zap.Logger
}

func New(opts Options) *Client {
	if opts.GeocodingURL == "" {
		opts.GeocodingURL = DefaultGeocodingURL
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = DefaultForecastURL
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{
		geoURL:   opts.GeocodingURL,
		fcURL:    opts.ForecastURL,
		language: opts.Language,
		timeout:  opts.Timeout,
		http:     rc,
		log:      logging.OrNop(opts.Logger),
	}
}

func (c *Client) get(ctx context.Context, op, endpoint string, q url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "reason").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &apperr.GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if !gjson.ValidBytes(body) {
		return nil, &apperr.GatewayError{Op: op, Status: resp.StatusCode, Err: errors.New("invalid JSON reply")}
	}
	return body, nil
}

// Geocode resolves city to its best match.
func (c *Client) Geocode(ctx context.Context, city string) (Place, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Place{}, &apperr.ValidationError{Field: "city", Msg: "must not be empty"}
	}
	body, err := c.get(ctx, "geocode", c.geoURL, url.Values{
		"name":     {city},
		"count":    {"1"},
		"language": {c.language},
		"format":   {"json"},
	})
	if err != nil {
		return Place{}, err
	}
	first := gjson.GetBytes(body, "results.0")
	if !first.Exists() {
		return Place{}, fmt.Errorf("city %q: %w", city, apperr.ErrNotFound)
	}
	return Place{
		Name:      first.Get("name").String(),
		Latitude:  first.Get("latitude").Float(),
		Longitude: first.Get("longitude").Float(),
	}, nil
}

// Current fetches the temperature and WMO weather code at a position.
func (c *Client) Current(ctx context.Context, lat, lon float64) (Conditions, error) {
	body, err := c.get(ctx, "current weather", c.fcURL, url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"current":   {"temperature_2m,weather_code"},
	})
	if err != nil {
		return Conditions{}, err
	}
	temp := gjson.GetBytes(body, "current.temperature_2m")
	if !temp.Exists() {
		return Conditions{}, &apperr.GatewayError{Op: "current weather", Err: errors.New("no temperature in reply")}
	}
	return Conditions{
		Temperature: temp.Float(),
		Code:        int(gjson.GetBytes(body, "current.weather_code").Int()),
	}, nil
}

// Lookup geocodes city and reports its current weather.
func (c *Client) Lookup(ctx context.Context, city string) (Report, error) {
	place, err := c.Geocode(ctx, city)
	if err != nil {
		return Report{}, err
	}
	cond, err := c.Current(ctx, place.Latitude, place.Longitude)
	if err != nil {
		return Report{}, err
	}
	c.log.Debug("weather looked up", zap.String("city", place.Name), zap.Float64("temperature", cond.Temperature))
	return Report{Place: place, Conditions: cond, Description: Describe(cond.Code)}, nil
}

// Describe names a WMO weather code coarsely.
func Describe(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code >= 1 && code <= 3:
		return "Cloudy"
	case code >= 51 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 86:
		return "Snow"
	default:
		return "Overcast"
	}
}
