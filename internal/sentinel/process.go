// Package sentinel requests Sentinel-2 scenes from the Copernicus Data Space
// Process API.
package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultProcessURL = "https://sh.dataspace.copernicus.eu/api/v1/process"
	DefaultTokenURL   = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"

	maxPixels         = 2500
	metersPerDegree   = 111_000.0
	defaultRetryDelay = 5 * time.Second
)

var (
	ErrForbidden     = errors.New("access forbidden, check your client ID and secret")
	ErrNoCredentials = errors.New("no copernicus credentials configured")
)

var DefaultBands = []string{"B02", "B03", "B04", "B05", "B06", "B08", "B11", "CLD", "SCL"}

type Credential struct {
	ID     string
	Secret string
}

// ParseCredentials pairs comma separated client ids and secrets.
func ParseCredentials(ids, secrets string) ([]Credential, error) {
	if ids == "" || secrets == "" {
		return nil, ErrNoCredentials
	}
	idList := strings.Split(ids, ",")
	secretList := strings.Split(secrets, ",")
	if len(idList) != len(secretList) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	out := make([]Credential, len(idList))
	for i := range idList {
		out[i] = Credential{ID: strings.TrimSpace(idList[i]), Secret: strings.TrimSpace(secretList[i])}
	}
	return out, nil
}

type Client struct {
	ProcessURL  string
	TokenURL    string
	Credentials []Credential
	// Retries is the number of attempts per credential. Zero means 10.
	Retries    int
	RetryDelay time.Duration
	// HTTPClient is used for both token and process requests.
	HTTPClient *http.Client
}

func NewClient(creds []Credential) *Client {
	return &Client{
		ProcessURL:  DefaultProcessURL,
		TokenURL:    DefaultTokenURL,
		Credentials: creds,
		Retries:     10,
		RetryDelay:  defaultRetryDelay,
	}
}

type Request struct {
	From, To time.Time
	// Geometry is the area to render, in WGS84.
	Geometry orb.Geometry
	Bands    []string
	// Resolution in metres. Zero means 10.
	Resolution float64
	Collection string
	Mosaicking string
}

// Evalscript returns a script that outputs bands as FLOAT32, in order.
func Evalscript(bands []string) string {
	quoted := make([]string, len(bands))
	samples := make([]string, len(bands))
	for i, b := range bands {
		quoted[i] = fmt.Sprintf("%q", b)
		samples[i] = "sample." + b
	}
	return fmt.Sprintf(`//VERSION=3
function setup() {
  return {
    input: [%s],
    output: {
      id: "default",
      bands: %d,
      sampleType: SampleType.FLOAT32,
    },
  }
}

function evaluatePixel(sample) {
  return [%s];
}
`, strings.Join(quoted, ", "), len(bands), strings.Join(samples, ", "))
}

// calculatePixels converts a span in degrees to a pixel count at resolution
// metres, clamped to what the Process API accepts.
func calculatePixels(degrees, resolution float64) int {
	pixels := int(degrees * (metersPerDegree / resolution))
	return min(max(pixels, 1), maxPixels)
}

// Size returns the output width and height for a WGS84 bound.
func Size(b orb.Bound, resolution float64) (int, int) {
	lat := (b.Min.Y() + b.Max.Y()) / 2
	width := calculatePixels((b.Max.X()-b.Min.X())*math.Cos(lat*math.Pi/180), resolution)
	height := calculatePixels(b.Max.Y()-b.Min.Y(), resolution)
	return width, height
}

func (r Request) payload() ([]byte, error) {
	if r.Geometry == nil {
		return nil, errors.New("request has no geometry")
	}
	if len(r.Bands) == 0 {
		r.Bands = DefaultBands
	}
	if r.Resolution <= 0 {
		r.Resolution = 10
	}
	if r.Collection == "" {
		r.Collection = "sentinel-2-l2a"
	}
	if r.Mosaicking == "" {
		r.Mosaicking = "mostRecent"
	}
	width, height := Size(r.Geometry.Bound(), r.Resolution)

	payload := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"geometry": geojson.NewGeometry(r.Geometry),
			},
			"data": []map[string]any{
				{
					"dataFilter": map[string]any{
						"timeRange": map[string]string{
							"from": r.From.Format(time.RFC3339),
							"to":   r.To.Format(time.RFC3339),
						},
						"mosaickingOrder": r.Mosaicking,
					},
					"type": r.Collection,
				},
			},
		},
		"output": map[string]any{
			"width":  width,
			"height": height,
			"responses": []map[string]any{
				{
					"identifier": "default",
					"format":     map[string]string{"type": "image/tiff"},
				},
			},
		},
		"evalscript": Evalscript(r.Bands),
	}
	return json.Marshal(payload)
}

// Fetch renders the request as a GeoTIFF. Credentials are tried in turn;
// each gets up to Retries attempts, and a 403 moves on to the next one.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if len(c.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	body, err := req.payload()
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var errs []error
	for _, cred := range c.Credentials {
		data, err := c.fetchWith(ctx, cred, body)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("copernicus credential failed", zap.String("client_id", cred.ID), zap.Error(err))
		errs = append(errs, fmt.Errorf("client %s: %w", cred.ID, err))
	}
	return nil, errors.Join(errs...)
}

func (c *Client) fetchWith(ctx context.Context, cred Credential, body []byte) ([]byte, error) {
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	config := &clientcredentials.Config{
		ClientID:     cred.ID,
		ClientSecret: cred.Secret,
		TokenURL:     c.TokenURL,
	}
	httpClient := config.Client(ctx)

	retries := c.Retries
	if retries <= 0 {
		retries = 10
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		data, retry, err := c.post(ctx, httpClient, body)
		if err == nil {
			return data, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		zap.L().Debug("process request failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.RetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to request image after %d attempts: %w", retries, lastErr)
}

// post sends one request. retry is false when another attempt cannot help.
func (c *Client) post(ctx context.Context, httpClient *http.Client, body []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ProcessURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/tiff")

	resp, err := httpClient.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, false, fmt.Errorf("failed to get token: %w", err)
		}
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return data, false, nil
	case resp.StatusCode == http.StatusForbidden:
		return nil, false, ErrForbidden
	case resp.StatusCode == http.StatusBadRequest:
		return nil, false, fmt.Errorf("bad request: %s", strings.TrimSpace(string(data)))
	}
	return nil, true, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
