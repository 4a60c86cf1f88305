package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/a-lournrose/ai-video-searcher/internal/models"
)

// HTTPEmbedder calls the embedding service over its JSON API.
type HTTPEmbedder struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPEmbedder(baseURL string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedImageRequest struct {
	Image string `json:"image"`
}

type embedTextRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
	Error  string    `json:"error,omitempty"`
}

func (c *HTTPEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	req := embedImageRequest{Image: base64.StdEncoding.EncodeToString(image)}
	return c.embed(ctx, "/embed/image", req)
}

func (c *HTTPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, "/embed/text", embedTextRequest{Text: text})
}

func (c *HTTPEmbedder) embed(ctx context.Context, path string, payload any) ([]float32, error) {
	var resp embedResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+path, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("embedder error: %s", resp.Error)
	}
	if len(resp.Vector) != models.EmbeddingDim {
		return nil, fmt.Errorf("embedder returned %d dimensions, want %d", len(resp.Vector), models.EmbeddingDim)
	}
	return resp.Vector, nil
}

// HTTPDetector calls the detection/attribute service.
type HTTPDetector struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDetector(baseURL string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type detectRequest struct {
	Image string `json:"image"`
}

type detectionPayload struct {
	Type    string `json:"type"`
	TrackID *int64 `json:"track_id"`
	BBox    struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"bbox"`
	Crop string `json:"crop"`
}

type detectResponse struct {
	Objects []detectionPayload `json:"objects"`
	Error   string             `json:"error,omitempty"`
}

func (c *HTTPDetector) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	req := detectRequest{Image: base64.StdEncoding.EncodeToString(frame)}

	var resp detectResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/detect", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detector error: %s", resp.Error)
	}

	detections := make([]Detection, 0, len(resp.Objects))
	for _, obj := range resp.Objects {
		crop, err := base64.StdEncoding.DecodeString(obj.Crop)
		if err != nil {
			return nil, fmt.Errorf("failed to decode object crop: %w", err)
		}
		detections = append(detections, Detection{
			Type:    models.ObjectType(obj.Type),
			TrackID: obj.TrackID,
			BBox: models.BBox{
				X:      obj.BBox.X,
				Y:      obj.BBox.Y,
				Width:  obj.BBox.Width,
				Height: obj.BBox.Height,
			},
			Crop: crop,
		})
	}
	return detections, nil
}

type attributesRequest struct {
	Image string `json:"image"`
	Type  string `json:"type"`
}

type attributesResponse struct {
	ColorHSV      string  `json:"color_hsv"`
	LicensePlate  *string `json:"license_plate"`
	UpperColorHSV *string `json:"upper_color_hsv"`
	LowerColorHSV *string `json:"lower_color_hsv"`
	Error         string  `json:"error,omitempty"`
}

func (c *HTTPDetector) Attributes(ctx context.Context, crop []byte, typ models.ObjectType) (*Attributes, error) {
	req := attributesRequest{
		Image: base64.StdEncoding.EncodeToString(crop),
		Type:  string(typ),
	}

	var resp attributesResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/attributes", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("attribute extractor error: %s", resp.Error)
	}
	return &Attributes{
		ColorHSV:      resp.ColorHSV,
		LicensePlate:  resp.LicensePlate,
		UpperColorHSV: resp.UpperColorHSV,
		LowerColorHSV: resp.LowerColorHSV,
	}, nil
}

// HTTPFrameSource pulls sampled frames from the media gateway.
type HTTPFrameSource struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPFrameSource(baseURL string, timeout time.Duration) *HTTPFrameSource {
	return &HTTPFrameSource{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type framePayload struct {
	At           string  `json:"at"`
	TimestampSec float64 `json:"timestamp_sec"`
	Image        string  `json:"image"`
}

type framesResponse struct {
	Frames []framePayload `json:"frames"`
	Error  string         `json:"error,omitempty"`
}

func (c *HTTPFrameSource) Frames(ctx context.Context, sourceID string, r models.TimeRange, intervalSec float64) ([]Frame, error) {
	endpoint := fmt.Sprintf("%s/sources/%s/frames?start_at=%s&end_at=%s&interval=%g",
		c.baseURL, url.PathEscape(sourceID),
		url.QueryEscape(r.StartAt), url.QueryEscape(r.EndAt), intervalSec)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build frames request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read media gateway response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media gateway returned status %d: %s", httpResp.StatusCode, string(body))
	}

	var resp framesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse media gateway response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("media gateway error: %s", resp.Error)
	}

	frames := make([]Frame, 0, len(resp.Frames))
	for _, f := range resp.Frames {
		image, err := base64.StdEncoding.DecodeString(f.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame image: %w", err)
		}
		frames = append(frames, Frame{Image: image, At: f.At, TimestampSec: f.TimestampSec})
	}
	return frames, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("extractor request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read extractor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse extractor response: %w", err)
	}
	return nil
}
