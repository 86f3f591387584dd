package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/okian/moodcam/internal/domain/emotion"
	"github.com/okian/moodcam/internal/domain/model"
	"github.com/okian/moodcam/pkg/imaging"
	"github.com/okian/moodcam/pkg/metrics"
)

const (
	defaultBaseURL      = "http://localhost:8000"
	defaultTimeout      = 5 * time.Second
	defaultMaxImageSize = 1280
	maxResponseBytes    = 4 << 20
)

// HTTPClient talks to an inference service over HTTP. Images are uploaded
// as multipart JPEG under the "file" field.
type HTTPClient struct {
	baseURL      string
	client       *http.Client
	timeout      time.Duration
	maxImageSize int
}

var _ Backend = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &HTTPClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{},
		timeout:      defaultTimeout,
		maxImageSize: defaultMaxImageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectResponse struct {
	Faces []struct {
		BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
		DetScore float64   `json:"det_score"`
	} `json:"faces"`
}

type analyzeResponse struct {
	Emotions  map[string]float64 `json:"emotions"`
	Embedding []float32          `json:"embedding"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Detect posts the frame to /detect. Boxes are mapped back to frame
// coordinates when the upload was downscaled.
func (c *HTTPClient) Detect(ctx context.Context, frame image.Image) ([]model.Region, error) {
	upload := imaging.Fit(frame, c.maxImageSize)
	body, err := c.postImage(ctx, OpDetect, "/detect", upload)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.RecordInferenceError(OpDetect)
		return nil, fmt.Errorf("%w: detect: %w", ErrBadResponse, err)
	}

	fb, ub := frame.Bounds(), upload.Bounds()
	sx := float64(fb.Dx()) / float64(ub.Dx())
	sy := float64(fb.Dy()) / float64(ub.Dy())
	regions := make([]model.Region, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		r := image.Rect(
			fb.Min.X+int(f.BBox[0]*sx), fb.Min.Y+int(f.BBox[1]*sy),
			fb.Min.X+int(f.BBox[2]*sx), fb.Min.Y+int(f.BBox[3]*sy),
		).Intersect(fb)
		if r.Empty() {
			continue
		}
		regions = append(regions, model.Region{BBox: r, Score: f.DetScore})
	}
	return regions, nil
}

// Analyze posts a face crop to /analyze.
func (c *HTTPClient) Analyze(ctx context.Context, face image.Image) (model.Analysis, error) {
	body, err := c.postImage(ctx, OpAnalyze, "/analyze", imaging.Fit(face, c.maxImageSize))
	if err != nil {
		return model.Analysis{}, err
	}

	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.RecordInferenceError(OpAnalyze)
		return model.Analysis{}, fmt.Errorf("%w: analyze: %w", ErrBadResponse, err)
	}
	dist, err := emotion.Parse(resp.Emotions)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	return model.Analysis{Emotions: dist, Embedding: resp.Embedding}, nil
}

// Embed posts a face image to /embed.
func (c *HTTPClient) Embed(ctx context.Context, face image.Image) ([]float32, error) {
	body, err := c.postImage(ctx, OpEmbed, "/embed", imaging.Fit(face, c.maxImageSize))
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.RecordInferenceError(OpEmbed)
		return nil, fmt.Errorf("%w: embed: %w", ErrBadResponse, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrBadResponse)
	}
	return resp.Embedding, nil
}

// Ping checks GET /healthz.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	_, err = c.do(req, OpPing)
	return err
}

// postImage encodes img as JPEG in a multipart form and posts it to endpoint.
func (c *HTTPClient) postImage(ctx context.Context, op, endpoint string, img image.Image) ([]byte, error) {
	data, err := imaging.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, op)
}

// do executes req. Transport failures and 5xx answers wrap ErrUnavailable;
// other non-200 answers wrap ErrBadResponse.
func (c *HTTPClient) do(req *http.Request, op string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RecordInferenceLatency(op, float64(time.Since(start).Milliseconds()))
	}()

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordInferenceError(op)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordInferenceError(op)
		return nil, fmt.Errorf("%w: %s: failed to read response: %w", ErrUnavailable, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		metrics.RecordInferenceError(op)
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrUnavailable, op, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		metrics.RecordInferenceError(op)
		return nil, fmt.Errorf("%w: %s: status %d: %s", ErrBadResponse, op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
