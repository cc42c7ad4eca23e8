// Package perception talks to the external face detection and embedding
// service. The service owns everything pixel-related: decoding, cropping,
// detection and embedding. This client only uploads images and converts the
// response into DetectedFace records.
package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-organizer/internal/face"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 2 * time.Minute
)

// Client calls the perception service.
type Client struct {
	baseURL string
	mode    face.RecognitionMode
	client  *http.Client
}

// New creates a perception client. An empty baseURL falls back to the local
// development default.
func New(baseURL string, mode face.RecognitionMode) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if mode == "" {
		mode = face.ModeFaceOnly
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		mode:    mode,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// detectedFace is the wire form of one detection.
type detectedFace struct {
	BBox             face.BoundingBox  `json:"bbox"`
	Embedding        []float32         `json:"embedding"`
	ContextEmbedding []float32         `json:"context_embedding,omitempty"`
	ContextBBox      *face.BoundingBox `json:"context_bbox,omitempty"`
	Confidence       float64           `json:"confidence"`
	PixelSize        int               `json:"pixel_size"`
	Sharpness        float64           `json:"sharpness"`
}

type detectResponse struct {
	Faces []detectedFace `json:"faces"`
	Model string         `json:"model"`
}

// DetectFaces uploads one image and returns the detected faces with fresh
// ids, quality scores and the client's recognition mode stamped on.
func (c *Client) DetectFaces(ctx context.Context, imagePath string, imageData []byte) ([]face.DetectedFace, error) {
	body, contentType, err := buildMultipart(imageData, string(c.mode))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perception service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("perception service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}

	faces := make([]face.DetectedFace, 0, len(decoded.Faces))
	for _, f := range decoded.Faces {
		df := face.DetectedFace{
			ID:         uuid.NewString(),
			ImagePath:  imagePath,
			BBox:       f.BBox,
			Embedding:  face.EncodeEmbedding(f.Embedding),
			Confidence: f.Confidence,
			PixelSize:  f.PixelSize,
			Sharpness:  f.Sharpness,
			Quality:    face.ComputeQuality(f.Confidence, f.PixelSize, f.Sharpness),
			Mode:       c.mode,
		}
		if len(f.ContextEmbedding) > 0 {
			df.ContextEmbedding = face.EncodeEmbedding(f.ContextEmbedding)
			df.ContextBBox = f.ContextBBox
		}
		faces = append(faces, df)
	}
	return faces, nil
}

// Healthy reports whether the service answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func buildMultipart(imageData []byte, mode string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, "", fmt.Errorf("write image data: %w", err)
	}
	if err := writer.WriteField("mode", mode); err != nil {
		return nil, "", fmt.Errorf("write mode field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
