// Package vision implements ports.OCRProvider with the Google Cloud Vision
// REST API.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// DefaultEndpoint is the Vision images:annotate URL.
const DefaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Client calls DOCUMENT_TEXT_DETECTION, which handles dense printed text
// better than TEXT_DETECTION.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Vision client. Returns nil if apiKey is empty.
func NewClient(apiKey, endpoint string, timeout time.Duration) *Client {
	if apiKey == "" {
		return nil
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{apiKey: apiKey, endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) Name() string { return "google-vision" }

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// RecognizeText returns the full text of a PNG image. An image with no text
// yields an empty string.
func (c *Client) RecognizeText(ctx context.Context, png []byte) (string, error) {
	body, err := json.Marshal(annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(png)},
		Features: []feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}}})
	if err != nil {
		return "", fmt.Errorf("encoding vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("vision: %w", domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("vision returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding vision response: %w", err)
	}
	if len(out.Responses) == 0 {
		return "", nil
	}
	r := out.Responses[0]
	if r.Error != nil {
		return "", fmt.Errorf("vision error %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return r.FullTextAnnotation.Text, nil
}
