package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// Client talks to the inference sidecar that hosts the diffusion model. It
// implements Generator and Lifecycle; wrap it in a Resident to get the
// process-wide init-once semantics.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the sidecar at baseURL. Individual calls
// carry no client-side timeout: execution time limits are enforced by the
// worker through the context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// inpaintResponse is the sidecar's reply: base64 PNG payloads.
type inpaintResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// Load asks the sidecar to pull the model weights onto the accelerator.
func (c *Client) Load(ctx context.Context) error {
	return c.post(ctx, "/load", nil, 10*time.Minute)
}

// Unload releases the model from the accelerator.
func (c *Client) Unload(ctx context.Context) error {
	return c.post(ctx, "/unload", nil, time.Minute)
}

// Cleanup releases transient accelerator scratch memory after a job.
func (c *Client) Cleanup(ctx context.Context) error {
	return c.post(ctx, "/cleanup", nil, time.Minute)
}

// Inpaint submits the image, mask and parameters and decodes the resulting
// images. An accelerator out-of-memory reply maps to ErrDeviceOOM.
func (c *Client) Inpaint(ctx context.Context, spec Spec) ([]image.Image, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if err := writeImagePart(mw, "image", spec.Image); err != nil {
		return nil, err
	}
	if err := writeImagePart(mw, "mask", spec.Mask); err != nil {
		return nil, err
	}

	params, err := json.Marshal(map[string]any{
		"prompt":          spec.Prompt,
		"negative_prompt": spec.NegativePrompt,
		"strength":        spec.Strength,
		"guidance_scale":  spec.GuidanceScale,
		"steps":           spec.Steps,
		"seed":            spec.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := mw.WriteField("params", string(params)); err != nil {
		return nil, fmt.Errorf("failed to write params field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inpaint", body)
	if err != nil {
		return nil, fmt.Errorf("failed to build inpaint request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inpaint request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inpaint response: %w", err)
	}

	var decoded inpaintResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode inpaint response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusInsufficientStorage ||
			strings.Contains(strings.ToLower(decoded.Error), "out of memory") {
			return nil, fmt.Errorf("%w: %s", ErrDeviceOOM, decoded.Error)
		}

		return nil, fmt.Errorf("inpaint failed with status %d: %s", resp.StatusCode, decoded.Error)
	}

	images := make([]image.Image, 0, len(decoded.Images))
	for i, b64 := range decoded.Images {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode result image %d: %w", i, err)
		}

		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode result image %d: %w", i, err)
		}

		images = append(images, img)
	}

	return images, nil
}

// Device returns a snapshot of the accelerator state.
func (c *Client) Device(ctx context.Context) (DeviceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/device", nil)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("failed to build device request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("device request failed: %w", err)
	}
	defer resp.Body.Close()

	var status DeviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return DeviceStatus{}, fmt.Errorf("failed to decode device status: %w", err)
	}

	return status, nil
}

// post issues a bodyless control request to the sidecar.
func (c *Client) post(ctx context.Context, endpoint string, body io.Reader, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed with status %d: %s", endpoint, resp.StatusCode, raw)
	}

	return nil
}

func writeImagePart(mw *multipart.Writer, field string, img image.Image) error {
	part, err := mw.CreateFormFile(field, field+".png")
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", field, err)
	}

	if err := imaging.Encode(part, img, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode %s part: %w", field, err)
	}

	return nil
}
