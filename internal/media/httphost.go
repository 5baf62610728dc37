package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// HTTPHost uploads images to an HTTP media endpoint. It intentionally keeps
// the SDK-style callback surface so the Service adapter has a real
// implementation behind it.
type HTTPHost struct {
	uploadURL string
	client    *http.Client
}

// NewHTTPHost creates a host posting multipart uploads to uploadURL.
func NewHTTPHost(uploadURL string, client *http.Client) *HTTPHost {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHost{uploadURL: uploadURL, client: client}
}

// Upload starts the transfer and reports the result through exactly one of
// the callbacks. The returned cancel func aborts the in-flight request.
func (h *HTTPHost) Upload(localPath string, onSuccess func(string), onError func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		url, err := h.send(ctx, localPath)
		if ctx.Err() != nil {
			return // cancelled; no callback fires
		}
		if err != nil {
			onError(err)
			return
		}
		onSuccess(url)
	}()

	return cancel
}

func (h *HTTPHost) send(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("media host returned status %d", resp.StatusCode)
	}

	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return parsed.URL, nil
}
