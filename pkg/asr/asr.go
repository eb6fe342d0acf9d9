package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

var ErrTranscriberUnavailable = errors.New("transcriber unavailable")

type TranscribeResp struct {
	Transcription string `json:"transcription"`
}

// Client forwards recordings to the speech-to-text sidecar.
type Client struct {
	baseURL string
	c       *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		c:       &http.Client{Timeout: timeout},
	}
}

func (cl *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("asr form: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("asr form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("asr form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.baseURL+"/transcribe", &b)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := cl.c.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriberUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return "", fmt.Errorf("%w: asr %s: %s", ErrTranscriberUnavailable, resp.Status, strings.TrimSpace(string(body)))
	}

	var out TranscribeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: asr decode: %v", ErrTranscriberUnavailable, err)
	}
	return out.Transcription, nil
}
