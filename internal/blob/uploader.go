package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"messenger-service/internal/models"
)

// Uploader stores a file and returns a stable reference to it.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (models.Attachment, error)
}

// NewUploader builds an HTTP uploader, or a noop uploader that rejects every
// upload when no endpoint is configured.
func NewUploader(endpoint string) Uploader {
	if endpoint == "" {
		log.Printf("blob uploads disabled: empty upload endpoint")
		return noopUploader{}
	}
	return &httpUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type httpUploader struct {
	endpoint string
	client   *http.Client
}

func (u *httpUploader) Upload(ctx context.Context, filename string, r io.Reader) (models.Attachment, error) {
	body, contentType, err := buildMultipart(filename, r)
	if err != nil {
		return models.Attachment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return models.Attachment{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Attachment{}, fmt.Errorf("upload %s: status %d", filename, resp.StatusCode)
	}

	var att models.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return models.Attachment{}, fmt.Errorf("decode upload response: %w", err)
	}
	if att.PublicID == "" || att.URL == "" {
		return models.Attachment{}, errors.New("upload response missing reference")
	}
	return att, nil
}

func buildMultipart(filename string, r io.Reader) (io.Reader, string, error) {
	buf := new(bytes.Buffer)
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

type noopUploader struct{}

func (noopUploader) Upload(ctx context.Context, filename string, r io.Reader) (models.Attachment, error) {
	return models.Attachment{}, errors.New("blob uploads disabled")
}
