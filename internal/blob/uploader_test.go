package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUploadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "photo.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"public_id":"abc123","url":"https://cdn.example/abc123.png"}`))
	}))
	defer server.Close()

	uploader := NewUploader(server.URL)
	att, err := uploader.Upload(context.Background(), "photo.png", strings.NewReader("pngdata"))
	require.NoError(t, err)
	require.Equal(t, "abc123", att.PublicID)
	require.Equal(t, "https://cdn.example/abc123.png", att.URL)
}

func TestUploadServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	uploader := NewUploader(server.URL)
	_, err := uploader.Upload(context.Background(), "photo.png", strings.NewReader("pngdata"))
	require.Error(t, err)
}

func TestUploadMissingReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	uploader := NewUploader(server.URL)
	_, err := uploader.Upload(context.Background(), "photo.png", strings.NewReader("pngdata"))
	require.Error(t, err)
}

func TestNoopUploaderRejects(t *testing.T) {
	uploader := NewUploader("")
	_, err := uploader.Upload(context.Background(), "photo.png", strings.NewReader("pngdata"))
	require.Error(t, err)
}
