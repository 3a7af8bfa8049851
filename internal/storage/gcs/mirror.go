// Package gcs mirrors stored records into a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

const recordContentType = "application/json; charset=utf-8"

// Config captures the parameters required to mirror into GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// Mirror copies record files to a configured GCS bucket using the local layout.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ harvest.Mirror = (*Mirror)(nil)

// New creates a GCS-backed mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns prefix/YYYY/MM/periodID/identifier.json for doc.
func (m *Mirror) ObjectName(doc harvest.StoredDocument) string {
	name := path.Join(doc.Period.Year(), doc.Period.Month(), doc.Period.ID(), doc.Identifier.String()+".json")
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

// MirrorRecord uploads payload and returns its gs:// URI.
func (m *Mirror) MirrorRecord(ctx context.Context, doc harvest.StoredDocument, payload []byte) (string, error) {
	if doc.Identifier == "" || doc.Period.IsZero() {
		return "", fmt.Errorf("identifier and period are required")
	}
	object := m.ObjectName(doc)
	writer := m.client.Bucket(m.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = recordContentType
	writer.Metadata = map[string]string{
		"celex_number": doc.LogicalKey,
		"sha256":       doc.ContentHash,
	}
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, object), nil
}
