// Package reporting writes tuning reports to disk as JSON and msgpack and, when
// configured, uploads them to S3-compatible storage.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Uploader stores an object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Envelope wraps a report with provenance.
type Envelope struct {
	Kind        string    `json:"kind" msgpack:"kind"`
	SessionID   string    `json:"session_id" msgpack:"session_id"`
	GeneratedAt time.Time `json:"generated_at" msgpack:"generated_at"`
	Host        HostInfo  `json:"host" msgpack:"host"`
	Report      any       `json:"report" msgpack:"report"`
}

// Exporter writes reports under a directory.
type Exporter struct {
	dir      string
	uploader Uploader // Optional
	host     HostInfo
	log      zerolog.Logger
}

// NewExporter creates an exporter writing to dir, which is created if needed.
func NewExporter(dir string, log zerolog.Logger) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	return &Exporter{
		dir:  dir,
		host: CollectHostInfo(),
		log:  log.With().Str("component", "report_exporter").Logger(),
	}, nil
}

// SetUploader enables uploads after each local write.
func (e *Exporter) SetUploader(u Uploader) {
	e.uploader = u
}

// Export writes <kind>_<sessionID>.json and .msgpack and returns their paths. Upload
// failures are logged; the local files are the record.
func (e *Exporter) Export(ctx context.Context, kind, sessionID string, report any) ([]string, error) {
	env := Envelope{
		Kind:        kind,
		SessionID:   sessionID,
		GeneratedAt: time.Now().UTC(),
		Host:        e.host,
		Report:      report,
	}

	jsonData, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s report as JSON: %w", kind, err)
	}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("failed to encode %s report as msgpack: %w", kind, err)
	}

	base := fmt.Sprintf("%s_%s", kind, sessionID)
	files := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{base + ".json", jsonData, "application/json"},
		{base + ".msgpack", buf.Bytes(), "application/msgpack"},
	}

	var paths []string
	for _, f := range files {
		p := filepath.Join(e.dir, f.name)
		if err := os.WriteFile(p, f.data, 0644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", p, err)
		}
		paths = append(paths, p)

		if e.uploader != nil {
			key := path.Join("tuning", sessionID, f.name)
			if err := e.uploader.Upload(ctx, key, f.data, f.contentType); err != nil {
				e.log.Warn().Err(err).Str("key", key).Msg("Failed to upload report")
			}
		}
	}

	e.log.Debug().Str("kind", kind).Str("session_id", sessionID).Msg("Report written")
	return paths, nil
}

// Load decodes a report written by Export, choosing the codec from the extension.
func Load(p string, out *Envelope) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	if filepath.Ext(p) == ".json" {
		return json.Unmarshal(data, out)
	}
	return msgpack.Unmarshal(data, out)
}
