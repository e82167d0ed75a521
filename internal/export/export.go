// Package export serializes the enriched leaders mapping and hands the
// bytes to a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/country-leaders-scraper/internal/metrics"
	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

// Format names an output encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// CSVHeader is the fixed CSV column order.
var CSVHeader = []string{
	"id",
	"first_name",
	"last_name",
	"birth_date",
	"death_date",
	"place_of_birth",
	"wikipedia_url",
	"start_mandate",
	"end_mandate",
	"first_paragraph",
}

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return FormatJSON
}

// ContentType returns the MIME type stored alongside the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Encode writes data to w in format f.
func Encode(w io.Writer, f Format, data *scraper.LeadersByCountry) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, data)
	case FormatCSV:
		return WriteCSV(w, data)
	case FormatYAML:
		return WriteYAML(w, data)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteJSON writes the mapping as UTF-8 JSON indented by four spaces.
// Non-ASCII text is written as-is.
func WriteJSON(w io.Writer, data *scraper.LeadersByCountry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(orEmpty(data)); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteCSV writes one row per leader across all countries, in mapping order.
func WriteCSV(w io.Writer, data *scraper.LeadersByCountry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	var writeErr error
	orEmpty(data).Each(func(_ string, _ int, l *scraper.Leader) {
		if writeErr != nil || l == nil {
			return
		}
		writeErr = cw.Write([]string{
			l.ID,
			l.FirstName,
			l.LastName,
			l.BirthDate,
			l.DeathDate,
			l.PlaceOfBirth,
			l.WikipediaURL,
			l.StartMandate,
			l.EndMandate,
			l.FirstParagraph,
		})
	})
	if writeErr != nil {
		return fmt.Errorf("write csv row: %w", writeErr)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteYAML writes the mapping as a YAML document keeping country order.
func WriteYAML(w io.Writer, data *scraper.LeadersByCountry) error {
	data = orEmpty(data)
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, code := range data.Codes() {
		var leaders yaml.Node
		list := data.Leaders(code)
		if list == nil {
			list = []*scraper.Leader{}
		}
		if err := leaders.Encode(list); err != nil {
			return fmt.Errorf("encode yaml leaders for %s: %w", code, err)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: code},
			&leaders,
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml encoder: %w", err)
	}
	return nil
}

// ReadJSON decodes a mapping previously written by WriteJSON.
func ReadJSON(r io.Reader) (*scraper.LeadersByCountry, error) {
	data := scraper.NewLeadersByCountry()
	if err := json.NewDecoder(r).Decode(data); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return data, nil
}

func orEmpty(data *scraper.LeadersByCountry) *scraper.LeadersByCountry {
	if data == nil {
		return scraper.NewLeadersByCountry()
	}
	return data
}

// Exporter encodes data and writes it through a BlobStore.
type Exporter struct {
	store  scraper.BlobStore
	hasher scraper.Hasher
	logger *zap.Logger
}

// NewExporter wires an Exporter. hasher may be nil.
func NewExporter(store scraper.BlobStore, hasher scraper.Hasher, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, hasher: hasher, logger: logger}
}

// Export encodes data as format (inferred from path when empty) and stores it
// at path, replacing any previous artifact.
func (e *Exporter) Export(
	ctx context.Context,
	path string,
	format Format,
	data *scraper.LeadersByCountry,
) (scraper.Artifact, error) {
	if e.store == nil {
		return scraper.Artifact{}, fmt.Errorf("no blob store configured")
	}
	if strings.TrimSpace(path) == "" {
		return scraper.Artifact{}, fmt.Errorf("export path is required")
	}
	if format == "" {
		format = FormatFromPath(path)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, format, data); err != nil {
		return scraper.Artifact{}, err
	}
	body := buf.Bytes()

	artifact := scraper.Artifact{
		Path:        path,
		ContentType: format.ContentType(),
		Bytes:       len(body),
	}
	if e.hasher != nil {
		digest, err := e.hasher.Hash(body)
		if err != nil {
			return scraper.Artifact{}, fmt.Errorf("hash export: %w", err)
		}
		artifact.Hash = digest
	}

	uri, err := e.store.PutObject(ctx, path, artifact.ContentType, bytes.NewReader(body))
	if err != nil {
		return scraper.Artifact{}, fmt.Errorf("store export %s: %w", path, err)
	}
	artifact.URI = uri
	metrics.ObserveExport(string(format), len(body))

	e.logger.Info("export written",
		zap.String("uri", uri),
		zap.String("format", string(format)),
		zap.Int("bytes", len(body)),
		zap.String("hash", artifact.Hash),
	)
	return artifact, nil
}
