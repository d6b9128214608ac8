package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// ApplicationJSONSchema is the definition every manifest is validated
// against.
const ApplicationJSONSchema = "#ApplicationJSON"

// Codec reads and writes application manifests.
type Codec struct {
	schemas *SchemaRegistry
	logger  zerolog.Logger
}

// NewCodec returns a codec validating against the built-in manifest schema.
func NewCodec(logger zerolog.Logger) (*Codec, error) {
	schemas, err := NewSchemaRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest schema: %w", err)
	}
	return &Codec{
		schemas: schemas,
		logger:  logger.With().Str("component", "manifest").Logger(),
	}, nil
}

// Schemas returns the registry the codec validates against.
func (c *Codec) Schemas() *SchemaRegistry {
	return c.schemas
}

// Decode reads one manifest from r. The document is validated before it is
// decoded, so a returned manifest always satisfies the schema.
func (c *Codec) Decode(ctx context.Context, r io.Reader) (*ApplicationJSON, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.schemas.ValidateJSON(ctx, ApplicationJSONSchema, data); err != nil {
		c.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Manifest rejected")
		return nil, err
	}

	var m ApplicationJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	c.logger.Debug().
		Int("pages", len(m.PageList)).
		Int("actions", len(m.ActionList)).
		Int("action_collections", len(m.ActionCollectionList)).
		Msg("Manifest decoded")

	return &m, nil
}

// Encode writes a sanitised copy of m to w as indented JSON. m is not
// modified.
func (c *Codec) Encode(ctx context.Context, w io.Writer, m *ApplicationJSON) error {
	out := m.Sanitised()
	if out.ServerSchemaVersion == 0 {
		out.ServerSchemaVersion = CurrentSchemaVersion
	}

	if err := CheckVisibility(out); err != nil {
		return err
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := c.schemas.ValidateJSON(ctx, ApplicationJSONSchema, data); err != nil {
		return err
	}

	data = append(data, '\n')
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
