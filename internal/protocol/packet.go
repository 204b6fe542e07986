package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedPacket is returned for inbound packets that are not valid JSON
// or do not have the {entity: {key: value}} shape.
var ErrMalformedPacket = errors.New("malformed packet")

const packetSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"minProperties": 1,
	"maxProperties": 1,
	"propertyNames": {"minLength": 1},
	"additionalProperties": {"type": "object"}
}`

// Packet is a decoded inbound update.
type Packet struct {
	Entity     string
	Properties domain.Properties
	// Raw is the packet exactly as received; it is what gets republished.
	Raw []byte
}

// Parser validates and decodes inbound packets. It is safe for concurrent use.
type Parser struct {
	schema *gojsonschema.Schema
}

// NewParser compiles the packet schema.
func NewParser() (*Parser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(packetSchema))
	if err != nil {
		return nil, fmt.Errorf("compile packet schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// Parse validates data and decodes it into a Packet. Every failure wraps
// ErrMalformedPacket.
func (p *Parser) Parse(data []byte) (Packet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Packet{}, fmt.Errorf("%w: empty payload", ErrMalformedPacket)
	}

	result, err := p.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}
		return Packet{}, fmt.Errorf("%w: %s", ErrMalformedPacket, strings.Join(descriptions, "; "))
	}

	var decoded map[string]domain.Properties
	if err := Unmarshal(data, &decoded); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	for entity, props := range decoded {
		if props == nil {
			props = domain.Properties{}
		}
		return Packet{Entity: entity, Properties: props, Raw: data}, nil
	}
	return Packet{}, fmt.Errorf("%w: no entity", ErrMalformedPacket)
}

// DecodeProperties decodes an HTTP request body into a property map. The
// body must be a JSON object.
func DecodeProperties(body []byte) (domain.Properties, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.ErrNotAnObject
	}

	var props domain.Properties
	if err := Unmarshal(trimmed, &props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return props, nil
}

// Unmarshal is json.Unmarshal with numbers kept as json.Number, so integers
// beyond 2^53 survive a round trip through the world unchanged.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}
