package artifacts

import (
	"fmt"

	"github.com/vk/mathgrid/internal/content"
)

// EncodeModule serializes an unchecked module into a framed cache payload.
func EncodeModule(m *content.UncheckedModule, c Compression) ([]byte, error) {
	payload, err := marshal(toModuleRecord(m))
	if err != nil {
		return nil, fmt.Errorf("encoding module %s: %w", m.URI, err)
	}
	return seal(payload, c)
}

// DecodeModule is the inverse of EncodeModule.
func DecodeModule(data []byte) (*content.UncheckedModule, error) {
	payload, err := open(data)
	if err != nil {
		return nil, err
	}
	var r moduleRecord
	if err := unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return fromModuleRecord(r)
}

// EncodeDocument serializes an unchecked document, including the modules it
// declares.
func EncodeDocument(d *content.UncheckedDocument, c Compression) ([]byte, error) {
	payload, err := marshal(toDocumentRecord(d))
	if err != nil {
		return nil, fmt.Errorf("encoding document %s: %w", d.URI, err)
	}
	return seal(payload, c)
}

// DecodeDocument is the inverse of EncodeDocument.
func DecodeDocument(data []byte) (*content.UncheckedDocument, error) {
	payload, err := open(data)
	if err != nil {
		return nil, err
	}
	var r documentRecord
	if err := unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return fromDocumentRecord(r)
}
