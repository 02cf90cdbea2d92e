// Package artifacts reads and writes the binary caches of unchecked content
// kept under an archive's cache directory.
//
// A cache file is a fixed header followed by a payload:
//
//	magic "MGC1" | compression (1 byte) | payload size (uint32 BE) |
//	BLAKE3-256 of the uncompressed payload (32 bytes) | payload
//
// The payload is the content encoded with CBOR core deterministic encoding,
// so identical unchecked structures produce identical files. URIs travel as
// CBOR text strings through their TextMarshaler implementations.
package artifacts

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("artifacts: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("artifacts: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return b, nil
}

func unmarshal(b []byte, v any) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: cbor decode: %v", ErrCorrupt, err)
	}
	return nil
}
