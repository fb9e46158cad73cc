// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Two peers encoding the same
// action produce identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so that an
// older peer can still read messages from a newer one.
var decMode cbor.DecMode

// strictDecMode rejects unknown struct fields. Used when a partial
// patch is merged into an entity record, where a misspelled field
// name must fail instead of silently vanishing.
var strictDecMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decOptions := cbor.DecOptions{
		// Entity patches and pointer payloads decode into any-typed
		// targets. Peers only ever use string keys, so map[string]any
		// is the useful default rather than map[interface{}]interface{}.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}
	decMode, err = decOptions.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	decOptions.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	strictDecMode, err = decOptions.DecMode()
	if err != nil {
		panic("codec: strict CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalStrict decodes CBOR data into v and fails if the input
// carries a map key that does not correspond to a field of v.
func UnmarshalStrict(data []byte, v any) error {
	return strictDecMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value. Envelopes carry their
// payload as a RawMessage so that decoding is deferred to whichever
// subscriber owns the tag.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w using the
// deterministic configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. Used when logging a payload that failed validation.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
