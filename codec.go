package bucketset

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Records and entries are encoded with CBOR Core Deterministic Encoding
// (RFC 8949 section 4.2): sorted map keys, shortest integer forms,
// no indefinite-length items.
// Nil slices and maps encode as empty ones.
// The same logical value therefore always produces the same bytes,
// and so the same address.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("bucketset: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("bucketset: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
