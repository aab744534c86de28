// Package codec encodes hub payloads as deterministic CBOR.
package codec

import (
	"fmt"
	"reflect"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeWorkEvent serializes a work event for publication on the hub.
func EncodeWorkEvent(ev domain.WorkEvent) ([]byte, error) {
	data, err := Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work event: %w", err)
	}
	return data, nil
}

// DecodeWorkEvent parses a hub payload. Events without a conversation are
// rejected.
func DecodeWorkEvent(data []byte) (domain.WorkEvent, error) {
	var ev domain.WorkEvent
	if err := Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode work event: %w", err)
	}
	if ev.ConvID == 0 {
		return ev, fmt.Errorf("failed to decode work event: missing conv_id")
	}
	switch ev.Kind {
	case domain.WorkNew, domain.WorkDone:
	default:
		return ev, fmt.Errorf("failed to decode work event: unknown kind '%s'", ev.Kind)
	}
	return ev, nil
}

// Diagnose returns the CBOR diagnostic notation of data, for logs.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
