// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleRequest is a representative wire message using cbor struct
// tags (the convention for all Warden protocol types).
type sampleRequest struct {
	Method  string `cbor:"method"`
	Package string `cbor:"package,omitempty"`
	Seq     int    `cbor:"seq"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{
		Method:  "install_package",
		Package: "linux-perf-tools",
		Seq:     42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleRequest{Method: "fetch_file", Package: "x", Seq: 7}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A newer client may send fields this daemon does not know about.
	extended := struct {
		Method string `cbor:"method"`
		Seq    int    `cbor:"seq"`
		Extra  string `cbor:"extra"`
	}{Method: "stop_service", Seq: 3, Extra: "future"}

	data, err := Marshal(extended)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Method != "stop_service" || decoded.Seq != 3 {
		t.Errorf("decoded = %+v, want method stop_service seq 3", decoded)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	var decoded sampleRequest
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &decoded); err == nil {
		t.Fatal("Unmarshal of garbage bytes succeeded, want error")
	}
}
