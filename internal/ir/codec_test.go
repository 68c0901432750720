package ir_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"funcmerge/internal/ir"
)

func TestCodecRoundTrip(t *testing.T) {
	m := mustParse(t, sampleModule)

	var buf bytes.Buffer
	if err := ir.Encode(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := ir.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := ir.Validate(back); err != nil {
		t.Fatalf("decoded module invalid: %v", err)
	}
	if got, want := back.String(), m.String(); got != want {
		t.Fatalf("decoded module differs:\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestCodecKeepsInstrNumbering(t *testing.T) {
	m := mustParse(t, sampleModule)
	var buf bytes.Buffer
	if err := ir.Encode(&buf, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := ir.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	loop := back.Func("loop")
	if loop == nil {
		t.Fatal("missing @loop")
	}
	// Fresh IDs must not collide with decoded ones.
	if id := loop.NewInstrID(); id != 3 {
		t.Fatalf("next instruction id = %d, want 3", id)
	}
}

func TestDecodeRejectsForeignSchema(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"Schema": 99, "Name": "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = ir.Decode(bytes.NewReader(payload))
	if !errors.Is(err, ir.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
