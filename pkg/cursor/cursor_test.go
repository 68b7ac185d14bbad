package cursor

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := Cursor{SortColumn: "age", LastValue: float64(30), LastPK: "users:1", Direction: "ASC", EffectiveLimit: 20}
	tok, err := Encode(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != c {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, c)
	}
}

func TestDecodeRejectsMalformedToken(t *testing.T) {
	if _, err := Decode("not-base64!!!"); err == nil {
		t.Fatalf("expected an error decoding a malformed token")
	}
}

func TestValidateRejectsMismatchedSortColumn(t *testing.T) {
	c := Cursor{SortColumn: "age"}
	if err := Validate(c, "name"); err == nil {
		t.Fatalf("expected a mismatch error")
	}
	if err := Validate(c, "age"); err != nil {
		t.Fatalf("expected no error on matching sort column: %v", err)
	}
}
