//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseEventID checks that parsing never panics and that accepted IDs
// round-trip through String.
func FuzzParseEventID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseEventID(input)
		if err == nil {
			roundTrip, err2 := ParseEventID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
			if id.IsNil() {
				t.Error("nil UUID was accepted")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		errs := parseAll(input)
		for _, err := range errs[1:] {
			if (errs[0] == nil) != (err == nil) {
				t.Fatal("inconsistent parsing across ID types")
			}
		}
	})
}
