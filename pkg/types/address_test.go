package types

import (
	"reflect"
	"testing"
)

func TestMissingFields(t *testing.T) {
	addr := ShippingAddress{FullName: " Asha ", Phone: "9876543210", Address: "12 MG Road", City: "  ", Country: "IN"}
	got := addr.MissingFields()
	want := []string{"city", "state", "zipCode"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	if trimmed := addr.Trimmed(); trimmed.FullName != "Asha" {
		t.Fatalf("expected trimmed name, got %q", trimmed.FullName)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "+91 98765-43210", want: "9876543210", ok: true},
		{in: "(987) 654 3210", want: "9876543210", ok: true},
		{in: "0098765432101", want: "8765432101", ok: true},
		{in: "12345", want: "12345", ok: false},
		{in: "", want: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := NormalizePhone(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%q: expected (%q,%v) got (%q,%v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}
