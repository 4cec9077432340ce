package util

import "testing"

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "user@example.com", "user@example.com"},
		{"display name", "Jane Doe <Jane.Doe@Example.COM>", "jane.doe@example.com"},
		{"plus alias", "user+news@example.com", "user@example.com"},
		{"quoted name with alias", `"Newsletter" <promo+weekly@Shop.example.com>`, "promo@shop.example.com"},
		{"empty", "", ""},
		{"garbage", "not an address", ""},
		{"list picks first parseable", "bogus, Real <real@example.com>", "real@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeAddress(tc.in); got != tc.want {
				t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"mail.google.com", "google.com"},
		{"sub.domain.example.com", "example.com"},
		{"amazon.com.au", "amazon.com.au"},
		{"shop.amazon.com.au", "amazon.com.au"},
		{"bbc.co.uk", "bbc.co.uk"},
		{"news.bbc.co.uk", "bbc.co.uk"},
		{"shop.example.co.jp", "example.co.jp"},
		{"localhost", "localhost"},
	}
	for _, tc := range cases {
		if got := RegistrableDomain(tc.in); got != tc.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
