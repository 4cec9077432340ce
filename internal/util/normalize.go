package util

import (
	"net/mail"
	"strings"
)

// NormalizeAddress extracts and normalizes an email address from a From/To
// header value.
// - Parses RFC 5322 values like "Name <user+alias@Example.COM>"
// - Lowercases
// - Strips +alias in the local part: user+news@x.com -> user@x.com
// Returns empty string if parsing fails or the address is missing.
func NormalizeAddress(header string) string {
	if header == "" {
		return ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil || addr == nil {
		// Some headers carry a list; try a crude fallback by splitting on comma.
		for _, p := range strings.Split(header, ",") {
			if a, e := mail.ParseAddress(strings.TrimSpace(p)); e == nil && a != nil {
				addr = a
				break
			}
		}
		if addr == nil {
			return ""
		}
	}

	email := strings.ToLower(strings.TrimSpace(addr.Address))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local := email[:at]
	domain := email[at+1:]

	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}

	return local + "@" + domain
}

// Compound TLDs where the registrable name needs three labels
// (bbc.co.uk, amazon.com.au, ...).
var compoundTLDs = map[string]struct{}{}

var compoundTLDList = []string{
	"com.au", "net.au", "org.au", "edu.au", "gov.au", "asn.au", "id.au",
	"co.uk", "org.uk", "me.uk", "net.uk", "ac.uk", "gov.uk", "ltd.uk", "plc.uk",
	"co.nz", "net.nz", "org.nz", "govt.nz", "ac.nz",
	"co.jp", "or.jp", "ne.jp", "ac.jp", "go.jp",
	"co.kr", "or.kr", "ne.kr", "go.kr", "ac.kr",
	"com.br", "net.br", "org.br", "gov.br", "edu.br",
	"co.in", "net.in", "org.in", "gov.in", "ac.in",
	"co.za", "org.za", "net.za", "gov.za", "ac.za",
	"com.mx", "org.mx", "gob.mx", "net.mx",
	"com.cn", "net.cn", "org.cn", "gov.cn", "ac.cn",
	"com.hk", "org.hk", "net.hk", "gov.hk", "edu.hk",
	"com.sg", "org.sg", "net.sg", "gov.sg", "edu.sg",
	"com.tw", "org.tw", "net.tw", "gov.tw", "edu.tw",
	"co.id", "or.id", "go.id", "ac.id",
	"com.my", "org.my", "net.my", "gov.my", "edu.my",
	"co.th", "or.th", "go.th", "ac.th",
	"com.ph", "org.ph", "net.ph", "gov.ph", "edu.ph",
	"com.vn", "net.vn", "org.vn", "gov.vn", "edu.vn",
	"com.tr", "org.tr", "net.tr", "gov.tr", "edu.tr",
	"com.ar", "org.ar", "net.ar", "gov.ar", "edu.ar",
	"com.co", "org.co", "net.co", "gov.co", "edu.co",
	"com.pe", "org.pe", "net.pe", "gob.pe", "edu.pe",
	"co.il", "org.il", "ac.il",
	"co.at", "com.cl", "com.de", "com.fr", "com.es", "com.it",
	"com.ru", "org.ru", "net.ru",
}

// Second-level labels that usually mark a compound TLD even when the exact
// pair is not in the table above.
var compoundSecondLevels = map[string]struct{}{
	"com": {}, "co": {}, "org": {}, "net": {}, "edu": {}, "gov": {},
	"ac": {}, "mil": {}, "or": {}, "ne": {}, "go": {}, "gob": {}, "nic": {},
}

func init() {
	for _, tld := range compoundTLDList {
		compoundTLDs[tld] = struct{}{}
	}
}

// RegistrableDomain strips subdomains from a host, keeping the registrable
// portion: mail.google.com -> google.com, news.bbc.co.uk -> bbc.co.uk.
func RegistrableDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return domain
	}

	keep := 2
	if len(parts) >= 3 {
		lastTwo := parts[len(parts)-2] + "." + parts[len(parts)-1]
		if _, ok := compoundTLDs[lastTwo]; ok {
			keep = 3
		} else if _, ok := compoundSecondLevels[parts[len(parts)-2]]; ok {
			keep = 3
		}
	}

	if len(parts) >= keep {
		return strings.Join(parts[len(parts)-keep:], ".")
	}
	return domain
}
