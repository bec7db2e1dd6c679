package scoring

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// tldParse is the outcome of splitting a host around its public suffix.
// When ok is false the host could not be parsed and callers keep it as is.
type tldParse struct {
	ok        bool
	subdomain string // labels left of the registrable domain, may be empty
	domain    string // registrable label without the suffix
	suffix    string
}

// parseTLD splits host using the public suffix list. Hosts whose suffix is
// only matched by the implicit "*" rule are treated as unparseable.
func parseTLD(host string) tldParse {
	if host == "" {
		return tldParse{}
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	if !icann && !strings.Contains(suffix, ".") {
		return tldParse{}
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return tldParse{}
	}
	return tldParse{
		ok:        true,
		subdomain: strings.TrimSuffix(strings.TrimSuffix(host, registrable), "."),
		domain:    strings.TrimSuffix(registrable, "."+suffix),
		suffix:    suffix,
	}
}

// withoutSuffix returns subdomain + "." + domain, exposing an inner fake TLD
// such as the "com" in paypal.com.example.net.
func (p tldParse) withoutSuffix() string {
	return p.subdomain + "." + p.domain
}
