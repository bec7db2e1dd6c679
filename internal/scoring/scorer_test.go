package scoring

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tinytelemetry/phishcatch/internal/suspicious"
)

func defaultScorer(t *testing.T) *Scorer {
	t.Helper()
	cfg, err := suspicious.Default()
	if err != nil {
		t.Fatalf("suspicious.Default: %v", err)
	}
	return New(cfg)
}

func emptyScorer() *Scorer {
	return New(suspicious.New(nil, nil))
}

func TestScore_DefaultConfig(t *testing.T) {
	t.Parallel()

	s := defaultScorer(t)

	tests := []struct {
		domain    string
		wantScore int
		wantTags  []string
	}{
		{
			domain:    "paypal-secure-login.com",
			wantScore: 311,
			wantTags: []string{
				"has keyword: login",
				"has keyword: secure",
				"has keyword: paypal",
			},
		},
		{
			domain:    "www.paypal.com.security.accountupdate.gq",
			wantScore: 411,
			wantTags: []string{
				TagSuspiciousTLD,
				"has keyword: account",
				"has keyword: security",
				"has keyword: update",
				"has keyword: paypal",
				"has keyword: .com.",
				TagDeeplyNested,
			},
		},
		{
			domain:    "paypol.com",
			wantScore: 196,
			wantTags:  []string{"short distance for strong keyword: paypol"},
		},
		{
			domain:    "example.com",
			wantScore: 138,
		},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			got := s.Score(tt.domain)
			if got.Score != tt.wantScore {
				t.Errorf("Score(%q) = %d, want %d (tags %v)", tt.domain, got.Score, tt.wantScore, got.Tags)
			}
			if !reflect.DeepEqual(got.Tags, tt.wantTags) {
				t.Errorf("Score(%q) tags = %q, want %q", tt.domain, got.Tags, tt.wantTags)
			}
			if got.Domain != tt.domain {
				t.Errorf("Score(%q) domain = %q", tt.domain, got.Domain)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	s := defaultScorer(t)
	for _, domain := range []string{
		"paypal-secure-login.com",
		"*.appleid-verify.account-update.info",
		"xn--pypal-4ve.com",
		"",
		"...",
	} {
		first := s.Score(domain)
		for i := 0; i < 20; i++ {
			again := s.Score(domain)
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("Score(%q) not deterministic: %+v vs %+v", domain, first, again)
			}
		}
	}
}

func TestScore_NeverNegativeOrPanics(t *testing.T) {
	t.Parallel()

	s := defaultScorer(t)
	inputs := []string{
		"", ".", "*.", "*.*.", "-", "----.----", "com", "*.com", "a..b.com",
		"ünïcödé.例え.jp", "\x00\xff", strings.Repeat("a", 300) + ".com",
		" spaced domain .com", "http://paypal.com/login",
	}
	for _, in := range inputs {
		got := s.Score(in)
		if got.Score < 0 {
			t.Fatalf("Score(%q) = %d, want >= 0", in, got.Score)
		}
	}
}

func TestScore_SuspiciousTLDAddsTwenty(t *testing.T) {
	t.Parallel()

	s := New(suspicious.New(nil, []string{".tk"}))

	flagged := s.Score("login-portal.tk")
	neutral := s.Score("login-portal.ml")

	if diff := flagged.Score - neutral.Score; diff != 20 {
		t.Fatalf("suspicious TLD diff = %d, want 20", diff)
	}
	if !reflect.DeepEqual(flagged.Tags, []string{TagSuspiciousTLD}) {
		t.Fatalf("tags = %q, want [%q]", flagged.Tags, TagSuspiciousTLD)
	}
}

func TestScore_OverlappingTLDsCountIndependently(t *testing.T) {
	t.Parallel()

	s := New(suspicious.New(nil, []string{".tk", "k", ".zz.tk"}))
	got := s.Score("a.zz.tk")

	n := 0
	for _, tag := range got.Tags {
		if tag == TagSuspiciousTLD {
			n++
		}
	}
	if n != 3 {
		t.Fatalf("suspicious tld tags = %d, want 3 (%q)", n, got.Tags)
	}
}

func TestScore_FourHyphensAddTwelve(t *testing.T) {
	t.Parallel()

	s := emptyScorer()

	hyphenated := s.Score("a-b-c-d-e.com")
	neutral := s.Score("a_b_c_d_e.com")

	if diff := hyphenated.Score - neutral.Score; diff != 12 {
		t.Fatalf("hyphen diff = %d, want 12", diff)
	}
	if !reflect.DeepEqual(hyphenated.Tags, []string{TagManyHyphens}) {
		t.Fatalf("tags = %q, want [%q]", hyphenated.Tags, TagManyHyphens)
	}
}

func TestScore_HyphensIgnoredForIDN(t *testing.T) {
	t.Parallel()

	s := emptyScorer()
	got := s.Score("xn--a-b-c-d.com")
	for _, tag := range got.Tags {
		if tag == TagManyHyphens {
			t.Fatalf("IDN domain should not trigger hyphen rule: %q", got.Tags)
		}
	}
}

func TestScore_ThreeHyphensNoBonus(t *testing.T) {
	t.Parallel()

	s := emptyScorer()
	if got := s.Score("a-b-c-d.com"); len(got.Tags) != 0 {
		t.Fatalf("three hyphens tags = %q, want none", got.Tags)
	}
}

func TestScore_NearMissDistance(t *testing.T) {
	t.Parallel()

	s := New(suspicious.New([]suspicious.Keyword{
		{Word: "paypal", Weight: 70},
		{Word: "google", Weight: 60},
		{Word: "gmail", Weight: 70},
	}, nil))

	tests := []struct {
		name     string
		domain   string
		wantTags []string
	}{
		{name: "distance one", domain: "paypol.com", wantTags: []string{TagNearMissPrefix + "paypol"}},
		{name: "distance two", domain: "pajpol.com"},
		{name: "exact match is keyword only", domain: "paypal.com", wantTags: []string{TagKeywordPrefix + "paypal"}},
		{name: "weak keyword typo", domain: "goggle.com"},
		{name: "generic token excluded", domain: "mail.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.domain)
			if !reflect.DeepEqual(got.Tags, tt.wantTags) {
				t.Fatalf("Score(%q) tags = %q, want %q", tt.domain, got.Tags, tt.wantTags)
			}
		})
	}

	typo := s.Score("paypol.com")
	far := s.Score("pajpol.com")
	// Both reduce to ".paypol"/".pajpol", which share a character distribution.
	if diff := typo.Score - far.Score; diff != 70 {
		t.Fatalf("near-miss bonus = %d, want 70", diff)
	}
}

func TestScore_DeeplyNested(t *testing.T) {
	t.Parallel()

	s := emptyScorer()

	got := s.Score("a.b.c.d.example.com")
	// Suffix is dropped: "a.b.c.d.example" has four dots.
	if !reflect.DeepEqual(got.Tags, []string{TagDeeplyNested}) {
		t.Fatalf("tags = %q, want [%q]", got.Tags, TagDeeplyNested)
	}
	want := entropyPoints("a.b.c.d.example") + 4*3
	if got.Score != want {
		t.Fatalf("score = %d, want %d", got.Score, want)
	}
}

func TestScore_WildcardPrefixStripped(t *testing.T) {
	t.Parallel()

	s := defaultScorer(t)
	wild := s.Score("*.paypal-secure-login.com")
	plain := s.Score("paypal-secure-login.com")

	if wild.Score != plain.Score || !reflect.DeepEqual(wild.Tags, plain.Tags) {
		t.Fatalf("wildcard score = %d %q, plain = %d %q", wild.Score, wild.Tags, plain.Score, plain.Tags)
	}
}

func TestScore_SecondWildcardStripKeepsLiteralBehaviour(t *testing.T) {
	t.Parallel()

	s := emptyScorer()

	// The unknown suffix leaves "*.x.zzz" after the first strip, so the
	// second strip runs; tokens still start with the empty string.
	got := s.Score("*.*.x.zzz")
	if got.Score != s.Score("x.zzz").Score {
		t.Fatalf("double wildcard score = %d, want %d", got.Score, s.Score("x.zzz").Score)
	}
	if len(got.Tags) != 0 {
		t.Fatalf("double wildcard tags = %q, want none", got.Tags)
	}
}

func TestScore_UnknownSuffixKeepsDomain(t *testing.T) {
	t.Parallel()

	s := emptyScorer()
	got := s.Score("x.zzz")
	if want := entropyPoints("x.zzz"); got.Score != want {
		t.Fatalf("score = %d, want %d", got.Score, want)
	}
}

func TestParseTLD(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host       string
		wantOK     bool
		wantResult string
	}{
		{host: "paypal.com.example.net", wantOK: true, wantResult: "paypal.com.example"},
		{host: "login.example.co.uk", wantOK: true, wantResult: "login.example"},
		{host: "paypal.com", wantOK: true, wantResult: ".paypal"},
		{host: "x.zzz", wantOK: false},
		{host: "com", wantOK: false},
		{host: "", wantOK: false},
		{host: "a..com", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := parseTLD(tt.host)
			if got.ok != tt.wantOK {
				t.Fatalf("parseTLD(%q).ok = %v, want %v", tt.host, got.ok, tt.wantOK)
			}
			if got.ok && got.withoutSuffix() != tt.wantResult {
				t.Fatalf("parseTLD(%q) = %q, want %q", tt.host, got.withoutSuffix(), tt.wantResult)
			}
		})
	}
}
