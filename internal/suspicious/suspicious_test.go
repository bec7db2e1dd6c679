package suspicious

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_LoadsEmbeddedFile(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	keywords := cfg.Keywords()
	if len(keywords) == 0 {
		t.Fatal("expected default keywords")
	}
	if keywords[0].Word != "account" || keywords[0].Weight != 35 {
		t.Fatalf("first keyword = %+v, want account:35", keywords[0])
	}

	if !containsString(cfg.TLDs(), ".tk") {
		t.Fatalf("default TLDs missing .tk: %v", cfg.TLDs())
	}

	var paypal bool
	for _, k := range cfg.StrongKeywords() {
		if k.Weight < StrongWeight {
			t.Fatalf("strong keyword %q has weight %d", k.Word, k.Weight)
		}
		if k.Word == "paypal" {
			paypal = true
		}
	}
	if !paypal {
		t.Fatal("paypal should be a strong keyword")
	}
}

func TestParse_PreservesKeywordOrder(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
keywords:
  zeta: 10
  alpha: 20
  "-com.": 30
tlds:
  - .gq
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	var words []string
	for _, k := range cfg.Keywords() {
		words = append(words, k.Word)
	}
	if got := strings.Join(words, ","); got != "zeta,alpha,-com." {
		t.Fatalf("keyword order = %q, want %q", got, "zeta,alpha,-com.")
	}
}

func TestParse_TLDMappingForm(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
tlds:
  '.ga':
  '.ml':
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := strings.Join(cfg.TLDs(), ","); got != ".ga,.ml" {
		t.Fatalf("TLDs = %q, want %q", got, ".ga,.ml")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "non numeric weight", yaml: "keywords:\n  paypal: lots\n"},
		{name: "negative weight", yaml: "keywords:\n  paypal: -5\n"},
		{name: "keywords as list", yaml: "keywords:\n  - paypal\n"},
		{name: "scalar document", yaml: "just a string\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestParse_EmptySections(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("keywords:\ntlds:\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Keywords()) != 0 || len(cfg.TLDs()) != 0 {
		t.Fatalf("expected empty config, got %d keywords %d tlds", len(cfg.Keywords()), len(cfg.TLDs()))
	}
}

func TestMerge_ReplacesWeightInPlace(t *testing.T) {
	t.Parallel()

	base := New([]Keyword{{"paypal", 70}, {"login", 25}}, []string{".tk"})
	extra := New([]Keyword{{"PayPal", 90}, {"acme", 40}}, []string{".tk", ".zip"})

	merged := base.Merge(extra)

	want := []Keyword{{"paypal", 90}, {"login", 25}, {"acme", 40}}
	got := merged.Keywords()
	if len(got) != len(want) {
		t.Fatalf("merged keywords = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("merged[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if tlds := strings.Join(merged.TLDs(), ","); tlds != ".tk,.zip" {
		t.Fatalf("merged TLDs = %q, want %q", tlds, ".tk,.zip")
	}

	if base.Keywords()[0].Weight != 70 {
		t.Fatal("Merge must not mutate the receiver")
	}
}

func TestLoadFile_MergeAndOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "external.yaml")
	if err := os.WriteFile(path, []byte("keywords:\n  acmebank: 80\ntlds:\n  - .zip\n"), 0o644); err != nil {
		t.Fatalf("write external: %v", err)
	}

	merged, err := LoadFile(path, nil, false)
	if err != nil {
		t.Fatalf("LoadFile merge: %v", err)
	}
	if len(merged.Keywords()) <= 1 {
		t.Fatalf("merge should keep defaults, got %d keywords", len(merged.Keywords()))
	}
	if !containsString(merged.TLDs(), ".zip") || !containsString(merged.TLDs(), ".tk") {
		t.Fatalf("merged TLDs = %v, want defaults plus .zip", merged.TLDs())
	}

	overridden, err := LoadFile(path, nil, true)
	if err != nil {
		t.Fatalf("LoadFile override: %v", err)
	}
	if got := overridden.Keywords(); len(got) != 1 || got[0].Word != "acmebank" {
		t.Fatalf("override keywords = %+v, want only acmebank", got)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), nil, false)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
