// Package scoring rates how closely a certificate domain resembles a
// phishing name. Scoring is pure: no state is kept between calls.
package scoring

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/tinytelemetry/phishcatch/internal/model"
	"github.com/tinytelemetry/phishcatch/internal/suspicious"
)

// Tags appended by the scoring rules.
const (
	TagSuspiciousTLD  = "has suspicious tld"
	TagFakeTLD        = "has suspicious/fake com/net/org in domain"
	TagKeywordPrefix  = "has keyword: "
	TagNearMissPrefix = "short distance for strong keyword: "
	TagManyHyphens    = "many '-' occurrences in the domain"
	TagDeeplyNested   = "deeply nested subdomains"
)

const (
	wildcardPrefix = "*."
	idnaPrefix     = "xn--"

	tldPoints      = 20
	fakeTLDPoints  = 10
	nearMissPoints = 70
	hyphenPoints   = 3
	dotPoints      = 3
	entropyWeight  = 50

	minHyphens = 4
	minDots    = 3
)

// nonWord splits on runs of characters that are not letters, digits or '_'.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

var fakeTLDTokens = map[string]bool{"com": true, "net": true, "org": true}

// genericTokens are too common to flag as typos of a strong keyword.
var genericTokens = map[string]bool{"email": true, "mail": true, "cloud": true}

// Scorer applies the heuristic rules using a fixed keyword and TLD set.
type Scorer struct {
	tlds     []string
	keywords []suspicious.Keyword
	strong   []suspicious.Keyword
}

// New creates a Scorer. The config is copied; later changes to it are not seen.
func New(cfg *suspicious.Config) *Scorer {
	return &Scorer{
		tlds:     cfg.TLDs(),
		keywords: cfg.Keywords(),
		strong:   cfg.StrongKeywords(),
	}
}

// Score rates domain, which the caller is expected to have lowercased.
// Any input is accepted; unparseable names are scored as given.
func (s *Scorer) Score(domain string) model.DomainScore {
	result := model.DomainScore{Domain: domain}
	score := 0
	var tags []string

	for _, t := range s.tlds {
		if strings.HasSuffix(domain, t) {
			score += tldPoints
			tags = append(tags, TagSuspiciousTLD)
		}
	}

	// Wildcard certificates list "*.example.com".
	name := strings.TrimPrefix(domain, wildcardPrefix)

	// Drop the public suffix to catch an inner TLD (paypal.com.example.net).
	if parsed := parseTLD(name); parsed.ok {
		name = parsed.withoutSuffix()
	}

	words := nonWord.Split(name, -1)

	if strings.HasPrefix(name, wildcardPrefix) {
		name = name[len(wildcardPrefix):]
		// A fake .com, as in *.com-account-management.info.
		if len(words) > 0 && fakeTLDTokens[words[0]] {
			score += fakeTLDPoints
			tags = append(tags, TagFakeTLD)
		}
	}

	for _, k := range s.keywords {
		if strings.Contains(name, k.Word) {
			score += k.Weight
			tags = append(tags, TagKeywordPrefix+k.Word)
		}
	}

	score += entropyPoints(name)

	// One-character typos of strong brands (paypol).
	for _, k := range s.strong {
		for _, w := range words {
			if genericTokens[w] {
				continue
			}
			if levenshtein.ComputeDistance(w, k.Word) == 1 {
				score += nearMissPoints
				tags = append(tags, TagNearMissPrefix+w)
			}
		}
	}

	// www.paypal-datacenter.com-acccount-alert.com
	if !strings.Contains(name, idnaPrefix) {
		if n := strings.Count(name, "-"); n >= minHyphens {
			score += n * hyphenPoints
			tags = append(tags, TagManyHyphens)
		}
	}

	// www.paypal.com.security.accountupdate.gq
	if n := strings.Count(name, "."); n >= minDots {
		score += n * dotPoints
		tags = append(tags, TagDeeplyNested)
	}

	result.Score = score
	result.Tags = tags
	return result
}
