package trust

import (
	"regexp"
	"strings"
)

// legalPrefixes are Japanese legal-entity prefixes stripped before
// extracting the organization's own name.
var legalPrefixes = []string{
	"公益財団法人",
	"一般財団法人",
	"公益社団法人",
	"一般社団法人",
	"社会福祉法人",
	"特定非営利活動法人",
	"NPO法人",
	"独立行政法人",
	"地方独立行政法人",
	"国立研究開発法人",
}

// orgSuffixPatterns match an organization name ending in a recognizable
// entity word. Longest-first so 株式会社 wins over 会.
var orgSuffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?株式会社)`),
	regexp.MustCompile(`^(.+?財団)`),
	regexp.MustCompile(`^(.+?基金)`),
	regexp.MustCompile(`^(.+?協会)`),
	regexp.MustCompile(`^(.+?団体)`),
	regexp.MustCompile(`^(.+?機構)`),
	regexp.MustCompile(`^(.+?法人)`),
	regexp.MustCompile(`^(.+?会)`),
}

// genericTerms are stems too generic to identify an organization.
var genericTerms = map[string]bool{
	"公益":  true,
	"一般":  true,
	"社会":  true,
	"福祉":  true,
	"特定":  true,
	"非営利": true,
}

// ExtractOrgName pulls the distinguishing organization name out of a
// candidate title such as "公益財団法人トヨタ財団 研究助成プログラム".
// Returns empty when nothing usable remains.
func ExtractOrgName(candidateName string) string {
	name := strings.TrimSpace(candidateName)
	if name == "" {
		return ""
	}

	for _, prefix := range legalPrefixes {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimSpace(strings.TrimPrefix(name, prefix))
			break
		}
	}
	if name == "" {
		return ""
	}

	for _, pattern := range orgSuffixPatterns {
		if m := pattern.FindStringSubmatch(name); m != nil {
			candidate := strings.TrimSpace(m[1])
			if !isGeneric(candidate) {
				return candidate
			}
		}
	}

	// Fall back to the first whitespace-delimited token of usable length.
	for _, token := range strings.Fields(name) {
		if len([]rune(token)) >= 2 && !isGeneric(token) {
			return token
		}
	}

	return ""
}

// domainSuffixes are entity words an organization drops from its own
// domain name: LUSH財団 registers lush.or.jp, not lush財団.or.jp.
var domainSuffixes = []string{"株式会社", "財団", "法人"}

// DomainToken reduces an organization name to the lowercased token most
// likely to appear in its hostname.
func DomainToken(orgName string) string {
	token := strings.TrimSpace(orgName)
	for _, suffix := range domainSuffixes {
		token = strings.TrimSuffix(token, suffix)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		token = strings.TrimSpace(orgName)
	}
	return strings.ToLower(token)
}

func isGeneric(s string) bool {
	if genericTerms[s] {
		return true
	}
	// A name that is only generic stems glued together is still generic.
	remainder := s
	for {
		matched := false
		for term := range genericTerms {
			if strings.HasPrefix(remainder, term) {
				remainder = strings.TrimPrefix(remainder, term)
				matched = true
			}
		}
		if !matched {
			break
		}
	}
	return remainder == ""
}
