package enrich

import (
	"fmt"
	"regexp"
	"strings"
)

// Default ports synthesized when a keyword appears without an explicit
// address.
const (
	defaultSRSPort     = 5002
	defaultTacviewPort = 42674
)

var (
	discordPattern    = regexp.MustCompile(`(?i)discord(?:\.gg|app\.com/invite)[/:\s]+([a-zA-Z0-9\-_]+)`)
	srsPattern        = regexp.MustCompile(`(?i)srs[:\s]+(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}[:\d]*)`)
	srsPatternAlt     = regexp.MustCompile(`(?i)(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}):(\d{4,5}).*srs`)
	srsKeyword        = regexp.MustCompile(`(?i)\bsrs\b`)
	qqPattern         = regexp.MustCompile(`(?i)(?:qq群?|QQ群?)[：:\s]*(\d{6,12})`)
	websitePattern    = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)
	tacviewPattern    = regexp.MustCompile(`(?i)tacview[:\s]+(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}[:\d]*)`)
	tacviewKeyword    = regexp.MustCompile(`(?i)\btacview\b`)
	teamspeakPattern  = regexp.MustCompile(`(?i)(?:ts|teamspeak)[:\s]+([a-zA-Z0-9.\-]+(?::\d+)?)`)
)

// extractDiscord returns a normalized discord.gg invite, or nil.
func extractDiscord(text string) *string {
	if m := discordPattern.FindStringSubmatch(text); m != nil {
		return ptr("discord.gg/" + m[1])
	}
	return nil
}

// extractSRS finds an SRS voice address: an explicit "srs: ip[:port]", the
// reversed "ip:port ... srs" form, or the keyword alone, which falls back to
// the listing's own host on the well-known SRS port.
func extractSRS(text, host string) *string {
	if m := srsPattern.FindStringSubmatch(text); m != nil {
		return ptr(m[1])
	}
	if m := srsPatternAlt.FindStringSubmatch(text); m != nil {
		return ptr(m[1] + ":" + m[2])
	}
	if srsKeyword.MatchString(text) {
		return ptr(fmt.Sprintf("%s:%d", host, defaultSRSPort))
	}
	return nil
}

func extractQQGroup(text string) *string {
	if m := qqPattern.FindStringSubmatch(text); m != nil {
		return ptr(m[1])
	}
	return nil
}

// extractWebsite returns the first non-Discord URL with trailing punctuation
// trimmed, or nil.
func extractWebsite(text string) *string {
	for _, m := range websitePattern.FindAllString(text, -1) {
		url := strings.TrimRight(m, ".,;:)")
		if !strings.Contains(strings.ToLower(url), "discord") {
			return ptr(url)
		}
	}
	return nil
}

// extractTacview finds a telemetry address, falling back to the listing's
// host on the default Tacview port when only the keyword appears.
func extractTacview(text, host string) *string {
	if m := tacviewPattern.FindStringSubmatch(text); m != nil {
		return ptr(m[1])
	}
	if tacviewKeyword.MatchString(text) {
		return ptr(fmt.Sprintf("%s:%d", host, defaultTacviewPort))
	}
	return nil
}

func extractTeamspeak(text string) *string {
	if m := teamspeakPattern.FindStringSubmatch(text); m != nil {
		return ptr(m[1])
	}
	return nil
}

func ptr(s string) *string { return &s }
