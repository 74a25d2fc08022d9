package enrich

import (
	"github.com/dcswatch/servertrack/internal/model"
	"github.com/dcswatch/servertrack/internal/normalize"
)

// Enricher classifies listing text against one immutable ruleset. It is pure
// and safe for concurrent use.
type Enricher struct {
	rules *Ruleset
}

// New creates an Enricher over the given ruleset.
func New(rules *Ruleset) *Enricher {
	return &Enricher{rules: rules}
}

// Enrich derives tags and endpoints from the concatenation of a row's name,
// description and mission. Classification runs on normalized text; endpoint
// extraction runs on the raw text so case-sensitive invite codes and URLs
// survive intact. The row's own host feeds the default-port fallbacks.
func (e *Enricher) Enrich(row model.ServerRow) model.Enrichment {
	raw := row.Name + " " + strOrEmpty(row.Description) + " " + strOrEmpty(row.Mission)
	text := normalize.Text(raw)

	return model.Enrichment{
		Terrain:          classify(text, e.rules.Terrain),
		Era:              classify(text, e.rules.Era),
		GameMode:         classify(text, e.rules.GameMode),
		Framework:        classify(text, e.rules.Framework),
		Language:         detectLanguage(raw),
		DiscordURL:       extractDiscord(raw),
		SRSAddress:       extractSRS(raw, row.Host),
		QQGroup:          extractQQGroup(raw),
		WebsiteURL:       extractWebsite(raw),
		TacviewAddress:   extractTacview(raw, row.Host),
		TeamspeakAddress: extractTeamspeak(raw),
	}
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
