// Package enrich derives classification tags and contact endpoints from
// listing text.
package enrich

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category is one classification outcome with its pattern alternatives. Any
// alternative matching counts as a hit for the category.
type Category struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`

	compiled []*regexp.Regexp
}

// Ruleset is the immutable category→pattern configuration for one classifier
// instance. Categories are slices, not maps: the declared order is the
// priority order and overlapping vocabulary across categories must resolve
// to the earliest declared category.
type Ruleset struct {
	Terrain   []Category `yaml:"terrain"`
	Era       []Category `yaml:"era"`
	GameMode  []Category `yaml:"game_mode"`
	Framework []Category `yaml:"framework"`
}

// DefaultRuleset returns the built-in pattern tables. Non-ASCII alternatives
// deliberately omit \b: RE2 word boundaries only recognize ASCII word
// characters, so a boundary assertion next to CJK or Cyrillic text can never
// match.
func DefaultRuleset() *Ruleset {
	rs := &Ruleset{
		Terrain: []Category{
			{Name: "caucasus", Patterns: []string{
				`\bcaucasus\b`, `кавказ`, `高加索`, `\bgeorgia\b`,
				`\bbatumi\b`, `\bkutaisi\b`, `\btbilisi\b`, `\bsenaki\b`,
				`\bblack\s*sea\b`, `黑海`,
			}},
			{Name: "syria", Patterns: []string{
				`\bsyria\b`, `сирия`, `叙利亚`, `\bdamascus\b`,
				`\blatakia\b`, `\bramat\b`, `\bincirlik\b`,
			}},
			{Name: "persian_gulf", Patterns: []string{
				`\bpersian\s*gulf\b`, `\bpg\b`, `\bpersian\b`, `波斯湾`,
				`\bdubai\b`, `\bstraight?\s*of\s*hormuz\b`, `\bbandar\b`, `\bal.dhafra\b`,
			}},
			{Name: "marianas", Patterns: []string{
				`\bmarianas?\b`, `\bguam\b`, `\bsaipan\b`, `马里亚纳`,
			}},
			{Name: "nevada", Patterns: []string{
				`\bnevada\b`, `\bnttr\b`, `\bnellis\b`, `\blas\s*vegas\b`, `内华达`,
			}},
			{Name: "kola", Patterns: []string{
				`\bkola\b`, `кола`, `\bmurmansk\b`,
			}},
			{Name: "sinai", Patterns: []string{
				`\bsinai\b`, `西奈`, `\begypt\b`,
			}},
			{Name: "channel", Patterns: []string{
				`\bchannel\b`, `\bnormandy\b`, `英吉利`,
			}},
			{Name: "falklands", Patterns: []string{
				`\bfalklands?\b`, `\bsouth\s*atlantic\b`, `\bmalvinas\b`,
			}},
			{Name: "afghanistan", Patterns: []string{
				`\bafghanistan\b`, `阿富汗`,
			}},
		},
		Era: []Category{
			{Name: "wwii", Patterns: []string{
				`\bwwii\b`, `\bww2\b`, `\bworld\s*war\s*(ii|2)\b`, `\b1940s?\b`,
				`\bp-51\b`, `\bp-47\b`, `\bbf-?109\b`, `\bfw-?190\b`, `\bspitfire\b`,
				`二战`,
			}},
			{Name: "cold_war", Patterns: []string{
				`\bcold\s*war\b`, `\b80s?\b`, `\b1980s?\b`, `\b70s\b`,
				`\bmig-?21\b`, `\bmig-?23\b`, `\bf-?5\b`, `\bf-?4\b`, `\bphantom\b`,
				`冷战`,
			}},
			{Name: "modern", Patterns: []string{
				`\bmodern\b`, `\bf-?16\b`, `\bf-?18\b`, `\bf-?15\b`, `\bsu-?27\b`,
				`\bsu-?33\b`, `\bfa-?18\b`, `\bf/a-?18\b`, `\bhornet\b`, `\bviper\b`,
				`现代`,
			}},
		},
		GameMode: []Category{
			{Name: "pvp", Patterns: []string{`\bpvp\b`, `\bversus\b`, `对抗`, `\bcompetitive\b`, `\bdogfight\b`}},
			{Name: "pve", Patterns: []string{`\bpve\b`, `\bcoop\b`, `\bco-op\b`, `合作`}},
			{Name: "training", Patterns: []string{`\btraining\b`, `\btrain\b`, `训练`, `\bpractice\b`, `萌新`}},
		},
		Framework: []Category{
			{Name: "foothold", Patterns: []string{`\bfoothold\b`}},
			{Name: "pretense", Patterns: []string{`\bpretense\b`}},
			{Name: "tti", Patterns: []string{`\btti\b`, `\bthrough\s*the\s*inferno\b`}},
			{Name: "grayflag", Patterns: []string{`\bgray\s*flag\b`, `\bgrayflag\b`}},
			{Name: "blueflag", Patterns: []string{`\bblue\s*flag\b`, `\bblueflag\b`}},
			{Name: "liberation", Patterns: []string{`\bliberation\b`}},
			{Name: "rotorheads", Patterns: []string{`\brotor\s*heads?\b`}},
			{Name: "persian_war", Patterns: []string{`\bpersian\s*war\b`}},
		},
	}
	rs.compile()
	return rs
}

// LoadRuleset reads a full replacement ruleset from a YAML file. The file
// replaces the defaults wholesale so the declared order in the file is the
// priority order.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read ruleset %s", path)
	}
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrapf(err, "enrich: parse ruleset %s", path)
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	rs.compile()
	return &rs, nil
}

func (rs *Ruleset) validate() error {
	for _, axis := range [][]Category{rs.Terrain, rs.Era, rs.GameMode, rs.Framework} {
		for _, c := range axis {
			if c.Name == "" {
				return eris.New("enrich: ruleset category without a name")
			}
			for _, p := range c.Patterns {
				if _, err := regexp.Compile(p); err != nil {
					return eris.Wrapf(err, "enrich: category %s pattern %q", c.Name, p)
				}
			}
		}
	}
	return nil
}

// compile caches the compiled form of every pattern. Patterns that fail to
// compile are skipped, never fatal: a broken alternative degrades that
// category, not the row.
func (rs *Ruleset) compile() {
	for _, axis := range []*[]Category{&rs.Terrain, &rs.Era, &rs.GameMode, &rs.Framework} {
		for i := range *axis {
			c := &(*axis)[i]
			c.compiled = c.compiled[:0]
			for _, p := range c.Patterns {
				re, err := regexp.Compile(p)
				if err != nil {
					continue
				}
				c.compiled = append(c.compiled, re)
			}
		}
	}
}

// classify returns the name of the first category, in declared order, with
// any matching alternative, or nil when nothing matches. text must already
// be normalized.
func classify(text string, categories []Category) *string {
	for _, c := range categories {
		for _, re := range c.compiled {
			if re.MatchString(text) {
				name := c.Name
				return &name
			}
		}
	}
	return nil
}
