package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDiscord(t *testing.T) {
	got := extractDiscord("Join us at discord.gg/abc123 tonight")
	require.NotNil(t, got)
	assert.Equal(t, "discord.gg/abc123", *got)

	got = extractDiscord("https://discordapp.com/invite/xYz-9")
	require.NotNil(t, got)
	assert.Equal(t, "discord.gg/xYz-9", *got)

	assert.Nil(t, extractDiscord("no invite here"))
}

func TestExtractSRS_Explicit(t *testing.T) {
	got := extractSRS("SRS: 5.6.7.8:5002", "1.1.1.1")
	require.NotNil(t, got)
	assert.Equal(t, "5.6.7.8:5002", *got)
}

func TestExtractSRS_ReversedForm(t *testing.T) {
	got := extractSRS("Radio on 5.6.7.8:5002 via SRS", "1.1.1.1")
	require.NotNil(t, got)
	assert.Equal(t, "5.6.7.8:5002", *got)
}

func TestExtractSRS_KeywordFallsBackToHost(t *testing.T) {
	got := extractSRS("SRS enabled", "9.9.9.9")
	require.NotNil(t, got)
	assert.Equal(t, "9.9.9.9:5002", *got)

	assert.Nil(t, extractSRS("voice chat on discord", "9.9.9.9"))
}

func TestExtractQQGroup(t *testing.T) {
	got := extractQQGroup("QQ群: 123456789")
	require.NotNil(t, got)
	assert.Equal(t, "123456789", *got)

	got = extractQQGroup("qq 987654")
	require.NotNil(t, got)
	assert.Equal(t, "987654", *got)

	// Too short to be a group number.
	assert.Nil(t, extractQQGroup("qq: 12345"))
}

func TestExtractWebsite_SkipsDiscordAndTrimsPunctuation(t *testing.T) {
	got := extractWebsite("Join https://discord.gg/xyz or read https://wiki.example.org/start.")
	require.NotNil(t, got)
	assert.Equal(t, "https://wiki.example.org/start", *got)

	// A listing with only a Discord URL has no website.
	assert.Nil(t, extractWebsite("https://discord.gg/xyz"))
	assert.Nil(t, extractWebsite("no links"))
}

func TestExtractTacview(t *testing.T) {
	got := extractTacview("Tacview: 1.2.3.4:42674", "9.9.9.9")
	require.NotNil(t, got)
	assert.Equal(t, "1.2.3.4:42674", *got)

	got = extractTacview("Tacview recording available", "9.9.9.9")
	require.NotNil(t, got)
	assert.Equal(t, "9.9.9.9:42674", *got)

	assert.Nil(t, extractTacview("no telemetry", "9.9.9.9"))
}

func TestExtractTeamspeak(t *testing.T) {
	got := extractTeamspeak("TS: ts.example.com:9987")
	require.NotNil(t, got)
	assert.Equal(t, "ts.example.com:9987", *got)

	got = extractTeamspeak("teamspeak voice.example.org")
	require.NotNil(t, got)
	assert.Equal(t, "voice.example.org", *got)

	assert.Nil(t, extractTeamspeak("no voice server"))
}
