package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	data := `[
		{"server_name": "Alpha Squadron", "ip_address": "1.1.1.1", "port": 10308, "players_current": 4},
		{"server_name": "Bravo Field", "ip_address": "2.2.2.2"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	rows, err := loadRows(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alpha Squadron", rows[0].Name)
	assert.Equal(t, "1.1.1.1", rows[0].Host)
	assert.Equal(t, 10308, rows[0].Port)
	require.NotNil(t, rows[0].PlayersCurrent)
	assert.Equal(t, 4, *rows[0].PlayersCurrent)
	assert.Nil(t, rows[1].PlayersCurrent)
	assert.Zero(t, rows[1].Port)
}

func TestLoadRows_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := loadRows(path)
	require.Error(t, err)
}

func TestLoadRows_MissingFile(t *testing.T) {
	_, err := loadRows(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
