package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSites() []Site {
	return []Site{
		{Code: "1", Name: "CRTS DE TREICHVILLE", Region: "ABIDJAN SUD", AnnualObjective: 36000},
		{Code: "9", Name: "CDTS DE BINGERVILLE", Region: "ABIDJAN SUD", AnnualObjective: 4800},
		{Code: "5", Name: "CRTS DE BOUAKE", Region: "CENTRE", AnnualObjective: 15000},
		{Code: "15", Name: "ANTENNE CRTS DE BOUAKE NORD", Region: "CENTRE", AnnualObjective: 1200},
	}
}

func TestKeyFoldsAccentsCaseAndSpaces(t *testing.T) {
	assert.Equal(t, "CDTS DE BINGERVILLE", Key("  cdts   de Bíngervìlle "))
	assert.Equal(t, "BOUAKE", Key("Bouaké"))
	assert.Equal(t, "", Key(" \t "))
}

func TestResolvePrecedence(t *testing.T) {
	reg := New(testSites())

	site, ok := reg.Resolve("9")
	require.True(t, ok)
	assert.Equal(t, "CDTS DE BINGERVILLE", site.Name)

	for _, input := range []string{"cdts de bingerville", "CDTS DE BÏNGERVILLE", " Cdts de Bingerville "} {
		site, ok = reg.Resolve(input)
		require.True(t, ok, input)
		assert.Equal(t, "9", site.Code, input)
	}

	_, ok = reg.Resolve("unknown site")
	assert.False(t, ok)
	_, ok = reg.Resolve("")
	assert.False(t, ok)
}

func TestResolveCodeBeatsName(t *testing.T) {
	reg := New([]Site{
		{Code: "A", Name: "5", Region: "X"},
		{Code: "5", Name: "CRTS DE BOUAKE", Region: "CENTRE"},
	})
	site, ok := reg.Resolve("5")
	require.True(t, ok)
	assert.Equal(t, "CRTS DE BOUAKE", site.Name)
}

func TestResolveContainmentFirstMatchWins(t *testing.T) {
	reg := New(testSites())

	// Input contains a registry name.
	site, ok := reg.Resolve("Collecte CRTS de Treichville (matin)")
	require.True(t, ok)
	assert.Equal(t, "1", site.Code)

	// Registry name contains the input.
	site, ok = reg.Resolve("bingerville")
	require.True(t, ok)
	assert.Equal(t, "9", site.Code)

	// The regional centre precedes its antenna in registry order.
	site, ok = reg.Resolve("ANTENNE CRTS DE BOUAKE NORD - mobile")
	require.True(t, ok)
	assert.Equal(t, "5", site.Code)

	// Exact name still wins over containment.
	site, ok = reg.Resolve("antenne crts de bouaké nord")
	require.True(t, ok)
	assert.Equal(t, "15", site.Code)
}

func TestRegistryAccessors(t *testing.T) {
	reg := New(testSites())
	assert.Equal(t, []string{"ABIDJAN SUD", "CENTRE"}, reg.Regions())
	assert.Equal(t, 57000, reg.TotalAnnualObjective())
	assert.Equal(t, 4, reg.Len())

	site, ok := reg.Lookup("15")
	require.True(t, ok)
	assert.Equal(t, "ANTENNE CRTS DE BOUAKE NORD", site.Name)

	sites := reg.Sites()
	sites[0].Name = "mutated"
	assert.Equal(t, "CRTS DE TREICHVILLE", reg.Sites()[0].Name)
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	site, ok := reg.Resolve("9")
	require.True(t, ok)
	assert.Equal(t, "CDTS DE BINGERVILLE", site.Name)
	_, ok = reg.Resolve("CRTS DE TREICHVILLE")
	assert.True(t, ok)
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	_, err := Parse([]byte(`[]`))
	assert.ErrorIs(t, err, ErrInvalidRegistry)

	_, err = Parse([]byte(`[{"code":"1","name":"","region":"R"}]`))
	assert.ErrorIs(t, err, ErrInvalidRegistry)

	_, err = Parse([]byte(`[{"code":"1","name":"A","region":"R","email":"not-an-email"}]`))
	assert.ErrorIs(t, err, ErrInvalidRegistry)

	_, err = Parse([]byte(`[{"code":"1","name":"A","region":"R"},{"code":" 1 ","name":"B","region":"R"}]`))
	assert.ErrorIs(t, err, ErrInvalidRegistry)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"code":"42","name":"CDTS TEST","region":"R","annualObjective":1200}]`), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	site, ok := reg.Resolve("cdts test")
	require.True(t, ok)
	assert.Equal(t, 1200, site.AnnualObjective)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
