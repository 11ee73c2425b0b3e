package dict_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amesworks/groundwork/internal/dict"
)

func sampleDefinitions() []dict.Definition {
	return []dict.Definition{
		{Name: "MS Zoning", Kind: dict.KindNominal, Values: []string{"A", "C", "RL"}},
		{Name: "Lot Frontage", Kind: dict.KindContinuous},
		{Name: "Lot Shape", Kind: dict.KindOrdinal, Values: []string{"Reg", "IR1"}},
		{Name: "Year Built", Kind: dict.KindDiscrete},
	}
}

func TestNewDictionary(t *testing.T) {
	t.Run("preserves order and lookup", func(t *testing.T) {
		d, err := dict.New(sampleDefinitions())
		require.NoError(t, err)
		require.Equal(t, 4, d.Len())

		defs := d.Definitions()
		assert.Equal(t, "MS Zoning", defs[0].Name)
		assert.Equal(t, "Year Built", defs[3].Name)

		def, ok := d.Lookup("Lot Shape")
		require.True(t, ok)
		assert.Equal(t, dict.KindOrdinal, def.Kind)

		_, ok = d.Lookup("SalePrice")
		assert.False(t, ok)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		defs := sampleDefinitions()
		defs = append(defs, dict.Definition{Name: "MS Zoning", Kind: dict.KindNominal, Values: []string{"X"}})
		_, err := dict.New(defs)
		require.ErrorContains(t, err, "duplicate definition MS Zoning")
	})

	t.Run("rejects values on quantitative kinds", func(t *testing.T) {
		_, err := dict.New([]dict.Definition{
			{Name: "Lot Area", Kind: dict.KindContinuous, Values: []string{"10"}},
		})
		require.ErrorContains(t, err, "carry no value set")
	})

	t.Run("kind filters", func(t *testing.T) {
		d, err := dict.New(sampleDefinitions())
		require.NoError(t, err)
		qual := d.Qualitative()
		require.Len(t, qual, 2)
		assert.Equal(t, "MS Zoning", qual[0].Name)
		quant := d.Quantitative()
		require.Len(t, quant, 2)
		assert.Equal(t, "Lot Frontage", quant[0].Name)
	})
}

func TestCodecs(t *testing.T) {
	t.Run("json omits values for quantitative kinds", func(t *testing.T) {
		data, err := dict.EncodeJSON(sampleDefinitions())
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"values": null`)

		decoded, err := dict.DecodeJSON(data)
		require.NoError(t, err)
		assert.Equal(t, sampleDefinitions(), decoded)
	})

	t.Run("yaml round-trip keeps order", func(t *testing.T) {
		data, err := dict.EncodeYAML(sampleDefinitions())
		require.NoError(t, err)
		decoded, err := dict.DecodeYAML(data)
		require.NoError(t, err)
		assert.Equal(t, sampleDefinitions(), decoded)
	})

	t.Run("decode validates kinds", func(t *testing.T) {
		_, err := dict.DecodeJSON([]byte(`[{"name":"X","kind":"Fuzzy"}]`))
		require.ErrorContains(t, err, "unknown kind")
	})

	t.Run("load file dispatches on extension", func(t *testing.T) {
		dir := t.TempDir()
		jsonData, err := dict.EncodeJSON(sampleDefinitions())
		require.NoError(t, err)
		jsonPath := filepath.Join(dir, "variables.json")
		require.NoError(t, os.WriteFile(jsonPath, jsonData, 0o644))

		yamlData, err := dict.EncodeYAML(sampleDefinitions())
		require.NoError(t, err)
		yamlPath := filepath.Join(dir, "variables.yaml")
		require.NoError(t, os.WriteFile(yamlPath, yamlData, 0o644))

		fromJSON, err := dict.LoadFile(jsonPath)
		require.NoError(t, err)
		fromYAML, err := dict.LoadFile(yamlPath)
		require.NoError(t, err)
		assert.Equal(t, fromJSON.Definitions(), fromYAML.Definitions())
	})
}

func TestAllowed(t *testing.T) {
	def := dict.Definition{Name: "Street", Kind: dict.KindNominal, Values: []string{"Grvl", "Pave"}}
	allowed, ok := def.Allowed()
	require.True(t, ok)
	assert.Contains(t, allowed, "Pave")

	_, ok = dict.Definition{Name: "Lot Area", Kind: dict.KindContinuous}.Allowed()
	assert.False(t, ok)
}
