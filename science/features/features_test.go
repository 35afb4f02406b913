package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDVIScenario(t *testing.T) {
	// Red=1000, NIR=3000 -> NDVI = 0.5, the literal end-to-end scenario.
	got := ndvi(1000, 3000)
	assert.InDelta(t, 0.5, got, 1e-9)
}

func TestFormulasFiniteForNonnegativeInputs(t *testing.T) {
	in := Input{Bands: [4]float64{0, 0, 0, 0}, Month: 6, Year: 2021, DayOfYear: 180}
	for _, name := range Names() {
		ex, err := Lookup(name)
		require.NoError(t, err)
		for _, v := range ex.Apply(in) {
			assert.False(t, math.IsNaN(v), "%s produced NaN on all-zero bands", name)
			assert.False(t, math.IsInf(v, 0), "%s produced Inf on all-zero bands", name)
		}
	}
}

func TestEVIFormula(t *testing.T) {
	in := Input{Bands: [4]float64{500, 0, 1000, 3000}}
	got := eviExtractor.Apply(in)[0]
	want := 2.5 * (3000 - 1000) / (3000 + 6*1000 - 7.5*500 + 1)
	assert.InDelta(t, want, got, 1e-6)
}

func TestSAVIFormula(t *testing.T) {
	in := Input{Bands: [4]float64{0, 0, 1000, 3000}}
	got := saviExtractor.Apply(in)[0]
	want := (3000 - 1000) * 1.5 / (3000 + 1000 + 0.5)
	assert.InDelta(t, want, got, 1e-6)
}

func TestNDWIFormula(t *testing.T) {
	assert.InDelta(t, -0.2, ndwi(2000, 3000), 1e-6)
}

func TestLookupUnknownExtractor(t *testing.T) {
	_, err := Lookup("not_a_real_extractor")
	assert.Error(t, err)
}

func TestEngineerWidthAndColumns(t *testing.T) {
	e, err := NewEngineer([]string{"ndvi", "brightness"})
	require.NoError(t, err)
	assert.Equal(t, 4+1+3, e.Width())
	assert.Equal(t, []string{"blue", "green", "red", "nir", "ndvi", "brightness_mean", "brightness_nir", "brightness_std"}, e.ColumnNames())
}

func TestEngineerTransformLength(t *testing.T) {
	e, err := NewEngineer(Names())
	require.NoError(t, err)
	row := e.Transform(Input{Bands: [4]float64{100, 200, 300, 400}, Month: 3, Year: 2021, DayOfYear: 60})
	assert.Len(t, row, e.Width())
}

func TestEngineerRejectsUnknownExtractor(t *testing.T) {
	_, err := NewEngineer([]string{"ndvi", "bogus"})
	assert.Error(t, err)
}

func TestEqualExtractorLists(t *testing.T) {
	assert.True(t, Equal([]string{"ndvi", "evi"}, []string{"ndvi", "evi"}))
	assert.False(t, Equal([]string{"ndvi", "evi"}, []string{"evi", "ndvi"}))
	assert.False(t, Equal([]string{"ndvi"}, []string{"ndvi", "evi"}))
}
