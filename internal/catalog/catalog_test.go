package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-screener/internal/domain"
	"quote-screener/internal/storage/memory"
)

func testInstruments() []*domain.Instrument {
	return []*domain.Instrument{
		{Symbol: "TCS", Exchange: "NSE", Name: "Tata Consultancy Services", Sector: "IT", Industry: "IT Services", InstrumentKey: "NSE_EQ|INE467B01029"},
		{Symbol: "RELIANCE", Exchange: "NSE", Name: "Reliance Industries", Sector: "Energy", Industry: "Refineries", InstrumentKey: "NSE_EQ|INE002A01018"},
		{Symbol: "HDFCBANK", Exchange: "NSE", Name: "HDFC Bank", Sector: "Banking", Industry: "Private Banks"},
		{Symbol: "INFY", Exchange: "NSE", Name: "Infosys", Sector: "IT", Industry: "IT Services", InstrumentKey: "NSE_EQ|INE009A01021"},
	}
}

func TestNew_LookupAndOrder(t *testing.T) {
	c, err := New(testInstruments())
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, []string{"HDFCBANK", "INFY", "RELIANCE", "TCS"}, c.Symbols())

	i, ok := c.Lookup("TCS")
	require.True(t, ok)
	assert.Equal(t, "Tata Consultancy Services", i.Name)

	_, ok = c.Lookup("tcs")
	assert.False(t, ok, "symbols are case-sensitive")

	i, ok = c.LookupKey("NSE_EQ|INE002A01018")
	require.True(t, ok)
	assert.Equal(t, "RELIANCE", i.Symbol)

	i, ok = c.Resolve("NSE_EQ|INE009A01021")
	require.True(t, ok)
	assert.Equal(t, "INFY", i.Symbol)

	assert.Equal(t, []string{"NSE_EQ|INE009A01021", "NSE_EQ|INE002A01018", "NSE_EQ|INE467B01029"}, c.InstrumentKeys())
}

func TestNew_RejectsDuplicates(t *testing.T) {
	instruments := testInstruments()
	instruments = append(instruments, &domain.Instrument{Symbol: "TCS"})
	_, err := New(instruments)
	assert.ErrorIs(t, err, ErrDuplicateInstrument)

	instruments = testInstruments()
	instruments = append(instruments, &domain.Instrument{Symbol: "WIPRO", InstrumentKey: "NSE_EQ|INE467B01029"})
	_, err = New(instruments)
	assert.ErrorIs(t, err, ErrDuplicateInstrument)

	_, err = New([]*domain.Instrument{{Symbol: " "}})
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestInstruments_ReturnsCopies(t *testing.T) {
	c, err := New(testInstruments())
	require.NoError(t, err)

	list := c.Instruments()
	list[0].Name = "mutated"

	i, _ := c.Lookup(list[0].Symbol)
	assert.NotEqual(t, "mutated", i.Name)
}

func TestReadCSV(t *testing.T) {
	data := "symbol,name,sector,exchange,instrument_key\n" +
		"TCS,Tata Consultancy Services,IT,NSE,NSE_EQ|INE467B01029\n" +
		"INFY, Infosys ,IT,NSE,\n"

	instruments, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	assert.Equal(t, "TCS", instruments[0].Symbol)
	assert.Equal(t, "NSE_EQ|INE467B01029", instruments[0].InstrumentKey)
	assert.Equal(t, "Infosys", instruments[1].Name)
	assert.Empty(t, instruments[1].Industry)
}

func TestReadCSV_MissingSymbol(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name,sector\nInfosys,IT\n"))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("symbol,name\n,Infosys\n"))
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	content := `instruments:
  - symbol: TCS
    exchange: NSE
    name: Tata Consultancy Services
    sector: IT
    instrument_key: NSE_EQ|INE467B01029
  - symbol: HDFCBANK
    name: HDFC Bank
    sector: Banking
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	i, ok := c.LookupKey("NSE_EQ|INE467B01029")
	require.True(t, ok)
	assert.Equal(t, "TCS", i.Symbol)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInstrumentStore()
	require.NoError(t, store.InsertBulk(ctx, testInstruments()))

	c, err := LoadStore(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())
}

func TestIndex_Search(t *testing.T) {
	c, err := New(testInstruments())
	require.NoError(t, err)

	idx, err := NewIndex(c)
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search("TCS", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "TCS", results[0].Symbol)

	results, err = idx.Search("infos", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "INFY", results[0].Symbol)

	results, err = idx.Search("banking", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "HDFCBANK", results[0].Symbol)

	results, err = idx.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
