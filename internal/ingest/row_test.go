package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps/internal/model"
)

var fullHeader = []string{
	"Company ID", "Company Name", "Industry Tags", "Primary Industry Group", "Primary Industry Sector",
	"Verticals", "Employees", "Employee Source", "Current Revenue USD", "Revenue Source",
	"Total Raised", "Valuation", "Is Public", "Stage", "HQ Country", "HQ State", "HQ City", "Investors",
}

func TestParseCompanyRow_Full(t *testing.T) {
	row := []string{
		"42", "Acme Marketing", "saas; marketing", "Software", "Technology",
		"adtech,martech", "1,200", "PitchBook", "$150.5", "crunchbase",
		"40000000", "2e8", "no", "Series B", "US", "CA", "San Francisco", "10|11",
	}

	c, err := ParseCompanyRow(fullHeader, row)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, "Acme Marketing", c.Name)
	assert.Equal(t, []string{"saas", "marketing"}, c.IndustryTags)
	assert.Equal(t, "Software", c.IndustryGroup)
	assert.Equal(t, "Technology", c.IndustrySector)
	assert.Equal(t, "adtech,martech", c.Verticals)
	require.NotNil(t, c.EmployeeCount)
	assert.Equal(t, 1200, *c.EmployeeCount)
	assert.Equal(t, model.SourcePitchBook, c.EmployeeSource)
	require.NotNil(t, c.RevenueMillions)
	assert.InDelta(t, 150.5, *c.RevenueMillions, 1e-9)
	assert.Equal(t, model.SourceCrunchbase, c.RevenueSource)
	require.NotNil(t, c.ValuationUSD)
	assert.InDelta(t, 2e8, *c.ValuationUSD, 1e-3)
	require.NotNil(t, c.IsPublic)
	assert.False(t, *c.IsPublic)
	require.NotNil(t, c.FundingStage)
	assert.Equal(t, 3, *c.FundingStage)
	assert.Equal(t, "US", c.Country)
	assert.Equal(t, []int64{10, 11}, c.InvestorIDs)
}

func TestParseCompanyRow_BlankOptionalStaysNil(t *testing.T) {
	c, err := ParseCompanyRow([]string{"id", "name", "employees", "revenue", "is_public"}, []string{"7", "Beta", "", "", ""})
	require.NoError(t, err)
	assert.Nil(t, c.EmployeeCount)
	assert.Nil(t, c.RevenueMillions)
	assert.Nil(t, c.IsPublic)
	assert.Nil(t, c.IndustryTags)
}

func TestParseCompanyRow_ShortRow(t *testing.T) {
	c, err := ParseCompanyRow([]string{"id", "name", "country"}, []string{"7", "Beta"})
	require.NoError(t, err)
	assert.Empty(t, c.Country)
}

func TestParseCompanyRow_Errors(t *testing.T) {
	header := []string{"id", "name", "employees", "revenue", "is_public", "stage", "investors"}
	tests := []struct {
		name    string
		row     []string
		wantErr string
	}{
		{name: "bad id", row: []string{"abc", "X", "", "", "", "", ""}, wantErr: "invalid id"},
		{name: "zero id", row: []string{"0", "X", "", "", "", "", ""}, wantErr: "invalid id"},
		{name: "missing name", row: []string{"1", "", "", "", "", "", ""}, wantErr: "name is required"},
		{name: "bad employees", row: []string{"1", "X", "lots", "", "", "", ""}, wantErr: "employee_count"},
		{name: "negative revenue", row: []string{"1", "X", "", "-3", "", "", ""}, wantErr: "revenue must be >= 0"},
		{name: "bad bool", row: []string{"1", "X", "", "", "maybe", "", ""}, wantErr: "is_public"},
		{name: "bad stage", row: []string{"1", "X", "", "", "", "Series Z", ""}, wantErr: "funding_stage"},
		{name: "stage out of range", row: []string{"1", "X", "", "", "", "9", ""}, wantErr: "out of range"},
		{name: "bad investor", row: []string{"1", "X", "", "", "", "", "10;x"}, wantErr: "invalid investor id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCompanyRow(header, tt.row)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseHeader_MissingRequired(t *testing.T) {
	_, err := ParseHeader([]string{"name", "country"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "id"`)
}

func TestParseHeader_FirstAliasWins(t *testing.T) {
	cols, err := ParseHeader([]string{"id", "name", "revenue", "current_revenue_usd"})
	require.NoError(t, err)
	assert.Equal(t, 2, cols["revenue"])
}

func TestParseFundingStage(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"Pre-Seed", 0},
		{"seed", 1},
		{"Series A", 2},
		{"series_c", 4},
		{"Series D+", 5},
		{"Late Stage", 6},
		{"IPO", 7},
		{"7", 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFundingStage(tt.in)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	got, err := ParseFundingStage("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a; b"))
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"a,b", "c"}, splitList("a,b|c"))
	assert.Nil(t, splitList(""))
}
