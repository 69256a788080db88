package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"template-docgen/internal/domain"
)

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Brand Name", "brand name", 1},
		{"disjoint", "Pack Size", "Closing Date", 0},
		{"partial", "Brand", "Brand Name", 0.5},
		{"both empty", "", "  ", 0},
		{"one empty", "Brand", "", 0},
		{"duplicates collapse", "name name brand", "brand name", 1},
		{"punctuation is part of a word", "Date:", "Date", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, Jaccard(tc.a, tc.b), 1e-9)
			require.InDelta(t, Jaccard(tc.a, tc.b), Jaccard(tc.b, tc.a), 1e-9)
		})
	}
}

func TestFindBestMatch(t *testing.T) {
	t.Run("perfect match", func(t *testing.T) {
		m, ok := FindBestMatch("Tender ID", []string{"Closing Date", "tender id"}, DefaultThreshold)
		require.True(t, ok)
		require.Equal(t, "tender id", m)
	})
	t.Run("below threshold", func(t *testing.T) {
		_, ok := FindBestMatch("Generic Name", []string{"Brand Name Registered"}, DefaultThreshold)
		require.False(t, ok)
	})
	t.Run("tie keeps first", func(t *testing.T) {
		m, ok := FindBestMatch("Brand", []string{"Brand Name", "Brand Code"}, DefaultThreshold)
		require.True(t, ok)
		require.Equal(t, "Brand Name", m)
	})
	t.Run("later strictly better wins", func(t *testing.T) {
		m, ok := FindBestMatch("Brand Name", []string{"Brand Code", "Brand Name"}, DefaultThreshold)
		require.True(t, ok)
		require.Equal(t, "Brand Name", m)
	})
	t.Run("zero threshold still needs overlap", func(t *testing.T) {
		_, ok := FindBestMatch("Quantity", []string{"Pack Size"}, 0)
		require.False(t, ok)
	})
	t.Run("no candidates", func(t *testing.T) {
		_, ok := FindBestMatch("Quantity", nil, 0)
		require.False(t, ok)
	})
}

func TestMapFields(t *testing.T) {
	fields := []domain.TemplateField{
		{ID: "brand", Label: "Brand", Type: domain.FieldTypeString},
		{ID: "closing_date", Label: "Closing Date", Type: domain.FieldTypeDate},
		{ID: "qty", Label: "Quantity Required", Type: domain.FieldTypeString},
		{ID: "missing", Label: "Storage Conditions", Type: domain.FieldTypeString},
		{ID: "Brand Name", Type: domain.FieldTypeString},
		{ID: "notes", Label: "Notes", Type: domain.FieldTypeString},
	}
	var data domain.FieldSet
	data.Set("Brand Name", domain.StringValue("Panadol"))
	data.Set("Closing Date", domain.DateValue(time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)))
	data.Set("Quantity Required", domain.NumberValue(1500))
	data.Set("Notes", domain.NullValue())

	got := MapFields(fields, data.Names(), data, DefaultThreshold)
	require.Equal(t, domain.MappedData{
		{ID: "brand", Value: "Panadol"},
		{ID: "closing_date", Value: "2024-06-30"},
		{ID: "qty", Value: "1500"},
		{ID: "missing", Value: ""},
		{ID: "Brand Name", Value: "Panadol"},
		{ID: "notes", Value: ""},
	}, got)
}

func TestMapFieldsMatchedNameAbsentFromData(t *testing.T) {
	fields := []domain.TemplateField{{ID: "brand", Label: "Brand Name"}}
	got := MapFields(fields, []string{"Brand Name"}, nil, DefaultThreshold)
	require.Equal(t, domain.MappedData{{ID: "brand", Value: ""}}, got)
}

func TestMapFieldsKeepsStoredTextOfTimestampsAndNumbers(t *testing.T) {
	var data domain.FieldSet
	require.NoError(t, json.Unmarshal([]byte(`{"Opening Time":"2024-03-05T10:30:00+05:30","Closing Date":"2024-03-05T00:00:00Z","Tender Value":125000.50}`), &data))

	fields := []domain.TemplateField{
		{ID: "opening", Label: "Opening Time"},
		{ID: "closing", Label: "Closing Date"},
		{ID: "value", Label: "Tender Value"},
	}
	got := MapFields(fields, data.Names(), data, DefaultThreshold)
	require.Equal(t, domain.MappedData{
		{ID: "opening", Value: "2024-03-05T10:30:00+05:30"},
		{ID: "closing", Value: "2024-03-05T00:00:00Z"},
		{ID: "value", Value: "125000.50"},
	}, got)
}
