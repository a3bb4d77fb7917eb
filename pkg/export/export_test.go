package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Name: "Log",
		Columns: []Column{
			{Key: "id", Title: "ID", Width: 10},
			{Key: "note"},
		},
		Rows: []map[string]string{
			{"id": "1", "note": "first, with comma"},
			{"id": "2"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	body, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"ID", "note"},
		{"1", "first, with comma"},
		{"2", ""},
	}, records)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestXLSXExporterRender(t *testing.T) {
	body, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Log")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "note"}, rows[0])
	assert.Equal(t, "first, with comma", rows[1][1])

	width, err := book.GetColWidth("Log", "A")
	require.NoError(t, err)
	assert.InDelta(t, 10, width, 0.01)
}

func TestPDFExporterRenderSlip(t *testing.T) {
	body, err := NewPDFExporter().RenderSlip(Slip{
		Title:    "Make-up Slip",
		Subtitle: "Submission sub-1",
		Fields:   []SlipField{{Label: "Student", Value: "Ana Ñúñez"}, {Label: "Note"}},
		Footer:   "Generated today",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))

	_, err = NewPDFExporter().RenderSlip(Slip{Title: "empty"})
	assert.Error(t, err)
}
