package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func buildWorkbook(t *testing.T, sheets map[string][][]string) *bytes.Buffer {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestStreamXLSX_Header(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]string{
		"Companies": {
			{"id", "name"},
			{"1", "Acme"},
			{"2", "Beta"},
		},
	})
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamXLSX(context.Background(), buf, XLSXOptions{HasHeader: true, HeaderCh: headerCh})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, <-headerCh)
	assert.Equal(t, [][]string{{"1", "Acme"}, {"2", "Beta"}}, rows)
}

func TestStreamXLSX_SheetByName(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]string{
		"Companies": {{"id"}, {"1"}},
	})
	rowCh, errCh := StreamXLSX(context.Background(), buf, XLSXOptions{SheetName: "Missing"})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestStreamXLSX_IndexOutOfRange(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]string{"Sheet1": {{"id"}}})
	rowCh, errCh := StreamXLSX(context.Background(), buf, XLSXOptions{SheetIndex: 3})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestStreamXLSX_NotAWorkbook(t *testing.T) {
	rowCh, errCh := StreamXLSX(context.Background(), strings.NewReader("id,name\n"), XLSXOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xlsx: open workbook")
}
