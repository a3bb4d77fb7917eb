package export

import "fmt"

// Column maps a row key to its printed header.
type Column struct {
	Key   string
	Title string
	Width float64
}

// Dataset is tabular export content shared by the CSV and XLSX renderers.
type Dataset struct {
	Name    string
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) validate(format string) error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s export requires at least one column", format)
	}
	return nil
}

func (d Dataset) headers() []string {
	headers := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		headers[i] = col.Title
		if headers[i] == "" {
			headers[i] = col.Key
		}
	}
	return headers
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		record[i] = row[col.Key]
	}
	return record
}
