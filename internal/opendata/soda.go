package opendata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gocarina/gocsv"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var ErrFormat = errors.New("format must be json or csv")

// Query narrows a SODA download. Zero values mean no limit and no filter.
type Query struct {
	Format Format
	Limit  int
	Where  string
}

// Table keeps the column order of the downloaded dataset.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Client downloads datasets from the Socrata (SODA) API of datos.gov.co.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) Download(ctx context.Context, datasetID string, q Query) (Table, error) {
	if q.Format == "" {
		q.Format = FormatJSON
	}
	if q.Format != FormatJSON && q.Format != FormatCSV {
		return Table{}, ErrFormat
	}
	if datasetID == "" || strings.ContainsAny(datasetID, "/?#") {
		return Table{}, fmt.Errorf("invalid dataset id %q", datasetID)
	}

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("$limit", strconv.Itoa(q.Limit))
	}
	if q.Where != "" {
		params.Set("$where", q.Where)
	}
	endpoint := fmt.Sprintf("%s/resource/%s.%s", c.baseURL, datasetID, q.Format)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Table{}, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("error downloading dataset %s: %w", datasetID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Table{}, fmt.Errorf("datos.gov.co returned status %d for dataset %s", resp.StatusCode, datasetID)
	}

	var table Table
	if q.Format == FormatCSV {
		table, err = parseCSV(resp.Body)
	} else {
		table, err = parseJSON(resp.Body)
	}
	if err != nil {
		return Table{}, err
	}
	log.WithFields(log.Fields{"dataset": datasetID, "rows": len(table.Rows)}).Info("open data downloaded")
	return table, nil
}

func parseCSV(r io.Reader) (Table, error) {
	records, err := gocsv.LazyCSVReader(r).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("error reading CSV: %w", err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	table := Table{Columns: records[0]}
	for _, record := range records[1:] {
		row := make(map[string]string, len(table.Columns))
		for i, column := range table.Columns {
			if i < len(record) {
				row[column] = record[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func parseJSON(r io.Reader) (Table, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return Table{}, fmt.Errorf("error decoding JSON: %w", err)
	}

	var table Table
	seen := map[string]bool{}
	for _, record := range records {
		keys := make([]string, 0, len(record))
		for key := range record {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		row := make(map[string]string, len(record))
		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				table.Columns = append(table.Columns, key)
			}
			row[key] = stringify(record[key])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	}
}

// WriteCSV writes the table with its header row.
func WriteCSV(table Table, w io.Writer) error {
	writer := gocsv.DefaultCSVWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		record := make([]string, len(table.Columns))
		for i, column := range table.Columns {
			record[i] = row[column]
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes the table to path, creating its folder.
func SaveCSV(table Table, path string) error {
	var buf bytes.Buffer
	if err := WriteCSV(table, &buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	log.WithField("path", path).Info("open data saved")
	return nil
}
