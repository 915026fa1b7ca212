// Package tabular reads query lists and reads/writes result tables as
// delimiter-separated UTF-8 text with a header row.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FranksOps/quarry/internal/serp"
)

var (
	ErrMissingHeader = errors.New("missing header")
	ErrMissingColumn = errors.New("missing column")
	ErrColumnCount   = errors.New("wrong number of columns")
	ErrEncoding      = errors.New("invalid UTF-8")
	ErrDelimiter     = errors.New("delimiter must be a single character")
)

const bom = "\ufeff"

// ParseDelimiter converts a configured delimiter to a rune.
func ParseDelimiter(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrDelimiter, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("%w: %q", ErrDelimiter, s)
	}
	return r, nil
}

// table is a parsed file: a header and rows of the same width.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) index(column string) (int, error) {
	for i, h := range t.header {
		if h == column {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %q", ErrMissingColumn, column)
}

func readTable(path string, delim rune) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	header[0] = strings.TrimPrefix(header[0], bom)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &table{header: header}
	last := endLine(r, header)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line, _ := r.FieldPos(0)
		// csv.Reader skips empty lines; a gap between records is an empty row.
		if line > last+1 {
			return nil, fmt.Errorf("%s line %d: %w: empty row", path, last+1, ErrColumnCount)
		}
		last = endLine(r, row)
		if len(row) != len(header) {
			return nil, fmt.Errorf("%s line %d: %w: got %d, want %d", path, line, ErrColumnCount, len(row), len(header))
		}
		for _, field := range row {
			if !utf8.ValidString(field) {
				return nil, fmt.Errorf("%s line %d: %w", path, line, ErrEncoding)
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// endLine returns the line on which row, the record r just read, ends.
// Quoted fields may span lines.
func endLine(r *csv.Reader, row []string) int {
	n := len(row) - 1
	line, _ := r.FieldPos(n)
	return line + strings.Count(row[n], "\n")
}

// ReadQueries returns the raw values of the "query" column in file order.
func ReadQueries(path string, delim rune) ([]string, error) {
	t, err := readTable(path, delim)
	if err != nil {
		return nil, err
	}
	col, err := t.index("query")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	queries := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		queries = append(queries, row[col])
	}
	return queries, nil
}

// ReadResults reads a results table. The language column is optional.
func ReadResults(path string, delim rune) ([]serp.Result, error) {
	t, err := readTable(path, delim)
	if err != nil {
		return nil, err
	}

	var idx [5]int
	for i, name := range []string{"query", "rank", "url", "title", "snippet"} {
		if idx[i], err = t.index(name); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	langCol, _ := t.index("language")

	results := make([]serp.Result, 0, len(t.rows))
	for i, row := range t.rows {
		rank, err := strconv.Atoi(strings.TrimSpace(row[idx[1]]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: rank: %w", path, i+1, err)
		}
		res := serp.Result{
			Query:   row[idx[0]],
			Rank:    rank,
			URL:     row[idx[2]],
			Title:   row[idx[3]],
			Snippet: row[idx[4]],
		}
		if langCol >= 0 {
			res.Language = row[langCol]
		}
		results = append(results, res)
	}
	return results, nil
}

// FailedName derives the failed-queries file name from the results file
// name: "queries.csv" becomes "queries-failed.csv".
func FailedName(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "-failed" + ext
}

// Writer writes tables into Dir, creating it on first use.
type Writer struct {
	Dir       string
	Delimiter rune
	Logger    *slog.Logger
}

func (w Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// WriteResults writes results to Dir/filename and returns the path and the
// number of rows written. Nothing is written when results is empty. Rows
// that are not valid UTF-8 are logged and skipped.
func (w Writer) WriteResults(filename string, results []serp.Result, withLanguage bool) (string, int, error) {
	if len(results) == 0 {
		w.logger().Info("no results to export")
		return "", 0, nil
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.Row(withLanguage))
	}
	return w.write(filename, serp.Columns(withLanguage), rows)
}

// WriteFailed writes the failed normalized queries under the "query" header.
// Nothing is written when queries is empty.
func (w Writer) WriteFailed(filename string, queries []string) (string, int, error) {
	if len(queries) == 0 {
		return "", 0, nil
	}
	rows := make([][]string, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []string{q})
	}
	return w.write(FailedName(filename), []string{"query"}, rows)
}

func (w Writer) write(filename string, header []string, rows [][]string) (string, int, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(w.Dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	count, err := encode(f, w.Delimiter, header, rows, w.logger().With("path", path))
	if err != nil {
		return "", count, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", count, fmt.Errorf("close %s: %w", path, err)
	}

	w.logger().Info("exported rows", "path", path, "rows", count)
	return path, count, nil
}

// EncodeResults writes a results table to out, for example to stdout.
func EncodeResults(out io.Writer, delim rune, results []serp.Result, withLanguage bool, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.Row(withLanguage))
	}
	return encode(out, delim, serp.Columns(withLanguage), rows, logger)
}

// encode writes header and rows, skipping (and logging) rows that are not
// valid UTF-8 or fail to encode.
func encode(out io.Writer, delim rune, header []string, rows [][]string, logger *slog.Logger) (int, error) {
	cw := csv.NewWriter(out)
	cw.Comma = delim
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("header: %w", err)
	}

	count := 0
	for _, row := range rows {
		if !validRow(row) {
			logger.Error("skipping row with invalid encoding", "query", row[0])
			continue
		}
		if err := cw.Write(row); err != nil {
			logger.Error("skipping row", "query", row[0], "err", err)
			continue
		}
		count++
	}

	cw.Flush()
	return count, cw.Error()
}

func validRow(row []string) bool {
	for _, field := range row {
		if !utf8.ValidString(field) {
			return false
		}
	}
	return true
}
