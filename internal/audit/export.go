package audit

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

var csvHeader = []string{"Timestamp", "Username", "Action", "Entity Type", "Entity Name", "Reason"}

// Write encodes entries in format.
func Write(w io.Writer, format Format, entries []*Entry) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, entries)
	case FormatCSV:
		return WriteCSV(w, entries)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteCSV writes a header row and one row per entry, quoting every value.
// Line breaks inside a value are written as a bare LF, the only form a CSV
// reader hands back unchanged.
func WriteCSV(w io.Writer, entries []*Entry) error {
	if err := writeQuoted(w, csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeQuoted(w, []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Username,
			string(e.Action),
			string(e.EntityType),
			e.EntityName,
			e.Reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

var fieldEscaper = strings.NewReplacer("\r\n", "\n", "\r", "\n", `"`, `""`)

// writeQuoted emits one CSV record with every field quoted; encoding/csv
// only quotes when it has to.
func writeQuoted(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(fieldEscaper.Replace(f))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// ParseCSV reads what WriteCSV wrote. Only the exported columns are filled.
func ParseCSV(r io.Reader) ([]*Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv export is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range csvHeader {
		if header[i] != h {
			return nil, fmt.Errorf("unexpected csv column %d: %q", i, header[i])
		}
	}

	entries := []*Entry{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, record[0])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", record[0], err)
		}
		entries = append(entries, &Entry{
			Timestamp:  ts,
			Username:   record[1],
			Action:     Action(record[2]),
			EntityType: EntityType(record[3]),
			EntityName: record[4],
			Reason:     record[5],
		})
	}
	return entries, nil
}

func WriteJSON(w io.Writer, entries []*Entry) error {
	if entries == nil {
		entries = []*Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func ParseJSON(r io.Reader) ([]*Entry, error) {
	var entries []*Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode json export: %w", err)
	}
	return entries, nil
}
