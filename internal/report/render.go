package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Header is the fixed first row of every rendered table.
var Header = []string{
	"First Timestamp",
	"Last Timestamp",
	"Address 1",
	"Address 2",
	"Protocols",
	"Bytes Total",
}

// tableStyle is the boxed ASCII layout with headers kept as written.
var tableStyle = func() table.Style {
	s := table.StyleDefault
	s.Format.Header = text.FormatDefault
	return s
}()

// Render writes lines as a boxed text table, one row per conversation.
func Render(w io.Writer, lines []Line) error {
	tw := table.NewWriter()
	tw.SetStyle(tableStyle)

	header := make(table.Row, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, l := range lines {
		tw.AppendRow(table.Row{
			l.FirstTimestamp,
			l.LastTimestamp,
			l.Address1,
			l.Address2,
			strings.Join(l.Protocols, ","),
			l.BytesTotal,
		})
	}

	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

// String renders the current snapshot.
func (r *Report) String() string {
	var buf bytes.Buffer
	_ = Render(&buf, r.Snapshot())
	return buf.String()
}

// WriteFile snapshots the report and overwrites path with the table.
func (r *Report) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := Render(&buf, r.Snapshot()); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
