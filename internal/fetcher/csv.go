package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newswatch/internal/model"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV data and sends rows to a channel. Caller must consume
// the returned row channel. Errors are sent on the error channel. Both
// channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// grantColumns maps export header names to grant fields. The export has
// shipped under a few header variants over time.
var grantColumns = map[string]string{
	"topic_title":       "topic",
	"topic":             "topic",
	"description":       "description",
	"topic_description": "description",
	"topic_link":        "link",
	"link":              "link",
	"solicitation_link": "link",
	"agency":            "agency",
	"program":           "program",
	"close_date":        "close_date",
	"application_due":   "close_date",
}

// DecodeGrants streams the export CSV into grant records. Rows with no topic
// or link are skipped. The header row is required.
func DecodeGrants(ctx context.Context, r io.Reader) ([]model.Grant, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var header []string
	select {
	case header = <-headerCh:
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return nil, eris.New("csv: export is empty")
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
	}

	// Resolve which column index feeds which grant field.
	fieldIdx := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := grantColumns[key]; ok {
			if _, taken := fieldIdx[field]; !taken {
				fieldIdx[field] = i
			}
		}
	}
	if _, ok := fieldIdx["topic"]; !ok {
		return nil, eris.Errorf("csv: export missing topic column, header %v", header)
	}
	if _, ok := fieldIdx["link"]; !ok {
		return nil, eris.Errorf("csv: export missing link column, header %v", header)
	}

	at := func(row []string, field string) string {
		idx, ok := fieldIdx[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var grants []model.Grant
	for row := range rowCh {
		g := model.Grant{
			Topic:       at(row, "topic"),
			Description: at(row, "description"),
			Link:        at(row, "link"),
			Agency:      at(row, "agency"),
			Program:     at(row, "program"),
			CloseDate:   at(row, "close_date"),
		}
		if g.Topic == "" || g.Link == "" {
			continue
		}
		grants = append(grants, g)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return grants, nil
}
