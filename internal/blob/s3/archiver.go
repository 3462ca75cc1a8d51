package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// PayloadArchiver stores raw provider response pages. One object per ingest
// poll, NDJSON with one provider page per line.
//
// Object layout:
//
//	raw/{window}/{2006-01-02}/{150405.000}.ndjson
type PayloadArchiver struct {
	writer *Writer
}

// NewPayloadArchiver creates a PayloadArchiver over the given client.
func NewPayloadArchiver(c *Client) *PayloadArchiver {
	return &PayloadArchiver{writer: NewWriter(c)}
}

// Archive uploads the raw pages of one poll. Pages are stored verbatim so a
// disputed derivation can be replayed against the original bytes.
func (a *PayloadArchiver) Archive(ctx context.Context, window string, at time.Time, pages [][]byte) (string, error) {
	if len(pages) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for _, page := range pages {
		buf.Write(bytes.TrimRight(page, "\n"))
		buf.WriteByte('\n')
	}

	path := fmt.Sprintf("raw/%s/%s/%s.ndjson",
		window,
		at.UTC().Format("2006-01-02"),
		at.UTC().Format("150405.000"),
	)
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return "", err
	}
	return path, nil
}
