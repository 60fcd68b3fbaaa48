// Package whitelist loads the list of senders allowed to submit certificates.
package whitelist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"certintake/internal/port"
)

// DefaultTTL is how long a loaded whitelist is reused before it is fetched again.
const DefaultTTL = 5 * time.Minute

type storedWhitelist struct {
	storage port.ObjectStorage
	bucket  string
	key     string
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	senders  map[string]struct{}
	loadedAt time.Time
}

// NewStoredWhitelist creates a SenderWhitelist read from an object in storage.
// The object is either an .xlsx workbook or a plain text file with one address per line.
func NewStoredWhitelist(storage port.ObjectStorage, bucket, key string, ttl time.Duration) port.SenderWhitelist {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &storedWhitelist{storage: storage, bucket: bucket, key: key, ttl: ttl, now: time.Now}
}

func (w *storedWhitelist) Contains(ctx context.Context, sender string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.senders == nil || w.now().Sub(w.loadedAt) > w.ttl {
		data, err := w.storage.Download(ctx, w.bucket, w.key)
		if err != nil {
			return false, fmt.Errorf("whitelist.Contains: download %s: %w", w.key, err)
		}
		senders, err := Parse(w.key, data)
		if err != nil {
			return false, fmt.Errorf("whitelist.Contains: %w", err)
		}
		w.senders = senders
		w.loadedAt = w.now()
	}

	_, ok := w.senders[normalize(sender)]
	return ok, nil
}

// Parse reads sender addresses from a workbook or text file, chosen by name's extension.
func Parse(name string, data []byte) (map[string]struct{}, error) {
	if strings.EqualFold(path.Ext(name), ".xlsx") {
		return parseWorkbook(data)
	}
	return parseText(data)
}

// parseWorkbook reads column A of the first sheet. A header row is skipped
// because it never contains an address.
func parseWorkbook(data []byte) (map[string]struct{}, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}

	senders := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		add(senders, row[0])
	}
	return senders, nil
}

func parseText(data []byte) (map[string]struct{}, error) {
	senders := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		add(senders, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading whitelist: %w", err)
	}
	return senders, nil
}

func add(senders map[string]struct{}, value string) {
	addr := normalize(value)
	if addr == "" || !strings.Contains(addr, "@") {
		return
	}
	senders[addr] = struct{}{}
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
