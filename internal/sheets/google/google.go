// Package google implements sheets.Store on top of the Google Sheets v4 API.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/Neonotso/budget-agent/internal/cache"
	"github.com/Neonotso/budget-agent/internal/log"
	"github.com/Neonotso/budget-agent/internal/sheets"
)

const (
	ValueInputUserEntered = "USER_ENTERED"
	ValueInputRaw         = "RAW"

	// DefaultSpreadsheetTitle names spreadsheets created on first run.
	DefaultSpreadsheetTitle = "Budget App"
)

// Client is a sheets.Store for one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	valueInput    string
	sheetIDs      *cache.LRUCache[int64]
	logger        *log.Logger
}

var _ sheets.Store = (*Client)(nil)

type Option func(*Client)

// WithValueInputOption selects how written cells are interpreted,
// USER_ENTERED (default) or RAW. With USER_ENTERED a cell starting with
// "=" is written behind a leading apostrophe so text such as a
// description "=SUM(1,2)" is stored as typed instead of as a formula.
func WithValueInputOption(opt string) Option {
	return func(c *Client) {
		if opt != "" {
			c.valueInput = strings.ToUpper(opt)
		}
	}
}

// WithSheetIDCache replaces the sheet-ID cache, e.g. to register it with a
// cache.Manager.
func WithSheetIDCache(ids *cache.LRUCache[int64]) Option {
	return func(c *Client) {
		if ids != nil {
			c.sheetIDs = ids
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentSheets)
		}
	}
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID string, opts ...Option) *Client {
	c := &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		valueInput:    ValueInputUserEntered,
		sheetIDs:      NewSheetIDCache(),
		logger:        log.Default().WithComponent(log.ComponentSheets),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewSheetIDCache returns the cache used for title to sheet-ID lookups.
func NewSheetIDCache() *cache.LRUCache[int64] {
	return cache.NewLRUCache[int64](64, 10*time.Minute)
}

// NewService builds a Sheets service authenticated by ts over a pooled
// HTTP client. Extra options are appended, so tests can point the service
// at a local endpoint.
func NewService(ctx context.Context, ts oauth2.TokenSource, opts ...goption.ClientOption) (*gsheet.Service, error) {
	base := newHTTPClientWithPooling()
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	client.Timeout = base.Timeout
	svc, err := gsheet.NewService(ctx, append([]goption.ClientOption{goption.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// newHTTPClientWithPooling creates an HTTP client optimized for Google Sheets API
// with connection pooling, proper timeouts, and keep-alive settings
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ResolveSpreadsheetID returns the configured ID, else the one stored in
// idFile, else creates a new spreadsheet titled title and records its ID in
// idFile.
func ResolveSpreadsheetID(ctx context.Context, svc *gsheet.Service, configured, idFile, title string) (string, error) {
	if id := strings.TrimSpace(configured); id != "" {
		return id, nil
	}
	if idFile != "" {
		b, err := os.ReadFile(idFile)
		switch {
		case err == nil:
			if id := strings.TrimSpace(string(b)); id != "" {
				return id, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read spreadsheet id file: %w", err)
		}
	}
	if title == "" {
		title = DefaultSpreadsheetTitle
	}
	created, err := svc.Spreadsheets.Create(&gsheet.Spreadsheet{
		Properties: &gsheet.SpreadsheetProperties{Title: title},
	}).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	if idFile != "" {
		if err := os.WriteFile(idFile, []byte(created.SpreadsheetId+"\n"), 0644); err != nil {
			return "", fmt.Errorf("write spreadsheet id file: %w", err)
		}
	}
	log.Default().WithComponent(log.ComponentSheets).InfoContext(ctx, "spreadsheet created",
		"spreadsheet_id", created.SpreadsheetId, "title", title)
	return created.SpreadsheetId, nil
}

// SpreadsheetID returns the ID of the spreadsheet the client works on.
func (c *Client) SpreadsheetID() string {
	return c.spreadsheetID
}

func (c *Client) Read(ctx context.Context, rng sheets.Range) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	a1 := rng.String()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1).
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1, mapError(err))
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (c *Client) Append(ctx context.Context, table string, row []string) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	a1 := sheets.Columns(table, "A", sheets.ColumnLetter(max(len(row), 1)-1)).String()
	vr := &gsheet.ValueRange{Values: [][]any{c.toValues(row)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, a1, vr).
		ValueInputOption(c.valueInput).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", a1, mapError(err))
	}
	written := len(row)
	if resp.Updates != nil {
		written = int(resp.Updates.UpdatedCells)
		c.logger.DebugContext(ctx, "row appended", log.FieldRange, resp.Updates.UpdatedRange, log.FieldCells, written)
	}
	return written, nil
}

func (c *Client) Update(ctx context.Context, rng sheets.Range, row []string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	a1 := rng.String()
	vr := &gsheet.ValueRange{Values: [][]any{c.toValues(row)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, a1, vr).
		ValueInputOption(c.valueInput).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", a1, mapError(err))
	}
	return nil
}

func (c *Client) DeleteRows(ctx context.Context, table string, start, end int) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if start < 0 || end <= start {
		return fmt.Errorf("delete rows %s: invalid span [%d,%d)", table, start, end)
	}
	sheetID, err := c.sheetID(ctx, table)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(start),
			EndIndex:   int64(end),
			// Sheet 0 and row 0 are valid values and must not be omitted.
			ForceSendFields: []string{"SheetId", "StartIndex"},
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete rows %s[%d:%d]: %w", table, start, end, mapError(err))
	}
	return nil
}

func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	props, err := c.sheetProperties(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Title)
	}
	return names, nil
}

func (c *Client) CreateTable(ctx context.Context, name string) error {
	names, err := c.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return fmt.Errorf("%s: %w", name, sheets.ErrTableExists)
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
	}}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", name, mapError(err))
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id := resp.Replies[0].AddSheet.Properties.SheetId
		c.sheetIDs.Set(name, id)
		c.logger.InfoContext(ctx, "sheet added", log.FieldTable, name, log.FieldSheetID, id)
	}
	return nil
}

// sheetID resolves a sheet title to its numeric ID. Concurrent misses for
// the same title share one metadata request.
func (c *Client) sheetID(ctx context.Context, table string) (int64, error) {
	return c.sheetIDs.GetOrLoad(table, func() (int64, error) {
		props, err := c.sheetProperties(ctx)
		if err != nil {
			return 0, err
		}
		for _, p := range props {
			if p.Title == table {
				return p.SheetId, nil
			}
		}
		return 0, fmt.Errorf("%s: %w", table, sheets.ErrTableNotFound)
	})
}

// sheetProperties fetches every sheet's title and ID, refreshing the cache.
func (c *Client) sheetProperties(ctx context.Context) ([]*gsheet.SheetProperties, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet metadata: %w", mapError(err))
	}
	props := make([]*gsheet.SheetProperties, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		c.sheetIDs.Set(s.Properties.Title, s.Properties.SheetId)
		props = append(props, s.Properties)
	}
	return props, nil
}

// mapError turns "Unable to parse range" answers for missing sheets into
// sheets.ErrTableNotFound and leaves everything else as is.
func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range") {
		return fmt.Errorf("%w: %s", sheets.ErrTableNotFound, gerr.Message)
	}
	return err
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func (c *Client) toValues(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if c.valueInput == ValueInputUserEntered && strings.HasPrefix(v, "=") {
			v = "'" + v
		}
		out[i] = v
	}
	return out
}
