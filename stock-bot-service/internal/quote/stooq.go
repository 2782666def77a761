package quote

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/Lucca-Muniz/Chat/pkg/log"
)

const (
	DefaultBaseURL = "https://stooq.com"

	// Symbol,Date,Time,Open,High,Low,Close,Volume
	stooqColumns = 8
	stooqNoData  = "N/D"
)

// StooqClient fetches quotes from the stooq CSV endpoint.
type StooqClient struct {
	client *resty.Client
}

func NewStooqClient(baseURL string, timeout time.Duration) *StooqClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "text/csv")
	return &StooqClient{client: client}
}

func (c *StooqClient) Fetch(ctx context.Context, code string) (*Quote, error) {
	l := log.Ctx(ctx)

	path := fmt.Sprintf("/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", url.QueryEscape(code))
	resp, err := c.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", code, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to fetch quote for %s: unexpected status %d", code, resp.StatusCode())
	}

	q, err := ParseCSV(resp.Body())
	if errors.Is(err, ErrNotFound) {
		l.Debug().Str(log.FieldStockCode, code).Msg("no quote available")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote for %s: %w", code, err)
	}
	return q, nil
}

// ParseCSV parses a stooq response: a header line followed by one data row.
// It returns ErrNotFound when the row is missing or carries N/D values.
func ParseCSV(body []byte) (*Quote, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	row, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(row) < stooqColumns {
		return nil, fmt.Errorf("expected %d columns, got %d", stooqColumns, len(row))
	}
	for _, field := range row[1:stooqColumns] {
		if strings.TrimSpace(field) == stooqNoData {
			return nil, ErrNotFound
		}
	}

	q := &Quote{
		Symbol: strings.TrimSpace(row[0]),
		Time:   strings.TrimSpace(row[2]),
	}
	if q.Date, err = time.Parse(time.DateOnly, strings.TrimSpace(row[1])); err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}

	prices := []*decimal.Decimal{&q.Open, &q.High, &q.Low, &q.Close}
	for i, dst := range prices {
		if *dst, err = decimal.NewFromString(strings.TrimSpace(row[3+i])); err != nil {
			return nil, fmt.Errorf("invalid price in column %d: %w", 4+i, err)
		}
	}
	if q.Volume, err = strconv.ParseInt(strings.TrimSpace(row[7]), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid volume: %w", err)
	}

	return q, nil
}
