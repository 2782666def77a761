package quote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aaplCSV = "Symbol,Date,Time,Open,High,Low,Close,Volume\r\nAAPL.US,2024-05-10,22:00:09,184.9,185.09,182.13,183.05,50759496\r\n"

func TestParseCSV(t *testing.T) {
	req := require.New(t)

	q, err := ParseCSV([]byte(aaplCSV))
	req.NoError(err)
	req.Equal("AAPL.US", q.Symbol)
	req.Equal(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), q.Date)
	req.Equal("22:00:09", q.Time)
	req.Equal("184.9", q.Open.String())
	req.Equal("185.09", q.High.String())
	req.Equal("182.13", q.Low.String())
	req.Equal("183.05", q.Close.String())
	req.Equal(int64(50759496), q.Volume)
}

func TestParseCSV_KeepsExactPrice(t *testing.T) {
	req := require.New(t)

	q, err := ParseCSV([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nX.US,2024-05-10,22:00:09,0.3,0.31,0.3,0.305,10\n"))
	req.NoError(err)
	req.Equal("0.305", q.Close.String())
	req.Equal("0.31", q.Close.StringFixed(2))
}

func TestParseCSV_NoData(t *testing.T) {
	for name, body := range map[string]string{
		"N/D row":     "Symbol,Date,Time,Open,High,Low,Close,Volume\nZZZZ,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n",
		"header only": "Symbol,Date,Time,Open,High,Low,Close,Volume\n",
		"empty":       "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV([]byte(body))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestParseCSV_Malformed(t *testing.T) {
	_, err := ParseCSV([]byte("Symbol,Date\nAAPL.US,2024-05-10\n"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = ParseCSV([]byte("h\nAAPL.US,2024-05-10,22:00:09,abc,1,1,1,1\n"))
	assert.Error(t, err)
}

func TestStooqClient_Fetch(t *testing.T) {
	req := require.New(t)

	queries := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.RawQuery
		assert.Equal(t, "/q/l/", r.URL.Path)
		switch r.URL.Query().Get("s") {
		case "aapl.us":
			w.Write([]byte(aaplCSV))
		case "zzzz":
			w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nZZZZ,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	client := NewStooqClient(srv.URL, time.Second)

	q, err := client.Fetch(context.Background(), "aapl.us")
	req.NoError(err)
	req.NotNil(q)
	req.Equal("183.05", q.Close.String())
	req.Equal("s=aapl.us&f=sd2t2ohlcv&h&e=csv", <-queries)

	q, err = client.Fetch(context.Background(), "zzzz")
	req.NoError(err)
	req.Nil(q)

	_, err = client.Fetch(context.Background(), "boom")
	req.Error(err)
}
