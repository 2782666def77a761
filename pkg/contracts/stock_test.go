package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStockCommand_WireFormat(t *testing.T) {
	req := require.New(t)

	body, err := Encode(StockCommand{StockCode: "aapl.us", Username: "alice", ChatRoomID: 1})
	req.NoError(err)
	req.JSONEq(`{"StockCode":"aapl.us","Username":"alice","ChatRoomId":1}`, string(body))

	cmd, err := DecodeStockCommand(body)
	req.NoError(err)
	req.Equal(&StockCommand{StockCode: "aapl.us", Username: "alice", ChatRoomID: 1}, cmd)
}

func TestStockResponse_WireFormat(t *testing.T) {
	req := require.New(t)

	resp, err := DecodeStockResponse([]byte(`{"Message":"AAPL quote is $150.25 per share","ChatRoomId":3}`))
	req.NoError(err)
	req.Equal(3, resp.ChatRoomID)
	req.Equal("AAPL quote is $150.25 per share", resp.Message)
}

func TestDecode_Malformed(t *testing.T) {
	req := require.New(t)

	_, err := DecodeStockCommand([]byte(`{not json`))
	req.ErrorIs(err, ErrMalformed)

	_, err = DecodeStockCommand([]byte(`{"Username":"alice","ChatRoomId":1}`))
	req.ErrorIs(err, ErrMalformed)

	_, err = DecodeStockResponse([]byte(`{"ChatRoomId":1}`))
	req.ErrorIs(err, ErrMalformed)
}
