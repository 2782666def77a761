// Package contracts holds the payloads exchanged between chat-service and
// stock-bot-service over the durable queues. Field names are PascalCase on
// the wire so both sides interoperate with the existing .NET services.
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Default queue names.
const (
	StockCommandQueue  = "stock_commands"
	StockResponseQueue = "stock_responses"
)

var ErrMalformed = errors.New("malformed payload")

var validate = validator.New(validator.WithRequiredStructEnabled())

// StockCommand asks the bot to look up a quote on behalf of a user.
type StockCommand struct {
	StockCode  string `json:"StockCode" validate:"required"`
	Username   string `json:"Username"`
	ChatRoomID int    `json:"ChatRoomId"`
}

// StockResponse is the bot's answer, to be posted into ChatRoomID.
type StockResponse struct {
	Message    string `json:"Message" validate:"required"`
	ChatRoomID int    `json:"ChatRoomId"`
}

// Encode serializes a contract value as UTF-8 JSON.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return data, nil
}

// DecodeStockCommand parses and validates a command payload.
func DecodeStockCommand(body []byte) (*StockCommand, error) {
	var cmd StockCommand
	if err := decode(body, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// DecodeStockResponse parses and validates a response payload.
func DecodeStockResponse(body []byte) (*StockResponse, error) {
	var resp StockResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
