// Package worker turns queued stock commands into queued responses.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Lucca-Muniz/Chat/pkg/contracts"
	"github.com/Lucca-Muniz/Chat/pkg/log"
	"github.com/Lucca-Muniz/Chat/pkg/queue"
	"github.com/Lucca-Muniz/Chat/stock-bot-service/internal/quote"
)

// CommandWorker consumes stock commands, looks the quote up and publishes the
// answer. A command is acknowledged only after its response is published, so
// a crash in between yields a duplicate response rather than a lost one.
type CommandWorker struct {
	broker        queue.Broker
	fetcher       quote.Fetcher
	responseQueue string
	consumer      *queue.Consumer

	mu       sync.Mutex
	declared bool
}

func NewCommandWorker(broker queue.Broker, commandQueue, responseQueue string, policy queue.RetryPolicy, fetcher quote.Fetcher) *CommandWorker {
	if commandQueue == "" {
		commandQueue = contracts.StockCommandQueue
	}
	if responseQueue == "" {
		responseQueue = contracts.StockResponseQueue
	}
	w := &CommandWorker{
		broker:        broker,
		fetcher:       fetcher,
		responseQueue: responseQueue,
	}
	w.consumer = queue.NewConsumer(broker, commandQueue, w.Handle, policy)
	return w
}

// Run consumes commands until ctx is cancelled.
func (w *CommandWorker) Run(ctx context.Context) error {
	return w.consumer.Run(ctx)
}

// Handle processes one command payload.
func (w *CommandWorker) Handle(ctx context.Context, body []byte) error {
	cmd, err := contracts.DecodeStockCommand(body)
	if err != nil {
		return queue.Permanent(err)
	}

	ctx = log.With(ctx, log.FieldStockCode, cmd.StockCode)
	l := log.Ctx(ctx)

	q, fetchErr := w.fetcher.Fetch(ctx, cmd.StockCode)
	if fetchErr != nil {
		l.Warn().Err(fetchErr).Msg("quote lookup failed")
	}
	text := FormatResponse(cmd.StockCode, q, fetchErr)

	payload, err := contracts.Encode(&contracts.StockResponse{
		Message:    text,
		ChatRoomID: cmd.ChatRoomID,
	})
	if err != nil {
		return err
	}

	if err := w.declareResponses(ctx); err != nil {
		return err
	}
	if err := w.broker.Publish(ctx, w.responseQueue, payload); err != nil {
		return fmt.Errorf("failed to publish stock response: %w", err)
	}

	l.Info().Int(log.FieldRoomID, cmd.ChatRoomID).Str("response", text).Msg("stock response published")
	return nil
}

func (w *CommandWorker) declareResponses(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.declared {
		return nil
	}
	if err := w.broker.DeclareQueue(ctx, w.responseQueue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", w.responseQueue, err)
	}
	w.declared = true
	return nil
}

// FormatResponse renders the chat line for a lookup outcome. A missing quote
// or a non-positive close is reported as unavailable, not as an error.
func FormatResponse(code string, q *quote.Quote, fetchErr error) string {
	upper := strings.ToUpper(code)
	switch {
	case fetchErr != nil:
		return fmt.Sprintf("An error occurred while retrieving the stock quote for %s. Please try again later.", upper)
	case q == nil || !q.Close.IsPositive():
		return fmt.Sprintf("Unable to retrieve quote for %s. Please check the stock code and try again.", upper)
	default:
		// Midpoints round away from zero: 150.125 is posted as 150.13.
		return fmt.Sprintf("%s quote is $%s per share", strings.ToUpper(q.Symbol), q.Close.StringFixed(2))
	}
}
