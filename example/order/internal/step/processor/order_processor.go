// Package processor holds the business rules applied to orders by the chunk steps.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/processor"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SmallOrderLimit is the amount below which an order completes immediately.
const SmallOrderLimit = 10000

// ApplyAmountRule completes small orders, moves the others to PROCESSING and stamps the processing time.
func ApplyAmountRule(o domain.Order, now time.Time) domain.Order {
	if o.Amount < SmallOrderLimit {
		o.Status = domain.OrderStatusCompleted
	} else {
		o.Status = domain.OrderStatusProcessing
	}
	o.ProcessedDate = &now
	return o
}

// NewAmountRuleProcessor applies ApplyAmountRule to every order.
func NewAmountRuleProcessor(now func() time.Time) processor.FuncProcessor[domain.Order, domain.Order] {
	return func(ctx context.Context, o domain.Order) (domain.Order, error) {
		out := ApplyAmountRule(o, now())
		logger.Debugf("Order %s (%d): %s -> %s", o.OrderNumber, o.Amount, o.Status, out.Status)
		return out, nil
	}
}

// FaultTolerantProcessor applies the amount rule after rejecting broken orders.
// A customer name containing "에러" or a negative amount yields domain.ErrInvalidOrder.
// An order whose number or customer contains "RETRY" fails once with domain.ErrTransientOrder.
type FaultTolerantProcessor struct {
	now func() time.Time

	mu      sync.Mutex
	retried map[int64]bool
}

var _ port.ItemProcessor[domain.Order, domain.Order] = (*FaultTolerantProcessor)(nil)

// NewFaultTolerantProcessor creates a FaultTolerantProcessor.
func NewFaultTolerantProcessor(now func() time.Time) *FaultTolerantProcessor {
	return &FaultTolerantProcessor{now: now, retried: make(map[int64]bool)}
}

func (p *FaultTolerantProcessor) Process(ctx context.Context, o domain.Order) (domain.Order, error) {
	if strings.Contains(o.CustomerName, "에러") {
		return domain.Order{}, fmt.Errorf("order %s: customer %q cannot be processed: %w", o.OrderNumber, o.CustomerName, domain.ErrInvalidOrder)
	}
	if o.Amount < 0 {
		return domain.Order{}, fmt.Errorf("order %s: negative amount %d: %w", o.OrderNumber, o.Amount, domain.ErrInvalidOrder)
	}
	if strings.Contains(o.OrderNumber, "RETRY") || strings.Contains(o.CustomerName, "RETRY") {
		p.mu.Lock()
		first := !p.retried[o.ID]
		p.retried[o.ID] = true
		p.mu.Unlock()
		if first {
			return domain.Order{}, fmt.Errorf("order %s: %w", o.OrderNumber, domain.ErrTransientOrder)
		}
	}
	return ApplyAmountRule(o, p.now()), nil
}

// ProcessingMode selects how parameterJob settles orders.
type ProcessingMode string

const (
	// ModeFast completes every order.
	ModeFast ProcessingMode = "FAST"
	// ModeNormal applies the amount rule.
	ModeNormal ProcessingMode = "NORMAL"
	// ModeCareful leaves every order in PROCESSING for review.
	ModeCareful ProcessingMode = "CAREFUL"
)

// ParseProcessingMode validates s.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch m := ProcessingMode(strings.ToUpper(s)); m {
	case ModeFast, ModeNormal, ModeCareful:
		return m, nil
	default:
		return "", fmt.Errorf("unknown processing mode '%s' (want FAST, NORMAL or CAREFUL)", s)
	}
}

// NewModeProcessor settles orders according to mode.
func NewModeProcessor(mode ProcessingMode, now func() time.Time) processor.FuncProcessor[domain.Order, domain.Order] {
	return func(ctx context.Context, o domain.Order) (domain.Order, error) {
		t := now()
		switch mode {
		case ModeFast:
			o.Status = domain.OrderStatusCompleted
			o.ProcessedDate = &t
		case ModeCareful:
			o.Status = domain.OrderStatusProcessing
			o.ProcessedDate = &t
		default:
			o = ApplyAmountRule(o, t)
		}
		return o, nil
	}
}

// NewRecordProcessor converts orders into their parquet rows.
func NewRecordProcessor() processor.FuncProcessor[domain.Order, domain.OrderRecord] {
	return func(ctx context.Context, o domain.Order) (domain.OrderRecord, error) {
		return domain.NewOrderRecord(o), nil
	}
}
