package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestApplyAmountRule(t *testing.T) {
	small := ApplyAmountRule(domain.Order{Amount: SmallOrderLimit - 1, Status: domain.OrderStatusPending}, fixedNow)
	assert.Equal(t, domain.OrderStatusCompleted, small.Status)
	require.NotNil(t, small.ProcessedDate)
	assert.Equal(t, fixedNow, *small.ProcessedDate)

	large := ApplyAmountRule(domain.Order{Amount: SmallOrderLimit, Status: domain.OrderStatusPending}, fixedNow)
	assert.Equal(t, domain.OrderStatusProcessing, large.Status)
}

func TestFaultTolerantProcessor(t *testing.T) {
	p := NewFaultTolerantProcessor(clock)
	ctx := context.Background()

	_, err := p.Process(ctx, domain.Order{ID: 1, OrderNumber: "ORD00001", CustomerName: "에러고객", Amount: 1000})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = p.Process(ctx, domain.Order{ID: 2, OrderNumber: "ORD00002", CustomerName: "김철수", Amount: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	retry := domain.Order{ID: 3, OrderNumber: "ORD-RETRY", CustomerName: "이영희", Amount: 2000}
	_, err = p.Process(ctx, retry)
	assert.ErrorIs(t, err, domain.ErrTransientOrder, "first attempt fails")
	out, err := p.Process(ctx, retry)
	require.NoError(t, err, "second attempt succeeds")
	assert.Equal(t, domain.OrderStatusCompleted, out.Status)

	out, err = p.Process(ctx, domain.Order{ID: 4, OrderNumber: "ORD00004", CustomerName: "박민수", Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, out.Status)
}

func TestParseProcessingMode(t *testing.T) {
	m, err := ParseProcessingMode("fast")
	require.NoError(t, err)
	assert.Equal(t, ModeFast, m)

	_, err = ParseProcessingMode("SLOW")
	assert.ErrorContains(t, err, "unknown processing mode")
}

func TestModeProcessor(t *testing.T) {
	ctx := context.Background()
	large := domain.Order{Amount: 50000, Status: domain.OrderStatusPending}
	small := domain.Order{Amount: 5000, Status: domain.OrderStatusPending}

	cases := []struct {
		mode  ProcessingMode
		order domain.Order
		want  domain.OrderStatus
	}{
		{ModeFast, large, domain.OrderStatusCompleted},
		{ModeCareful, small, domain.OrderStatusProcessing},
		{ModeNormal, small, domain.OrderStatusCompleted},
		{ModeNormal, large, domain.OrderStatusProcessing},
	}
	for _, tc := range cases {
		out, err := NewModeProcessor(tc.mode, clock)(ctx, tc.order)
		require.NoError(t, err)
		assert.Equal(t, tc.want, out.Status, "%s on %d", tc.mode, tc.order.Amount)
		require.NotNil(t, out.ProcessedDate)
	}
}

func TestRecordProcessor(t *testing.T) {
	processed := fixedNow.Add(time.Minute)
	rec, err := NewRecordProcessor()(context.Background(), domain.Order{
		ID: 9, OrderNumber: "ORD00009", CustomerName: "최지원", Amount: 3000,
		Status: domain.OrderStatusCompleted, OrderDate: fixedNow, ProcessedDate: &processed,
	})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", rec.Status)
	assert.Equal(t, fixedNow.UnixMilli(), rec.OrderDate)
	assert.Equal(t, processed.UnixMilli(), rec.ProcessedDate)
}
