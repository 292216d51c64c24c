package reader

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func drain[T any](t *testing.T, r port.ItemReader[T]) []T {
	t.Helper()
	var out []T
	for {
		item, err := r.Read(context.Background())
		if errors.Is(err, port.ErrNoMoreItems) {
			return out
		}
		require.NoError(t, err)
		out = append(out, item)
	}
}

func TestMapCustomer(t *testing.T) {
	c, err := MapCustomer([]string{"7", " 조수빈 ", "subin.cho@example.com", "52", "울산"}, 8)
	require.NoError(t, err)
	assert.Equal(t, domain.Customer{Name: "조수빈", Email: "subin.cho@example.com", Age: 52, City: "울산"}, c)

	_, err = MapCustomer([]string{"1", "a", "b"}, 2)
	assert.ErrorContains(t, err, "line 2: expected 5 columns")

	_, err = MapCustomer([]string{"1", "a", "b", "old", "c"}, 3)
	assert.ErrorContains(t, err, "invalid age")
}

func TestCustomerReader_SkipsHeader(t *testing.T) {
	fsys := fstest.MapFS{"customers.csv": {Data: []byte(
		"id,name,email,age,city\n1,김철수,kim@example.com,34,서울\n2,이영희,lee@example.com,28,부산\n")}}
	r := NewCustomerReader(reader.FSOpener(fsys, "customers.csv"))
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)

	got := drain[domain.Customer](t, r)
	require.Len(t, got, 2)
	assert.Equal(t, "김철수", got[0].Name)
	assert.Equal(t, "부산", got[1].City)
}

func seedOrders(t *testing.T, orders []domain.Order) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Order{}))
	require.NoError(t, db.Create(&orders).Error)
	return db
}

func orderNumbers(orders []domain.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.OrderNumber)
	}
	return out
}

func TestPendingOrderReader_OlderThanCutoff(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	db := seedOrders(t, []domain.Order{
		{OrderNumber: "A", CustomerName: "a", Amount: 1000, Status: domain.OrderStatusPending, OrderDate: now.Add(-time.Hour)},
		{OrderNumber: "B", CustomerName: "b", Amount: 1000, Status: domain.OrderStatusPending, OrderDate: now.Add(-5 * time.Minute)},
		{OrderNumber: "C", CustomerName: "c", Amount: 1000, Status: domain.OrderStatusCompleted, OrderDate: now.Add(-time.Hour)},
		{OrderNumber: "D", CustomerName: "d", Amount: 1000, Status: domain.OrderStatusPending, OrderDate: now.Add(-2 * time.Hour)},
	})

	ctx := context.Background()
	r := NewPendingOrderReader("pending", db, now.Add(-10*time.Minute))
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)

	assert.Equal(t, []string{"D", "A"}, orderNumbers(drain[domain.Order](t, r)), "oldest first")
}

func TestRangeReaders(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }
	db := seedOrders(t, []domain.Order{
		{OrderNumber: "before", CustomerName: "a", Amount: 9000, Status: domain.OrderStatusPending, OrderDate: day(1, 23)},
		{OrderNumber: "first-day", CustomerName: "b", Amount: 9000, Status: domain.OrderStatusPending, OrderDate: day(2, 0)},
		{OrderNumber: "too-small", CustomerName: "c", Amount: 6999, Status: domain.OrderStatusPending, OrderDate: day(3, 10)},
		{OrderNumber: "last-day", CustomerName: "d", Amount: 7000, Status: domain.OrderStatusPending, OrderDate: day(4, 23)},
		{OrderNumber: "after", CustomerName: "e", Amount: 9000, Status: domain.OrderStatusPending, OrderDate: day(5, 0)},
		{OrderNumber: "done", CustomerName: "f", Amount: 9000, Status: domain.OrderStatusCompleted, OrderDate: day(3, 0)},
		{OrderNumber: "review", CustomerName: "g", Amount: 9000, Status: domain.OrderStatusProcessing, OrderDate: day(3, 1)},
		{OrderNumber: "cancelled", CustomerName: "h", Amount: 9000, Status: domain.OrderStatusCancelled, OrderDate: day(3, 2)},
	})
	rng := OrderRange{From: day(2, 15), To: day(4, 8), MinAmount: 7000}
	ctx := context.Background()

	pending := NewPendingInRangeReader(db, rng)
	require.NoError(t, pending.Open(ctx, model.NewExecutionContext()))
	assert.Equal(t, []string{"first-day", "last-day"}, orderNumbers(drain[domain.Order](t, pending)))
	require.NoError(t, pending.Close(ctx))

	processed := NewProcessedInRangeReader(db, rng)
	require.NoError(t, processed.Open(ctx, model.NewExecutionContext()))
	assert.Equal(t, []string{"done", "review"}, orderNumbers(drain[domain.Order](t, processed)))
	require.NoError(t, processed.Close(ctx))
}
