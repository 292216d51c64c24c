package tasklet

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestOrderGenerator_Generate(t *testing.T) {
	orders := NewOrderGenerator(rand.New(rand.NewPCG(1, 2))).Generate(15, now)
	require.Len(t, orders, 15)

	assert.Equal(t, "ORD00001", orders[0].OrderNumber)
	assert.Equal(t, "ORD00015", orders[14].OrderNumber)
	for _, o := range orders {
		assert.Equal(t, domain.OrderStatusPending, o.Status)
		assert.Zero(t, o.Amount%1000)
		assert.GreaterOrEqual(t, o.Amount, int64(1000))
		assert.LessOrEqual(t, o.Amount, int64(30000))
		age := now.Sub(o.OrderDate)
		assert.GreaterOrEqual(t, age, 15*time.Minute)
		assert.Less(t, age, 135*time.Minute)
		assert.Contains(t, customers, o.CustomerName)
		assert.Nil(t, o.ProcessedDate)
	}

	again := NewOrderGenerator(rand.New(rand.NewPCG(1, 2))).Generate(15, now)
	assert.Equal(t, orders, again, "same seed, same orders")
}

func TestSetupOrdersTasklet_ReplacesOrders(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Order{}))
	stale := []domain.Order{
		{OrderNumber: "OLD1", CustomerName: "x", Amount: 1, Status: domain.OrderStatusCompleted, OrderDate: now},
		{OrderNumber: "OLD2", CustomerName: "y", Amount: 1, Status: domain.OrderStatusCancelled, OrderDate: now},
	}
	require.NoError(t, db.Create(&stale).Error)

	ctx := context.Background()
	tm := gormadapter.NewGormTransactionManagerForDB(db)
	current, err := tm.Begin(ctx)
	require.NoError(t, err)

	task := NewSetupOrdersTasklet(NewOrderGenerator(rand.New(rand.NewPCG(3, 4))), 5, func() time.Time { return now })
	se := model.NewStepExecution("s", model.NewJobExecution("i", "setupOrdersJob", model.NewJobParameters()), "setupOrdersStep")
	status, err := task.Execute(tx.WithTx(ctx, current), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)
	require.NoError(t, tm.Commit(current))

	var orders []domain.Order
	require.NoError(t, db.Order("id").Find(&orders).Error)
	require.Len(t, orders, 5)
	for _, o := range orders {
		assert.Equal(t, domain.OrderStatusPending, o.Status)
	}
	assert.Equal(t, 5, se.WriteCount)
	created, ok := se.ExecutionContext.GetInt(CreatedOrdersKey)
	require.True(t, ok)
	assert.Equal(t, 5, created)
}
