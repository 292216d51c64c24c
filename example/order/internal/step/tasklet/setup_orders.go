// Package tasklet holds the single-transaction steps of the order jobs.
package tasklet

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/generic"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// CreatedOrdersKey is the step ExecutionContext key holding the number of orders created.
const CreatedOrdersKey = "setup.orders.created"

var customers = []string{"김철수", "이영희", "박민수", "최지원", "정수연", "한승호", "양미래", "임도현", "백지연", "홍길동"}

// OrderGenerator produces sample PENDING orders.
type OrderGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewOrderGenerator creates a generator. A nil rng uses a randomly seeded source.
func NewOrderGenerator(rng *rand.Rand) *OrderGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &OrderGenerator{rng: rng}
}

// Generate returns orders ORD00001..ORD<count> with amounts of 1,000 to 30,000 placed 15 to 134 minutes before now.
func (g *OrderGenerator) Generate(count int, now time.Time) []domain.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	orders := make([]domain.Order, 0, count)
	for i := 1; i <= count; i++ {
		orders = append(orders, domain.Order{
			OrderNumber:  fmt.Sprintf("ORD%05d", i),
			CustomerName: customers[g.rng.IntN(len(customers))],
			Amount:       int64(g.rng.IntN(30)+1) * 1000,
			Status:       domain.OrderStatusPending,
			OrderDate:    now.Add(-time.Duration(g.rng.IntN(120)+15) * time.Minute),
		})
	}
	return orders
}

var allStatuses = []string{
	string(domain.OrderStatusPending),
	string(domain.OrderStatusProcessing),
	string(domain.OrderStatusCompleted),
	string(domain.OrderStatusCancelled),
}

// NewSetupOrdersTasklet replaces the content of the orders table with count generated orders.
func NewSetupOrdersTasklet(gen *OrderGenerator, count int, now func() time.Time) *generic.FuncTasklet {
	return generic.NewFuncTasklet("setupOrdersTasklet", func(ctx context.Context, t tx.Tx, se *model.StepExecution) error {
		deleted, err := t.ExecuteUpdate(ctx, &domain.Order{}, tx.OperationDelete, "", map[string]interface{}{"status": allStatuses})
		if err != nil {
			return fmt.Errorf("failed to clear orders: %w", err)
		}
		orders := gen.Generate(count, now())
		if len(orders) > 0 {
			if _, err := t.ExecuteUpdate(ctx, &orders, tx.OperationCreate, "", nil); err != nil {
				return fmt.Errorf("failed to create orders: %w", err)
			}
		}
		se.ExecutionContext.Put(CreatedOrdersKey, len(orders))
		se.WriteCount = len(orders)
		logger.Infof("Replaced %d orders with %d test orders.", deleted, len(orders))
		return nil
	})
}
