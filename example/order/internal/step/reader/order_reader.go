// Package reader builds the item sources of the order jobs.
package reader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
)

// MapCustomer maps a CSV row "id,name,email,age,city" to a Customer. The id column is ignored.
func MapCustomer(record []string, line int) (domain.Customer, error) {
	if len(record) != 5 {
		return domain.Customer{}, fmt.Errorf("line %d: expected 5 columns, got %d", line, len(record))
	}
	age, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil {
		return domain.Customer{}, fmt.Errorf("line %d: invalid age %q: %w", line, record[3], err)
	}
	return domain.Customer{
		Name:  strings.TrimSpace(record[1]),
		Email: strings.TrimSpace(record[2]),
		Age:   age,
		City:  strings.TrimSpace(record[4]),
	}, nil
}

// NewCustomerReader reads customers from the CSV returned by open, skipping the header row.
func NewCustomerReader(open reader.Opener) *reader.CSVReader[domain.Customer] {
	return reader.NewCSVReader("customerCsvReader", open, MapCustomer, reader.WithHeader())
}

// NewPendingOrderReader streams PENDING orders placed before cutoff, oldest first.
// The writer moves every order out of PENDING, so the reader does not record a position.
func NewPendingOrderReader(name string, db *gorm.DB, cutoff time.Time) *reader.GormCursorReader[domain.Order] {
	return reader.NewGormCursorReader[domain.Order](name, db, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND order_date < ?", domain.OrderStatusPending, cutoff).Order("order_date, id")
	}, reader.WithoutSaveState())
}

// OrderRange selects orders placed on the days [From, To] with an amount of at least MinAmount.
type OrderRange struct {
	From      time.Time
	To        time.Time
	MinAmount int64
}

func (r OrderRange) apply(q *gorm.DB) *gorm.DB {
	from := truncateDay(r.From)
	until := truncateDay(r.To).AddDate(0, 0, 1)
	return q.Where("order_date >= ? AND order_date < ? AND amount >= ?", from, until, r.MinAmount)
}

// NewPendingInRangeReader streams the PENDING orders of rng, oldest first.
func NewPendingInRangeReader(db *gorm.DB, rng OrderRange) *reader.GormCursorReader[domain.Order] {
	return reader.NewGormCursorReader[domain.Order]("parameterOrderReader", db, func(q *gorm.DB) *gorm.DB {
		return rng.apply(q).Where("status = ?", domain.OrderStatusPending).Order("order_date, id")
	}, reader.WithoutSaveState())
}

// NewProcessedInRangeReader streams the orders of rng that left PENDING. The rows are not modified,
// so the read position is kept for restarts.
func NewProcessedInRangeReader(db *gorm.DB, rng OrderRange) *reader.GormCursorReader[domain.Order] {
	return reader.NewGormCursorReader[domain.Order]("processedOrderReader", db, func(q *gorm.DB) *gorm.DB {
		return rng.apply(q).
			Where("status IN ?", []string{string(domain.OrderStatusCompleted), string(domain.OrderStatusProcessing)}).
			Order("id")
	})
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
