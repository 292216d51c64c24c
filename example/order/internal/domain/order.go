// Package domain holds the entities processed by the order batch jobs.
package domain

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Order is a row of the orders table.
type Order struct {
	ID            int64       `gorm:"primaryKey;autoIncrement"`
	OrderNumber   string      `gorm:"column:order_number;not null"`
	CustomerName  string      `gorm:"column:customer_name;not null"`
	Amount        int64       `gorm:"column:amount;not null"`
	Status        OrderStatus `gorm:"column:status;not null"`
	OrderDate     time.Time   `gorm:"column:order_date;not null"`
	ProcessedDate *time.Time  `gorm:"column:processed_date"`
}

func (Order) TableName() string {
	return "orders"
}

// Customer is a row of the customers table, loaded from the customers CSV.
type Customer struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Name  string `gorm:"column:name;not null"`
	Email string `gorm:"column:email;not null"`
	Age   int    `gorm:"column:age"`
	City  string `gorm:"column:city"`
}

func (Customer) TableName() string {
	return "customers"
}

// OrderRecord is the parquet row of an exported order. Times are epoch milliseconds.
type OrderRecord struct {
	ID            int64  `parquet:"name=id, type=INT64"`
	OrderNumber   string `parquet:"name=order_number, type=BYTE_ARRAY, convertedtype=UTF8"`
	CustomerName  string `parquet:"name=customer_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount        int64  `parquet:"name=amount, type=INT64"`
	Status        string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderDate     int64  `parquet:"name=order_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	ProcessedDate int64  `parquet:"name=processed_date, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// NewOrderRecord converts o into its export row. An unprocessed order has ProcessedDate 0.
func NewOrderRecord(o Order) OrderRecord {
	r := OrderRecord{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		Amount:       o.Amount,
		Status:       string(o.Status),
		OrderDate:    o.OrderDate.UnixMilli(),
	}
	if o.ProcessedDate != nil {
		r.ProcessedDate = o.ProcessedDate.UnixMilli()
	}
	return r
}
