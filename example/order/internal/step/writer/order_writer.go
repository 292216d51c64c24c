// Package writer builds the item sinks of the order jobs.
package writer

import (
	"time"

	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/step/writer"
)

// NewCustomerWriter inserts customers in batches of the chunk size.
func NewCustomerWriter() *writer.GormWriter[domain.Customer] {
	return writer.NewGormWriter[domain.Customer]("customerDbWriter", writer.WithTable(domain.Customer{}.TableName()))
}

// StatusColumns selects an order by id and sets its status and processed date.
func StatusColumns(o domain.Order) (map[string]interface{}, map[string]interface{}) {
	return map[string]interface{}{"id": o.ID},
		map[string]interface{}{"status": string(o.Status), "processed_date": o.ProcessedDate}
}

// NewOrderStatusWriter updates the status of every processed order. An order deleted meanwhile fails the chunk.
func NewOrderStatusWriter(name string) *writer.GormUpdateWriter[domain.Order] {
	return writer.NewGormUpdateWriter[domain.Order](name, domain.Order{}.TableName(), StatusColumns, true)
}

// PartitionByOrderDay places a record under dt=YYYY-MM-DD of its order date (UTC).
func PartitionByOrderDay(r domain.OrderRecord) (string, error) {
	return "dt=" + time.UnixMilli(r.OrderDate).UTC().Format("2006-01-02"), nil
}

// NewOrderExportWriter writes order records as parquet files to the storage named in cfg.
func NewOrderExportWriter(cfg writer.ParquetWriterConfig, resolver storage.StorageConnectionResolver) (*writer.ParquetWriter[domain.OrderRecord], error) {
	return writer.NewParquetWriter[domain.OrderRecord]("processedOrderExporter", cfg, resolver, PartitionByOrderDay)
}
