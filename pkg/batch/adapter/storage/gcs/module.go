package gcs

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
)

// Module serves storage entries with type "gcs".
var Module = fx.Provide(
	fx.Annotate(NewGCSProvider, fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`)),
)
