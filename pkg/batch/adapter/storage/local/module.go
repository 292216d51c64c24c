package local

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
)

// Module serves storage entries with type "local".
var Module = fx.Provide(
	fx.Annotate(NewLocalProvider, fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`)),
)
