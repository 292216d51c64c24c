// Package reader provides the item sources of chunk steps.
//
// Every reader counts the items it has handed out and stores the count in its
// ExecutionContext under "<name>.read.count". On restart the reader skips that
// many items, so a step resumes after the last committed chunk.
package reader

import (
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// ReadCountKey returns the ExecutionContext key holding the read position of the named reader.
func ReadCountKey(name string) string {
	return name + ".read.count"
}

type position struct {
	name  string
	count int
}

func (p *position) restore(ec model.ExecutionContext) {
	p.count = 0
	if ec == nil {
		return
	}
	if n, ok := ec.GetInt(ReadCountKey(p.name)); ok && n > 0 {
		p.count = n
	}
}

func (p *position) executionContext() model.ExecutionContext {
	ec := model.NewExecutionContext()
	ec.Put(ReadCountKey(p.name), p.count)
	return ec
}
