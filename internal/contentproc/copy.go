package contentproc

import "context"

// NewCopy returns the binary passthrough processor.
func NewCopy() Processor {
	return ProcessorFunc(func(_ context.Context, rc *Context) (*Context, error) {
		return rc, nil
	})
}
