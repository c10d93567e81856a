// Package onnx owns process-wide ONNX Runtime initialization shared by
// the local embedding and reranking backends.
package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initMu  sync.Mutex
	initErr error
	ready   bool
)

// InitRuntime loads the onnxruntime shared library and initializes the
// environment. Safe to call from every backend constructor; only the
// first call does work. libraryPath may be empty to use the platform
// default search path.
func InitRuntime(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ready || initErr != nil {
		return initErr
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		initErr = fmt.Errorf("initializing onnxruntime: %w", err)
		return initErr
	}
	ready = true
	return nil
}

// Int64s widens tokenizer output ids to the int64 tensors ONNX expects.
func Int64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}
