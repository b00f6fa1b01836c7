//go:build !cgo

package llm

import "errors"

// ErrFastEmbedNotAvailable is returned when the binary was built without cgo,
// which the ONNX runtime requires.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the ollama or openai provider)")

func newFastEmbedBackend(_ EmbedderConfig) (Backend, error) {
	return nil, ErrFastEmbedNotAvailable
}
