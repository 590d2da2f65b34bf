//go:build onnx

package cli

import (
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/provider/onnx"
)

func newONNXEmbedder(cfg config.Provider) (provider.Embedder, func() error, error) {
	e, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		LibraryPath:   cfg.ONNXLibrary,
		Dimensions:    cfg.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}
