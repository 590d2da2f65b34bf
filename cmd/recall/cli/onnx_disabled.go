//go:build !onnx

package cli

import (
	"errors"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/provider"
)

func newONNXEmbedder(config.Provider) (provider.Embedder, func() error, error) {
	return nil, nil, errors.New("the onnx embedder needs a binary built with -tags onnx")
}
