package models

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/slidekit/patchembed/pkg/tensor"
)

// probeWidth is the side length of the synthetic patch used to discover the
// embedding dimensionality at load time.
const probeWidth = 16

// Ollama embeds patches through a remote Ollama embedding model. Patches
// are encoded as PNG and sent base64-encoded through the embed API.
type Ollama struct {
	client *api.Client
	model  string
	dim    int
}

// NewOllama creates an extractor backed by the named model on an Ollama
// server. An empty serverURL falls back to the OLLAMA_HOST environment.
// The embedding dimensionality is probed with a synthetic patch, so an
// unknown model or unreachable server fails here rather than mid-run.
func NewOllama(serverURL, model string) (*Ollama, error) {
	var client *api.Client
	if serverURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		client = c
	} else {
		parsed, err := url.Parse(serverURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama URL: %w", err)
		}
		base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
		client = api.NewClient(base, http.DefaultClient)
	}

	o := &Ollama{client: client, model: model}
	if err := o.probe(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to probe model %q: %w", model, err)
	}
	return o, nil
}

// probe embeds one synthetic patch to learn the output dimensionality.
func (o *Ollama) probe(ctx context.Context) error {
	patch := tensor.New(3, probeWidth, probeWidth)
	batch, err := tensor.Stack([]tensor.Tensor{patch})
	if err != nil {
		return err
	}
	vecs, err := o.forward(ctx, batch)
	if err != nil {
		return err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("model %q returned an empty embedding", o.model)
	}
	o.dim = len(vecs[0])
	return nil
}

// OutputDim returns the embedding dimensionality discovered at load time.
func (o *Ollama) OutputDim() int {
	return o.dim
}

// Forward embeds a batch remotely.
func (o *Ollama) Forward(ctx context.Context, batch tensor.Batch) ([][]float32, error) {
	vecs, err := o.forward(ctx, batch)
	if err != nil {
		return nil, err
	}
	for i, vec := range vecs {
		if len(vec) != o.dim {
			return nil, fmt.Errorf("embedding %d has %d values, expected %d", i, len(vec), o.dim)
		}
	}
	return vecs, nil
}

func (o *Ollama) forward(ctx context.Context, batch tensor.Batch) ([][]float32, error) {
	inputs := make([]string, batch.N)
	for i := 0; i < batch.N; i++ {
		encoded, err := encodePatch(batch.Item(i))
		if err != nil {
			return nil, fmt.Errorf("failed to encode patch %d: %w", i, err)
		}
		inputs[i] = encoded
	}

	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed error: %w", err)
	}
	if len(resp.Embeddings) != batch.N {
		return nil, fmt.Errorf("got %d embeddings for %d patches", len(resp.Embeddings), batch.N)
	}
	return resp.Embeddings, nil
}

// encodePatch renders a (C,H,W) tensor with values in [0,1] back into a
// base64 PNG for transport.
func encodePatch(t tensor.Tensor) (string, error) {
	img := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			px := y*img.Stride + x*4
			for c := 0; c < 3; c++ {
				var v float32
				if c < t.Channels {
					v = t.At(c, y, x)
				}
				img.Pix[px+c] = uint8(clamp01(v)*255 + 0.5)
			}
			img.Pix[px+3] = 255
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
