// tensors.go - Konvertierung zwischen Wire-Payloads und Tensoren
//
// Diese Datei enthaelt:
// - tensorFromPayload: JSON-Payload -> Tensor
// - tensorsFromPayloads: Listen-Variante
// - payloadFromTensor: Tensor -> JSON-Payload
package server

import (
	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/tensor"
)

// tensorFromPayload baut einen Tensor aus einem Wire-Payload.
// Ein ganz ausgelassener Payload ergibt einen leeren Tensor der Form (0).
func tensorFromPayload(p api.TensorPayload) (*tensor.Tensor, error) {
	dtype, err := tensor.ParseDType(p.DType)
	if err != nil {
		return nil, api.InvalidArgumentf("%v", err)
	}

	if len(p.Shape) == 0 && len(p.Floats) == 0 && len(p.Ints) == 0 {
		return tensor.New(dtype, 0), nil
	}

	if dtype.IsFloat() {
		t, err := tensor.NewFromFloat64s(dtype, p.Shape, p.Floats)
		if err != nil {
			return nil, api.InvalidArgumentf("%v", err)
		}
		return t, nil
	}

	t, err := tensor.NewFromInt64s(dtype, p.Shape, p.Ints)
	if err != nil {
		return nil, api.InvalidArgumentf("%v", err)
	}
	return t, nil
}

func tensorsFromPayloads(payloads []api.TensorPayload) ([]*tensor.Tensor, error) {
	tensors := make([]*tensor.Tensor, 0, len(payloads))
	for _, p := range payloads {
		t, err := tensorFromPayload(p)
		if err != nil {
			return nil, err
		}
		tensors = append(tensors, t)
	}
	return tensors, nil
}

// payloadFromTensor baut den Wire-Payload eines Tensors. nil ergibt
// einen leeren Payload, damit Fehlerpfade serialisierbar bleiben.
func payloadFromTensor(t *tensor.Tensor) api.TensorPayload {
	if t == nil {
		return api.TensorPayload{}
	}

	p := api.TensorPayload{DType: t.DType().String(), Shape: t.Shape()}
	if t.DType().IsFloat() {
		p.Floats = t.Float64s()
	} else {
		p.Ints = t.Int64s()
	}
	return p
}

func payloadsFromTensors(tensors []*tensor.Tensor) []api.TensorPayload {
	payloads := make([]api.TensorPayload, 0, len(tensors))
	for _, t := range tensors {
		payloads = append(payloads, payloadFromTensor(t))
	}
	return payloads
}
