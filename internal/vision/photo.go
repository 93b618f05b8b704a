// Package vision wraps the ONNX models used during ingestion: the photo
// similarity embedder and the face detection/embedding pair.
package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/photocat/internal/models"
)

// ImageNet statistics, matching the DINOv2 preprocessing pipeline.
var (
	imagenetMean = [3]float32{123.675, 116.28, 103.53}
	imagenetStd  = [3]float32{58.395, 57.12, 57.375}
)

// PhotoEmbedder produces similarity embeddings from a pooled DINOv2 ONNX
// export (ViT-B/14, 768 dimensions).
type PhotoEmbedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
}

func NewPhotoEmbedder(modelPath string) (*PhotoEmbedder, error) {
	inputW, inputH := 224, 224

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(models.PhotoEmbeddingDim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"pixel_values"},
		[]string{"pooler_output"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &PhotoEmbedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
	}, nil
}

// Embed returns the 768-dimensional similarity vector for a photo.
func (e *PhotoEmbedder) Embed(img image.Image) ([]float32, error) {
	copy(e.inputTensor.GetData(), toCHW(img, e.inputW, e.inputH, imagenetMean, imagenetStd))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run photo embedding: %w", err)
	}

	embedding := make([]float32, models.PhotoEmbeddingDim)
	copy(embedding, e.outputTensor.GetData())
	return embedding, nil
}

func (e *PhotoEmbedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
