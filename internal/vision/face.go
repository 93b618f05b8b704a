package vision

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/photocat/internal/models"
)

// RetinaFace det_10g anchor layout: two anchors per cell at each stride.
var detStrides = []int{8, 16, 32}

const anchorsPerCell = 2

// detection is an internal face candidate in original-image pixels.
type detection struct {
	x1, y1, x2, y2 float32
	confidence     float32
}

// FaceEngine detects faces (RetinaFace det_10g) and embeds each crop
// (ArcFace w600k_r50, 512 dimensions).
type FaceEngine struct {
	detSession *ort.AdvancedSession
	detInput   *ort.Tensor[float32]
	detOutputs []*ort.Tensor[float32]
	threshold  float32
	detW, detH int

	embSession *ort.AdvancedSession
	embInput   *ort.Tensor[float32]
	embOutput  *ort.Tensor[float32]
	embW, embH int
}

// NewFaceEngine loads det_10g.onnx and w600k_r50.onnx from modelsDir.
func NewFaceEngine(modelsDir string, threshold float32) (*FaceEngine, error) {
	e := &FaceEngine{
		threshold: threshold,
		detW:      640, detH: 640,
		embW: 112, embH: 112,
	}

	if err := e.initDetector(filepath.Join(modelsDir, "det_10g.onnx")); err != nil {
		return nil, err
	}
	if err := e.initEmbedder(filepath.Join(modelsDir, "w600k_r50.onnx")); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *FaceEngine) initDetector(modelPath string) error {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(e.detH), int64(e.detW)))
	if err != nil {
		return fmt.Errorf("create detector input: %w", err)
	}

	// det_10g emits score and bbox heads per stride, without a batch
	// dimension: 12800 = 80*80*2, 3200 = 40*40*2, 800 = 20*20*2.
	type spec struct {
		name  string
		shape ort.Shape
	}
	specs := []spec{
		{"448", ort.NewShape(12800, 1)}, // scores, stride 8
		{"471", ort.NewShape(3200, 1)},  // scores, stride 16
		{"494", ort.NewShape(800, 1)},   // scores, stride 32
		{"451", ort.NewShape(12800, 4)}, // bboxes, stride 8
		{"474", ort.NewShape(3200, 4)},  // bboxes, stride 16
		{"497", ort.NewShape(800, 4)},   // bboxes, stride 32
	}

	names := make([]string, len(specs))
	outputs := make([]*ort.Tensor[float32], len(specs))
	values := make([]ort.Value, len(specs))
	for i, sp := range specs {
		names[i] = sp.name
		t, err := ort.NewEmptyTensor[float32](sp.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputs[j].Destroy()
			}
			input.Destroy()
			return fmt.Errorf("create detector output %s: %w", sp.name, err)
		}
		outputs[i] = t
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names, []ort.Value{input}, values, nil)
	if err != nil {
		input.Destroy()
		for _, t := range outputs {
			t.Destroy()
		}
		return fmt.Errorf("create detector session: %w", err)
	}

	e.detSession = session
	e.detInput = input
	e.detOutputs = outputs
	return nil
}

func (e *FaceEngine) initEmbedder(modelPath string) error {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(e.embH), int64(e.embW)))
	if err != nil {
		return fmt.Errorf("create embedder input: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(models.FaceEmbeddingDim)))
	if err != nil {
		input.Destroy()
		return fmt.Errorf("create embedder output: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"}, []ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fmt.Errorf("create embedder session: %w", err)
	}

	e.embSession = session
	e.embInput = input
	e.embOutput = output
	return nil
}

// Detect finds every face in the photo and returns one models.Face per
// detection with the bounding box and a normalized 512-dim embedding.
// The caller fills in identity fields.
func (e *FaceEngine) Detect(img image.Image) ([]models.Face, error) {
	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	copy(e.detInput.GetData(), toCHW(img, e.detW, e.detH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128}))

	if err := e.detSession.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	candidates := nms(e.decodeDetections(origW, origH), 0.4)

	faces := make([]models.Face, 0, len(candidates))
	for _, d := range candidates {
		x1 := clampInt(int(d.x1), 0, origW)
		y1 := clampInt(int(d.y1), 0, origH)
		x2 := clampInt(int(d.x2), 0, origW)
		y2 := clampInt(int(d.y2), 0, origH)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		crop := cropPadded(img, bounds.Min.X+x1, bounds.Min.Y+y1, bounds.Min.X+x2, bounds.Min.Y+y2, 0.1)
		if crop == nil {
			continue
		}
		embedding, err := e.embedCrop(crop)
		if err != nil {
			return nil, err
		}

		faces = append(faces, models.Face{
			X:         x1,
			Y:         y1,
			Width:     x2 - x1,
			Height:    y2 - y1,
			Embedding: embedding,
		})
	}
	return faces, nil
}

func (e *FaceEngine) embedCrop(crop image.Image) ([]float32, error) {
	copy(e.embInput.GetData(), toCHW(crop, e.embW, e.embH,
		[3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5}))

	if err := e.embSession.Run(); err != nil {
		return nil, fmt.Errorf("run face embedding: %w", err)
	}

	embedding := make([]float32, models.FaceEmbeddingDim)
	copy(embedding, e.embOutput.GetData())
	l2Normalize(embedding)
	return embedding, nil
}

// decodeDetections walks the anchor grid at each stride and keeps boxes
// over the confidence threshold, scaled back to original pixels.
func (e *FaceEngine) decodeDetections(origW, origH int) []detection {
	var detections []detection

	scaleW := float32(origW) / float32(e.detW)
	scaleH := float32(origH) / float32(e.detH)

	for si, stride := range detStrides {
		scores := e.detOutputs[si].GetData()
		bboxes := e.detOutputs[si+3].GetData()

		fmW := e.detW / stride
		fmH := e.detH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < anchorsPerCell; a++ {
					if scores[idx] >= e.threshold {
						anchorX := float32(cx) * st
						anchorY := float32(cy) * st
						// Box head outputs anchor-to-edge distances in
						// stride units.
						detections = append(detections, detection{
							x1:         (anchorX - bboxes[idx*4+0]*st) * scaleW,
							y1:         (anchorY - bboxes[idx*4+1]*st) * scaleH,
							x2:         (anchorX + bboxes[idx*4+2]*st) * scaleW,
							y2:         (anchorY + bboxes[idx*4+3]*st) * scaleH,
							confidence: scores[idx],
						})
					}
					idx++
				}
			}
		}
	}
	return detections
}

func (e *FaceEngine) Close() {
	if e.detSession != nil {
		e.detSession.Destroy()
	}
	if e.detInput != nil {
		e.detInput.Destroy()
	}
	for _, t := range e.detOutputs {
		if t != nil {
			t.Destroy()
		}
	}
	if e.embSession != nil {
		e.embSession.Destroy()
	}
	if e.embInput != nil {
		e.embInput.Destroy()
	}
	if e.embOutput != nil {
		e.embOutput.Destroy()
	}
}

// nms drops boxes that overlap a higher-confidence box beyond iouThreshold.
func nms(detections []detection, iouThreshold float32) []detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].confidence > detections[j].confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if keep[j] && iou(detections[i], detections[j]) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b detection) float32 {
	x1 := float32(math.Max(float64(a.x1), float64(b.x1)))
	y1 := float32(math.Max(float64(a.y1), float64(b.y1)))
	x2 := float32(math.Min(float64(a.x2), float64(b.x2)))
	y2 := float32(math.Min(float64(a.y2), float64(b.y2)))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a.x2 - a.x1) * (a.y2 - a.y1)
	areaB := (b.x2 - b.x1) * (b.y2 - b.y1)
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
