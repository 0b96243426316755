package provider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/tsawler/tabula"
	"github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/toolcat/visimatch/domain/catalog"
	"github.com/toolcat/visimatch/domain/embedding"
)

// inputSide is the square pixel side the vision tower expects (224 for
// ViT-B/32).
const inputSide = 224

// forwardPasses is how many times an image is run through the vision
// tower per embed call; the outputs are averaged for robustness against
// non-deterministic kernels and fp16 drift.
const forwardPasses = 3

// maxTextTokens is the truncation limit for text embedding, leaving room
// for the tokenizer's special tokens within the backbone's 77-token
// context window.
const maxTextTokens = 75

// imageFuseWeight / textFuseWeight weight the image/text combination when
// embedding a catalog item that carries both a picture and a description.
const (
	imageFuseWeight = 0.8
	textFuseWeight  = 0.2
)

const imageFetchTimeout = 15 * time.Second

// ortSingleton holds the process-wide ONNX Runtime resources. ORT only
// allows one active session per process, so every VisionEmbedding
// instance shares it. The mutex serializes both initialization and
// inference (ORT is not thread-safe).
var ortSingleton struct {
	hugotSession  *hugot.Session
	textPipeline  *pipelines.FeatureExtractionPipeline
	visionSession *onnxruntime_go.DynamicAdvancedSession
	mu            sync.Mutex
	ready         bool
}

// VisionEmbedding embeds catalog and query images through a CLIP-style
// vision-language encoder.
//
// The model comes from two sources (checked in order):
//  1. Model files on disk — a subdirectory of cacheDir containing
//     tokenizer.json (text tower) and vision_model.onnx (vision tower).
//  2. Statically embedded in the binary (build tag embed_model),
//     extracted to cacheDir on first use.
//
// All instances share a single ONNX Runtime session because ORT only
// supports one active session per process.
type VisionEmbedding struct {
	cacheDir string
	version  string
	client   *http.Client
}

// NewVisionEmbedding creates a VisionEmbedding that looks for model files
// in cacheDir. version names the model artifact version this instance
// serves, so products embedded by it can be tagged for staleness
// detection when the Registry promotes a newer one.
func NewVisionEmbedding(cacheDir, version string) *VisionEmbedding {
	return &VisionEmbedding{
		cacheDir: cacheDir,
		version:  version,
		client:   &http.Client{Timeout: imageFetchTimeout},
	}
}

// Version returns the model version this embedder produces vectors for.
func (h *VisionEmbedding) Version() string { return h.version }

// Available reports whether a usable model exists — either compiled into
// the binary (embed_model build tag) or present on disk in cacheDir.
func (h *VisionEmbedding) Available() bool {
	if hasEmbeddedModel {
		return true
	}
	_, err := h.diskModelPath()
	return err == nil
}

func (h *VisionEmbedding) initialize() error {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	if ortSingleton.ready {
		return nil
	}

	modelPath, err := h.resolveModelPath()
	if err != nil {
		return err
	}

	session, err := newHugotSession()
	if err != nil {
		return fmt.Errorf("create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "clip-text-tower",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	textPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create text feature extraction pipeline: %w", err)
	}

	visionModelPath := filepath.Join(modelPath, "vision_model.onnx")
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		_ = session.Destroy()
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	visionSession, err := onnxruntime_go.NewDynamicAdvancedSession(
		visionModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		nil,
	)
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create vision tower session: %w", err)
	}

	ortSingleton.hugotSession = session
	ortSingleton.textPipeline = textPipeline
	ortSingleton.visionSession = visionSession
	ortSingleton.ready = true
	return nil
}

// resolveModelPath returns the path to a usable model directory.
func (h *VisionEmbedding) resolveModelPath() (string, error) {
	if diskPath, err := h.diskModelPath(); err == nil {
		return diskPath, nil
	}

	if !hasEmbeddedModel {
		return "", fmt.Errorf("no model found in %s and no embedded model compiled in (build with -tags embed_model)", h.cacheDir)
	}

	if err := os.MkdirAll(h.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	return extractEmbeddedModel(embeddedModelFS, h.cacheDir)
}

// diskModelPath looks for a model subdirectory containing tokenizer.json
// inside cacheDir.
func (h *VisionEmbedding) diskModelPath() (string, error) {
	entries, err := os.ReadDir(h.cacheDir)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", h.cacheDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(h.cacheDir, entry.Name())
		if _, statErr := os.Stat(filepath.Join(candidate, "tokenizer.json")); statErr == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no model subdirectory with tokenizer.json found in %s", h.cacheDir)
}

// extractEmbeddedModel writes the statically embedded model files to
// targetDir and returns the path to the model subdirectory.
func extractEmbeddedModel(embedded fs.FS, targetDir string) (string, error) {
	modelsFS, err := fs.Sub(embedded, "models")
	if err != nil {
		return "", fmt.Errorf("access embedded models: %w", err)
	}

	entries, err := fs.ReadDir(modelsFS, ".")
	if err != nil {
		return "", fmt.Errorf("read embedded models: %w", err)
	}

	var modelSubdir string
	for _, entry := range entries {
		if entry.IsDir() {
			modelSubdir = entry.Name()
			break
		}
	}
	if modelSubdir == "" {
		return "", fmt.Errorf("no model directory found in embedded models")
	}

	modelPath := filepath.Join(targetDir, modelSubdir)

	if _, statErr := os.Stat(filepath.Join(modelPath, "tokenizer.json")); statErr == nil {
		return modelPath, nil
	}

	modelFS, err := fs.Sub(modelsFS, modelSubdir)
	if err != nil {
		return "", fmt.Errorf("access model subdirectory: %w", err)
	}

	err = fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		target := filepath.Join(modelPath, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, readErr := fs.ReadFile(modelFS, path)
		if readErr != nil {
			return fmt.Errorf("read embedded file %s: %w", path, readErr)
		}
		if mkdirErr := os.MkdirAll(filepath.Dir(target), 0o755); mkdirErr != nil {
			return fmt.Errorf("create directory for %s: %w", path, mkdirErr)
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("extract embedded model: %w", err)
	}

	return modelPath, nil
}

// EmbedImageURL loads an image from a local path or HTTP(S) URL, runs the
// deterministic preprocessing pipeline, and returns its unit-norm vector.
// Satisfies domain/catalog.Embedder.
func (h *VisionEmbedding) EmbedImageURL(ctx context.Context, source string) (embedding.Embedding, error) {
	img, err := h.loadImage(ctx, source)
	if err != nil {
		return embedding.Embedding{}, err
	}
	return h.EmbedImage(ctx, img)
}

// EmbedImage runs the deterministic preprocessing pipeline on an
// already-decoded image and returns its unit-norm vector: Lanczos
// resize + center crop, contrast/sharpness enhancement, ImageNet
// normalization, then N forward passes averaged and renormalized.
func (h *VisionEmbedding) EmbedImage(ctx context.Context, img image.Image) (embedding.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return embedding.Embedding{}, err
	}
	if err := h.initialize(); err != nil {
		return embedding.Embedding{}, fmt.Errorf("initialize vision model: %w", err)
	}

	prepared := preprocessImage(img)
	tensor := imageToTensor(prepared)

	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	passes := make([]embedding.Embedding, 0, forwardPasses)
	for i := 0; i < forwardPasses; i++ {
		vec, err := runVisionTower(ortSingleton.visionSession, tensor)
		if err != nil {
			return embedding.Embedding{}, fmt.Errorf("vision tower forward pass %d: %w", i, err)
		}
		normalized, err := embedding.Normalize(vec)
		if err != nil {
			return embedding.Embedding{}, fmt.Errorf("normalize forward pass %d: %w", i, err)
		}
		passes = append(passes, normalized)
	}

	return embedding.Average(passes)
}

// EmbedText tokenizes, truncates to maxTextTokens, encodes, and
// unit-normalizes text through the backbone's text tower. Its only caller
// in this package is EmbedFused; the query path does not use it.
func (h *VisionEmbedding) EmbedText(ctx context.Context, text string) (embedding.Embedding, error) {
	resp, err := h.Embed(ctx, NewEmbeddingRequest([]string{truncateTokens(text, maxTextTokens)}))
	if err != nil {
		return embedding.Embedding{}, err
	}
	vecs := resp.Embeddings()
	if len(vecs) != 1 {
		return embedding.Embedding{}, fmt.Errorf("text embed: expected 1 vector, got %d", len(vecs))
	}
	return embedding.New(vecs[0])
}

// EmbedFused combines an image and a text description into a single
// vector, weighted 0.8 image / 0.2 text, per the catalog-insertion
// fusion rule.
func (h *VisionEmbedding) EmbedFused(ctx context.Context, imageSource, text string) (embedding.Embedding, error) {
	imgVec, err := h.EmbedImageURL(ctx, imageSource)
	if err != nil {
		return embedding.Embedding{}, err
	}
	textVec, err := h.EmbedText(ctx, text)
	if err != nil {
		return embedding.Embedding{}, err
	}
	return embedding.Fuse(imgVec, textVec, imageFuseWeight, textFuseWeight)
}

func (h *VisionEmbedding) loadImage(ctx context.Context, source string) (image.Image, error) {
	var r io.Reader

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("build image request: %w", err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch image %s: status %d", source, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read image body: %w", err)
		}
		r = bytes.NewReader(data)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open image %s: %w", source, err)
		}
		defer f.Close()
		r = f
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", source, err)
	}
	return img, nil
}

// preprocessImage resizes with a Lanczos kernel to inputSide on the
// short edge, center-crops to the square input, and applies the modest
// contrast/sharpness enhancement that compensates for the catalog's
// mixed lighting. These constants are fixed, not user-tunable.
func preprocessImage(src image.Image) image.Image {
	resized := lanczosResizeToCover(src, inputSide, inputSide)
	cropped := centerCrop(resized, inputSide, inputSide)

	enhanced := tabula.AdjustContrast(cropped, 1.2)
	enhanced = tabula.Sharpen(enhanced, 1.1)
	return enhanced
}

var lanczos3 = draw.Kernel{
	Support: 3,
	At:      lanczosKernelFunc(3),
}

func lanczosKernelFunc(a float64) func(float64) float64 {
	return func(x float64) float64 {
		if x == 0 {
			return 1
		}
		if x < -a || x > a {
			return 0
		}
		px := math.Pi * x
		return a * math.Sin(px) * math.Sin(px/a) / (px * px)
	}
}

// lanczosResizeToCover scales src so its shorter side is at least w/h
// (whichever the aspect ratio demands), preserving aspect ratio, using a
// Lanczos-windowed-sinc kernel.
func lanczosResizeToCover(src image.Image, w, h int) image.Image {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return src
	}

	scale := float64(w) / float64(sw)
	if hs := float64(h) / float64(sh); hs > scale {
		scale = hs
	}
	dw := int(float64(sw)*scale + 0.5)
	dh := int(float64(sh)*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	lanczos3.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}

// centerCrop crops img to a w x h rectangle centered on its midpoint.
func centerCrop(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	rect := image.Rect(x0, y0, x0+w, y0+h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// imageNet mean/std the backbone's vision tower was trained with.
var imageNetMean = [3]float64{0.48145466, 0.4578275, 0.40821073}
var imageNetStd = [3]float64{0.26862954, 0.26130258, 0.27577711}

// imageToTensor converts a preprocessed square RGBA image into a
// channel-first (CHW) float32 slice, normalized per-channel against the
// ImageNet mean/std.
func imageToTensor(img image.Image) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 3*w*h)

	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*w + x
			out[0*plane+idx] = float32((float64(r)/65535.0 - imageNetMean[0]) / imageNetStd[0])
			out[1*plane+idx] = float32((float64(g)/65535.0 - imageNetMean[1]) / imageNetStd[1])
			out[2*plane+idx] = float32((float64(bl)/65535.0 - imageNetMean[2]) / imageNetStd[2])
		}
	}
	return out
}

// runVisionTower executes one forward pass of the vision encoder over a
// preprocessed CHW tensor and returns the raw (not yet unit-norm) image
// embedding.
func runVisionTower(session *onnxruntime_go.DynamicAdvancedSession, chw []float32) ([]float64, error) {
	inputShape := onnxruntime_go.NewShape(1, 3, inputSide, inputSide)
	inputTensor, err := onnxruntime_go.NewTensor(inputShape, chw)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []onnxruntime_go.Value{nil}
	if err := session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run vision tower: %w", err)
	}
	outTensor, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected vision tower output type %T", outputs[0])
	}
	defer outTensor.Destroy()

	raw := outTensor.GetData()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// truncateTokens is a rough, tokenizer-agnostic approximation used before
// the real tokenizer runs inside the pipeline: it caps the text at
// maxTokens whitespace-separated words, which keeps the request well
// under the backbone's 77-token context window after subword splitting.
func truncateTokens(text string, maxTokens int) string {
	fields := strings.Fields(text)
	if len(fields) <= maxTokens {
		return text
	}
	return strings.Join(fields[:maxTokens], " ")
}

// Capacity returns the maximum number of texts per Embed call.
func (h *VisionEmbedding) Capacity() int { return 10 }

// Embed generates text embeddings for the given texts using the local
// text tower. Implements the generic Embedder contract used for batch
// text embedding.
func (h *VisionEmbedding) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse([][]float64{}, NewUsage(0, 0)), nil
	}

	if len(texts) > h.Capacity() {
		return EmbeddingResponse{}, fmt.Errorf("embed: %d texts exceeds capacity %d", len(texts), h.Capacity())
	}

	if err := ctx.Err(); err != nil {
		return EmbeddingResponse{}, err
	}

	if err := h.initialize(); err != nil {
		return EmbeddingResponse{}, fmt.Errorf("initialize hugot: %w", err)
	}

	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	result, err := ortSingleton.textPipeline.RunPipeline(texts)
	if err != nil {
		return EmbeddingResponse{}, fmt.Errorf("run text embedding pipeline: %w", err)
	}

	embeddings := make([][]float64, len(result.Embeddings))
	for i, vec32 := range result.Embeddings {
		vec64 := make([]float64, len(vec32))
		for j, v := range vec32 {
			vec64[j] = float64(v)
		}
		embeddings[i] = vec64
	}

	return NewEmbeddingResponse(embeddings, NewUsage(0, 0)), nil
}

// Close releases the process-wide ONNX Runtime resources. Safe to call
// even if initialize was never reached.
func (h *VisionEmbedding) Close() error {
	ortSingleton.mu.Lock()
	defer ortSingleton.mu.Unlock()

	if !ortSingleton.ready {
		return nil
	}
	if ortSingleton.visionSession != nil {
		_ = ortSingleton.visionSession.Destroy()
		ortSingleton.visionSession = nil
	}
	if ortSingleton.hugotSession != nil {
		_ = ortSingleton.hugotSession.Destroy()
	}
	ortSingleton.ready = false
	return nil
}

var _ catalog.Embedder = (*VisionEmbedding)(nil)
