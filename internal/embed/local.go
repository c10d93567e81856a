package embed

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/studykit/scholar/internal/onnx"
)

const localMaxTokens = 256

// LocalConfig configures the local ONNX embedding backend
// (all-MiniLM-L6-v2 or compatible sentence transformers).
type LocalConfig struct {
	// ModelPath is the exported encoder model, e.g. model.onnx.
	ModelPath string
	// TokenizerPath is the matching HuggingFace tokenizer.json.
	TokenizerPath string
	// LibraryPath optionally points at the onnxruntime shared library.
	LibraryPath string
}

// Local is an Embedder running MiniLM inference in-process: token
// embedding, mean pooling over the attention mask, L2 normalization.
// The ONNX session is stateful, so inference calls are serialized.
type Local struct {
	mu      sync.Mutex
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	modelID string
	dims    int
}

// NewLocal loads the tokenizer and model session.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if err := onnx.InitRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("loading embedding tokenizer: %w", err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: localMaxTokens,
		Strategy:  tokenizer.LongestFirst,
	})

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("loading embedding model: %w", err)
	}

	return &Local{
		tk:      tk,
		session: session,
		modelID: "local/" + filepath.Base(cfg.ModelPath),
	}, nil
}

// ModelID implements Embedder.
func (l *Local) ModelID() string {
	return l.modelID
}

// Dimensions implements Embedder. Unknown (0) until the first call.
func (l *Local) Dimensions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dims
}

// Embed implements Embedder.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Texts are encoded one by one; the
// session mutex makes the whole batch appear atomic to other callers.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := l.encode(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (l *Local) encode(text string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	en, err := l.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	if len(en.Ids) == 0 {
		return nil, fmt.Errorf("tokenizer produced no tokens")
	}

	seqLen := int64(len(en.Ids))
	shape := ort.NewShape(1, seqLen)

	inputIDs, err := ort.NewTensor(shape, onnx.Int64s(en.Ids))
	if err != nil {
		return nil, fmt.Errorf("building input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attention, err := ort.NewTensor(shape, onnx.Int64s(en.AttentionMask))
	if err != nil {
		return nil, fmt.Errorf("building attention_mask tensor: %w", err)
	}
	defer attention.Destroy()

	typeIDs, err := ort.NewTensor(shape, onnx.Int64s(en.TypeIds))
	if err != nil {
		return nil, fmt.Errorf("building token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := l.session.Run([]ort.Value{inputIDs, attention, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("running embedding model: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected embedding output type %T", outputs[0])
	}

	vec, err := meanPool(hidden.GetData(), hidden.GetShape(), en.AttentionMask)
	if err != nil {
		return nil, err
	}

	normalize(vec)
	l.dims = len(vec)
	return vec, nil
}

// meanPool averages token vectors weighted by the attention mask.
// data is laid out [batch=1, seq, hidden].
func meanPool(data []float32, shape ort.Shape, mask []int) ([]float32, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected hidden state shape %v", shape)
	}
	seq := int(shape[1])
	hidden := int(shape[2])
	if seq*hidden != len(data) || seq != len(mask) {
		return nil, fmt.Errorf("hidden state size mismatch: shape %v, %d values, %d mask entries", shape, len(data), len(mask))
	}

	vec := make([]float32, hidden)
	var count float32
	for t := 0; t < seq; t++ {
		if mask[t] == 0 {
			continue
		}
		count++
		row := data[t*hidden : (t+1)*hidden]
		for d, v := range row {
			vec[d] += v
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("attention mask is all zeros")
	}
	for d := range vec {
		vec[d] /= count
	}
	return vec, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Close releases the model session.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		err := l.session.Destroy()
		l.session = nil
		return err
	}
	return nil
}
