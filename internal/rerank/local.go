package rerank

import (
	"context"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/studykit/scholar/internal/onnx"
)

const crossEncoderMaxTokens = 512

// LocalConfig configures the local ONNX cross-encoder backend.
type LocalConfig struct {
	// ModelPath is the exported cross-encoder model
	// (e.g. ms-marco-MiniLM-L-6-v2.onnx).
	ModelPath string
	// TokenizerPath is the matching HuggingFace tokenizer.json.
	TokenizerPath string
	// LibraryPath optionally points at the onnxruntime shared library.
	LibraryPath string
}

// LocalScorer scores (query, candidate) pairs with a local ONNX
// cross-encoder. One inference per candidate; the session itself is
// stateful, so calls are serialized.
type LocalScorer struct {
	mu      sync.Mutex
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
}

// NewLocalScorer loads the tokenizer and model session.
func NewLocalScorer(cfg LocalConfig) (*LocalScorer, error) {
	if err := onnx.InitRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("loading reranker tokenizer: %w", err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: crossEncoderMaxTokens,
		Strategy:  tokenizer.LongestFirst,
	})

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("loading reranker model: %w", err)
	}

	return &LocalScorer{tk: tk, session: session}, nil
}

// Score implements Scorer. Failures come back as UnavailableError so
// the orchestrator can fall back to the pre-rerank ordering.
func (s *LocalScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	scores := make([]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score, err := s.scorePair(query, text)
		if err != nil {
			return nil, &UnavailableError{Err: err}
		}
		scores[i] = score
	}
	return scores, nil
}

func (s *LocalScorer) scorePair(query, text string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	en, err := s.tk.EncodePair(query, text, true)
	if err != nil {
		return 0, fmt.Errorf("encoding pair: %w", err)
	}

	seqLen := int64(len(en.Ids))
	shape := ort.NewShape(1, seqLen)

	inputIDs, err := ort.NewTensor(shape, onnx.Int64s(en.Ids))
	if err != nil {
		return 0, fmt.Errorf("building input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attention, err := ort.NewTensor(shape, onnx.Int64s(en.AttentionMask))
	if err != nil {
		return 0, fmt.Errorf("building attention_mask tensor: %w", err)
	}
	defer attention.Destroy()

	typeIDs, err := ort.NewTensor(shape, onnx.Int64s(en.TypeIds))
	if err != nil {
		return 0, fmt.Errorf("building token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputIDs, attention, typeIDs}, outputs); err != nil {
		return 0, fmt.Errorf("running reranker model: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected reranker output type %T", outputs[0])
	}
	data := logits.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("reranker model returned no logits")
	}

	// ms-marco cross-encoders emit a single relevance logit.
	return float64(data[0]), nil
}

// Close releases the model session.
func (s *LocalScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}
