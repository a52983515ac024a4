// Package pinecone scores instances by their similarity to labelled examples
// stored in a Pinecone index.
package pinecone

import (
	"context"
	"errors"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

const (
	// DefaultTopK is the number of neighbours averaged into a score
	DefaultTopK = 5

	// DefaultLabelField is the metadata field holding an example's class
	DefaultLabelField = "label"
)

var (
	// ErrMissingClass is returned when no class of interest is configured
	ErrMissingClass = errors.New("pinecone scorer requires a class label")

	// ErrInvalidTopK is returned for a negative neighbour count
	ErrInvalidTopK = errors.New("pinecone scorer top k must be positive")
)

// Index is the subset of the Pinecone index connection used for scoring
type Index interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
}

// Config configures the Pinecone scorer
type Config struct {
	// Class is the label of the class of interest
	Class string

	// LabelField is the metadata field compared against Class. If empty, uses DefaultLabelField.
	LabelField string

	// TopK is the number of same-class neighbours averaged. If 0, uses DefaultTopK.
	TopK int

	// Hybrid also sends the instance as sparse values, for dotproduct indexes
	Hybrid bool
}

// Scorer returns the mean similarity between an instance and its nearest
// neighbours labelled with the class of interest. Removing evidence for the
// class lowers the similarity, so the score behaves like a classifier score.
type Scorer struct {
	index  Index
	filter *structpb.Struct
	topK   int
	hybrid bool
}

// NewScorer creates a scorer on an existing index connection
func NewScorer(index Index, cfg Config) (*Scorer, error) {
	if cfg.Class == "" {
		return nil, ErrMissingClass
	}
	if cfg.LabelField == "" {
		cfg.LabelField = DefaultLabelField
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, cfg.TopK)
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}

	filter, err := structpb.NewStruct(map[string]any{
		cfg.LabelField: map[string]any{"$eq": cfg.Class},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata filter: %w", err)
	}

	return &Scorer{
		index:  index,
		filter: filter,
		topK:   cfg.TopK,
		hybrid: cfg.Hybrid,
	}, nil
}

// Connect opens an index connection for the given host and namespace
func Connect(apiKey, host, namespace string) (*pinecone.IndexConnection, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	index, err := client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}
	return index, nil
}

// Score implements the counterfactual Scorer interface. An instance with no
// active features carries no evidence for the class and scores 0 without a
// query, since Pinecone rejects all-zero dense vectors.
func (s *Scorer) Score(ctx context.Context, instance sparse.Vector) (float64, error) {
	if instance.Nnz() == 0 {
		return 0, nil
	}

	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          toFloat32(instance.Dense()),
		TopK:            uint32(s.topK),
		MetadataFilter:  s.filter,
		IncludeValues:   false,
		IncludeMetadata: false,
	}
	if s.hybrid {
		req.SparseValues = toSparseValues(instance)
	}

	resp, err := s.index.QueryByVectorValues(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("pinecone query failed: %w", err)
	}

	if len(resp.Matches) == 0 {
		return 0, nil
	}

	var sum float64
	for _, match := range resp.Matches {
		sum += float64(match.Score)
	}
	return sum / float64(len(resp.Matches)), nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func toSparseValues(instance sparse.Vector) *pinecone.SparseValues {
	sv := &pinecone.SparseValues{
		Indices: make([]uint32, 0, instance.Nnz()),
		Values:  make([]float32, 0, instance.Nnz()),
	}
	instance.Each(func(index int, value float64) {
		sv.Indices = append(sv.Indices, uint32(index))
		sv.Values = append(sv.Values, float32(value))
	})
	return sv
}
