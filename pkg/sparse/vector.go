// Package sparse provides an immutable sparse row vector.
package sparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	// ErrIndexOutOfRange is returned when an index is negative or not below the dimension.
	ErrIndexOutOfRange = errors.New("sparse: index out of range")

	// ErrDimensionMismatch is returned when two operands disagree on dimensionality.
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")

	// ErrUnsorted is returned when indices are not strictly ascending.
	ErrUnsorted = errors.New("sparse: indices must be strictly ascending")
)

// Vector is a single sparse row. Its fields are never modified after
// construction: every perturbation returns a fresh Vector.
type Vector struct {
	dim     int
	indices []int
	values  []float64
}

// NewVector builds a vector of the given dimension. Indices must be strictly
// ascending and within [0, dim). Explicit zeros are dropped.
func NewVector(dim int, indices []int, values []float64) (Vector, error) {
	if dim < 0 {
		return Vector{}, fmt.Errorf("negative dimension %d: %w", dim, ErrIndexOutOfRange)
	}
	if len(indices) != len(values) {
		return Vector{}, fmt.Errorf("%d indices but %d values: %w", len(indices), len(values), ErrDimensionMismatch)
	}

	v := Vector{
		dim:     dim,
		indices: make([]int, 0, len(indices)),
		values:  make([]float64, 0, len(values)),
	}
	prev := -1
	for i, idx := range indices {
		if idx < 0 || idx >= dim {
			return Vector{}, fmt.Errorf("index %d with dimension %d: %w", idx, dim, ErrIndexOutOfRange)
		}
		if idx <= prev {
			return Vector{}, fmt.Errorf("index %d after %d: %w", idx, prev, ErrUnsorted)
		}
		prev = idx
		if values[i] == 0 {
			continue
		}
		v.indices = append(v.indices, idx)
		v.values = append(v.values, values[i])
	}
	return v, nil
}

// FromDense builds a sparse vector from a dense row.
func FromDense(dense []float64) Vector {
	v := Vector{dim: len(dense)}
	for i, x := range dense {
		if x != 0 {
			v.indices = append(v.indices, i)
			v.values = append(v.values, x)
		}
	}
	return v
}

// Dim returns the dimensionality of the vector.
func (v Vector) Dim() int {
	return v.dim
}

// Nnz returns the number of non-zero entries.
func (v Vector) Nnz() int {
	return len(v.indices)
}

// NonZero returns the indices of the active features in ascending order.
// The returned slice is a copy.
func (v Vector) NonZero() []int {
	return slices.Clone(v.indices)
}

// At returns the value at index i, or zero if i is not active.
func (v Vector) At(i int) float64 {
	pos, ok := slices.BinarySearch(v.indices, i)
	if !ok {
		return 0
	}
	return v.values[pos]
}

// Each calls fn for every non-zero entry in index order.
func (v Vector) Each(fn func(index int, value float64)) {
	for i, idx := range v.indices {
		fn(idx, v.values[i])
	}
}

// Without returns a copy of v with the given features zeroed.
// Indices that are not active are ignored.
func (v Vector) Without(features ...int) Vector {
	drop := make(map[int]struct{}, len(features))
	for _, f := range features {
		drop[f] = struct{}{}
	}

	out := Vector{
		dim:     v.dim,
		indices: make([]int, 0, len(v.indices)),
		values:  make([]float64, 0, len(v.values)),
	}
	for i, idx := range v.indices {
		if _, ok := drop[idx]; ok {
			continue
		}
		out.indices = append(out.indices, idx)
		out.values = append(out.values, v.values[i])
	}
	return out
}

// Dot computes the dot product with a dense weight vector.
func (v Vector) Dot(dense []float64) (float64, error) {
	if len(dense) != v.dim {
		return 0, fmt.Errorf("vector dimension %d, weights %d: %w", v.dim, len(dense), ErrDimensionMismatch)
	}
	var sum float64
	for i, idx := range v.indices {
		sum += v.values[i] * dense[idx]
	}
	return sum, nil
}

// Dense converts the vector to a dense slice.
func (v Vector) Dense() []float64 {
	dense := make([]float64, v.dim)
	for i, idx := range v.indices {
		dense[idx] = v.values[i]
	}
	return dense
}

// Norm returns the euclidean norm of the vector.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Equal reports whether both vectors have the same dimension and entries.
func (v Vector) Equal(o Vector) bool {
	return v.dim == o.dim && slices.Equal(v.indices, o.indices) && slices.Equal(v.values, o.values)
}

// wire is the serialized form shared by JSON and YAML.
type wire struct {
	Dim     int       `json:"dim" yaml:"dim"`
	Indices []int     `json:"indices" yaml:"indices"`
	Values  []float64 `json:"values" yaml:"values"`
}

func (v Vector) toWire() wire {
	w := wire{Dim: v.dim, Indices: v.indices, Values: v.values}
	if w.Indices == nil {
		w.Indices = []int{}
		w.Values = []float64{}
	}
	return w
}

// MarshalJSON implements json.Marshaler.
func (v Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := NewVector(w.Dim, w.Indices, w.Values)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Vector) MarshalYAML() (any, error) {
	return v.toWire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Vector) UnmarshalYAML(node *yaml.Node) error {
	var w wire
	if err := node.Decode(&w); err != nil {
		return err
	}
	parsed, err := NewVector(w.Dim, w.Indices, w.Values)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
