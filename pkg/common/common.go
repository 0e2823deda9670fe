package common

// SampleKey addresses one trainable graph: a target particle inside one event of
// one source file. The position of a key inside the sample index is the graph's
// cache index.
type SampleKey struct {
	File   string `json:"file"`
	Event  int    `json:"event"`
	Target int    `json:"target"`
}

// Ragged is a per-event slice table. Values holds every row of every event
// back to back and Offsets[e]:Offsets[e+1] bounds the rows of event e, so
// len(Offsets) is always the number of events plus one.
type Ragged[T any] struct {
	Values  []T
	Offsets []int
}

// NewRagged flattens nested per-event rows into a Ragged table.
func NewRagged[T any](rows [][]T) Ragged[T] {
	total := 0
	for _, r := range rows {
		total += len(r)
	}
	out := Ragged[T]{
		Values:  make([]T, 0, total),
		Offsets: make([]int, 1, len(rows)+1),
	}
	for _, r := range rows {
		out.Values = append(out.Values, r...)
		out.Offsets = append(out.Offsets, len(out.Values))
	}
	return out
}

// Events returns the number of events held by the table.
func (r Ragged[T]) Events() int {
	if len(r.Offsets) == 0 {
		return 0
	}
	return len(r.Offsets) - 1
}

// Row returns the rows of event evt. The returned slice aliases Values.
func (r Ragged[T]) Row(evt int) []T {
	return r.Values[r.Offsets[evt]:r.Offsets[evt+1]]
}

// Len returns the number of rows in event evt.
func (r Ragged[T]) Len(evt int) int {
	return r.Offsets[evt+1] - r.Offsets[evt]
}

// Tensor is a dense row-major float matrix with an explicit shape, so a
// zero-width tensor still records how many rows it has.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NewTensor allocates a zeroed rows x cols tensor.
func NewTensor(rows, cols int) Tensor {
	return Tensor{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func (t Tensor) At(i, j int) float64 {
	return t.Data[i*t.Cols+j]
}

func (t Tensor) Set(i, j int, v float64) {
	t.Data[i*t.Cols+j] = v
}

// Row returns row i. The returned slice aliases Data.
func (t Tensor) Row(i int) []float64 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Column copies column j out of the tensor.
func (t Tensor) Column(j int) []float64 {
	col := make([]float64, t.Rows)
	for i := range col {
		col[i] = t.At(i, j)
	}
	return col
}

// DecayGraph is one labeled training graph. Nodes are the selected candidate
// rows in table order, edges are every ordered pair of distinct nodes.
//
// A graph contains:
//   - X: node features [N x F_node]
//   - EdgeIndex: (source, destination) pairs [N(N-1)], source-major
//   - EdgeAttr: edge features [N(N-1) x F_edge], same order as EdgeIndex
//   - U: global features [F_global]
//   - XY: per-node mass class
//   - EdgeY: per-edge relationship code, same order as EdgeIndex
//   - UY: graph target, always 1
type DecayGraph struct {
	Key       SampleKey `json:"key"`
	X         Tensor    `json:"x"`
	EdgeIndex [][2]int  `json:"edge_index"`
	EdgeAttr  Tensor    `json:"edge_attr"`
	U         []float64 `json:"u"`
	XY        []int     `json:"x_y"`
	EdgeY     []int     `json:"edge_y"`
	UY        float64   `json:"u_y"`
}

// NumNodes returns the number of nodes in the graph.
func (g *DecayGraph) NumNodes() int {
	return g.X.Rows
}

// NumEdges returns the number of directed edges in the graph.
func (g *DecayGraph) NumEdges() int {
	return len(g.EdgeIndex)
}
