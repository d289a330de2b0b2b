// Package mat implements sparse matrices in coordinate format for exact diagonalization.
package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fumin/mpopt/mps"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

type vRowCol struct {
	v   float64
	row int
	col int
}

// COO is a sparse matrix holding its non-zero entries in row major order.
type COO struct {
	rows int
	cols int
	data []vRowCol
}

// M returns the sparse form of a dense matrix.
func M(dense [][]float64) *COO {
	m := &COO{rows: len(dense), data: make([]vRowCol, 0)}
	if len(dense) > 0 {
		m.cols = len(dense[0])
	}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.data = append(m.data, vRowCol{v: v, row: i, col: j})
		}
	}
	return m
}

// FromDense returns the sparse form of a gonum matrix.
func FromDense(a mat.Matrix) *COO {
	r, c := a.Dims()
	m := Zeros(r, c)
	for i := range r {
		for j := range c {
			if v := a.At(i, j); v != 0 {
				m.data = append(m.data, vRowCol{v: v, row: i, col: j})
			}
		}
	}
	return m
}

func Zeros(rows, cols int) *COO {
	return &COO{rows: rows, cols: cols, data: make([]vRowCol, 0)}
}

func Identity(rows int) *COO {
	m := Zeros(rows, rows)
	for i := range rows {
		m.data = append(m.data, vRowCol{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int       { return m.rows }
func (m *COO) Cols() int       { return m.cols }
func (m *COO) NumNonZero() int { return len(m.data) }

// Scalar sets m to the 1x1 matrix v.
func (m *COO) Scalar(v float64) {
	m.rows, m.cols = 1, 1
	m.data = m.data[:0]
	if v != 0 {
		m.data = append(m.data, vRowCol{v: v})
	}
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	return slices.Equal(a.data, b.data)
}

// Slice returns the submatrix of rows [y[0], y[1]) and columns [x[0], x[1]).
// Negative bounds count from the end.
func (m *COO) Slice(y, x [2]int) *COO {
	for i := range 2 {
		if y[i] < 0 {
			y[i] += m.rows
		}
		if x[i] < 0 {
			x[i] += m.cols
		}
	}

	s := Zeros(y[1]-y[0], x[1]-x[0])
	for _, v := range m.data {
		if v.row < y[0] {
			continue
		}
		if v.row >= y[1] {
			break
		}
		if v.col < x[0] || v.col >= x[1] {
			continue
		}
		s.data = append(s.data, vRowCol{v: v.v, row: v.row - y[0], col: v.col - x[0]})
	}
	return s
}

// Add sets a to a + c*b.
// b is either of the same shape as a, a column broadcast along rows, or a scalar.
func (a *COO) Add(c float64, b *COO) {
	bm := make(map[[2]int]float64, len(b.data))
	for _, v := range b.data {
		bm[[2]int{v.row, v.col}] = v.v
	}

	var broadcast func(row, col int) [2]int
	switch {
	case b.rows == a.rows && b.cols == a.cols:
		broadcast = func(row, col int) [2]int { return [2]int{row, col} }
	case b.rows == 1 && b.cols == 1:
		broadcast = func(int, int) [2]int { return [2]int{0, 0} }
	case b.rows == a.rows && b.cols == 1:
		broadcast = func(row, _ int) [2]int { return [2]int{row, 0} }
	default:
		panic(fmt.Sprintf("wrong dimensions %dx%d %dx%d", a.rows, a.cols, b.rows, b.cols))
	}

	for i, av := range a.data {
		yx := broadcast(av.row, av.col)
		a.data[i].v = av.v + c*bm[yx]
		if b.rows == a.rows && b.cols == a.cols {
			delete(bm, yx)
		}
	}
	a.data = slices.DeleteFunc(a.data, func(v vRowCol) bool { return v.v == 0 })
	// Entries of b outside the sparsity pattern of a.
	if b.rows == a.rows && b.cols == a.cols {
		for yx, bv := range bm {
			if v := c * bv; v != 0 {
				a.data = append(a.data, vRowCol{v: v, row: yx[0], col: yx[1]})
			}
		}
	}
	slices.SortFunc(a.data, rowMajor)
}

// Kron sets a to the Kronecker product a ⊗ b.
func (a *COO) Kron(b *COO) {
	data := make([]vRowCol, 0, len(a.data)*len(b.data))
	for _, av := range a.data {
		for _, bv := range b.data {
			data = append(data, vRowCol{v: av.v * bv.v, row: av.row*b.rows + bv.row, col: av.col*b.cols + bv.col})
		}
	}
	a.rows, a.cols = a.rows*b.rows, a.cols*b.cols
	a.data = slices.DeleteFunc(data, func(v vRowCol) bool { return v.v == 0 })
	slices.SortFunc(a.data, rowMajor)
}

// Dim and Apply let a square COO serve as a linear operator of iterative eigensolvers.
func (m *COO) Dim() int { return m.cols }

// Apply sets dst to m @ x.
func (m *COO) Apply(dst, x []float64) {
	clear(dst)
	for _, v := range m.data {
		dst[v.row] += v.v * x[v.col]
	}
}

// Dense returns m as a gonum matrix.
func (m *COO) Dense() *mat.Dense {
	d := mat.NewDense(max(m.rows, 1), max(m.cols, 1), nil)
	for _, v := range m.data {
		d.Set(v.row, v.col, v.v)
	}
	return d
}

// Symmetric returns the symmetric part of m as a gonum matrix.
func (m *COO) Symmetric() (*mat.SymDense, error) {
	if m.rows != m.cols {
		return nil, errors.Wrapf(mps.ErrShape, "%dx%d", m.rows, m.cols)
	}
	a := make(map[[2]int]float64, len(m.data))
	for _, v := range m.data {
		a[[2]int{v.row, v.col}] = v.v
	}
	s := mat.NewSymDense(m.rows, nil)
	for _, v := range m.data {
		i, j := min(v.row, v.col), max(v.row, v.col)
		s.SetSym(i, j, (a[[2]int{i, j}]+a[[2]int{j, i}])/2)
	}
	return s, nil
}

// WriteCOO writes m into dir as shape.csv and coo.csv.
// A value or row equal to that of the previous line is left empty.
func (m *COO) WriteCOO(dir string) error {
	shapePath := filepath.Join(dir, FnameShape)
	if err := os.WriteFile(shapePath, []byte(fmt.Sprintf("%d,%d", m.rows, m.cols)), 0644); err != nil {
		return errors.Wrap(err, "")
	}

	cooPath := filepath.Join(dir, FnameCOO)
	cooF, err := os.Create(cooPath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(cooF)
	prev := vRowCol{row: -1}
	for i, v := range m.data {
		var vStr string
		if i == 0 || v.v != prev.v {
			vStr = strconv.FormatFloat(v.v, 'g', -1, 64)
		}
		var rowStr string
		if v.row != prev.row {
			rowStr = strconv.Itoa(v.row)
		}
		if err1 := w.Write([]string{vStr, rowStr, strconv.Itoa(v.col)}); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
		prev = v
	}
	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := cooF.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

// COOReader streams the entries written by WriteCOO.
type COOReader struct {
	f *os.File
	r *csv.Reader
	i int

	prev vRowCol
}

func NewCOOReader(dir string) (*COOReader, error) {
	r := &COOReader{i: -1}
	var err error
	r.f, err = os.Open(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	r.r = csv.NewReader(r.f)
	return r, nil
}

func (r *COOReader) Close() error {
	return r.f.Close()
}

// Read returns the next entry, or io.EOF.
func (r *COOReader) Read() (vRowCol, error) {
	r.i++
	record, err := r.r.Read()
	if err == io.EOF {
		return vRowCol{}, io.EOF
	}
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d", r.i))
	}
	if len(record) != 3 {
		return vRowCol{}, errors.Errorf("%d %#v", r.i, record)
	}

	vrc := r.prev
	if record[0] != "" {
		vrc.v, err = strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
		}
	}
	if record[1] != "" {
		vrc.row, err = strconv.Atoi(record[1])
		if err != nil {
			return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
		}
	}
	vrc.col, err = strconv.Atoi(record[2])
	if err != nil {
		return vRowCol{}, errors.Wrap(err, fmt.Sprintf("%d %#v", r.i, record))
	}

	r.prev = vrc
	return vrc, nil
}

func ReadCOO(dir string) (*COO, error) {
	rows, cols, err := readShape(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m := Zeros(rows, cols)

	r, err := NewCOOReader(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer r.Close()
	for {
		v, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if v.row < 0 || v.row >= rows || v.col < 0 || v.col >= cols {
			return nil, errors.Wrapf(mps.ErrShape, "entry %#v of %dx%d", v, rows, cols)
		}
		m.data = append(m.data, v)
	}
	slices.SortFunc(m.data, rowMajor)
	return m, nil
}

func readShape(dir string) (int, int, error) {
	f, err := os.Open(filepath.Join(dir, FnameShape))
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return -1, -1, errors.Wrap(err, "")
	}
	if len(records) == 0 {
		return -1, -1, errors.Errorf("empty")
	}
	row := records[0]
	if len(row) != 2 {
		return -1, -1, errors.Errorf("%#v", row)
	}
	i, err := strconv.Atoi(row[0])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	j, err := strconv.Atoi(row[1])
	if err != nil {
		return -1, -1, errors.Wrap(err, fmt.Sprintf("%#v", row))
	}
	return i, j, nil
}

func (m *COO) String() string {
	dense := make(map[[2]int]float64, len(m.data))
	for _, v := range m.data {
		dense[[2]int{v.row, v.col}] = v.v
	}
	lines := make([]string, 0, m.rows)
	for i := range m.rows {
		cs := make([]string, 0, m.cols)
		for j := range m.cols {
			cs = append(cs, format(dense[[2]int{i, j}]))
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}
	return strings.Join(lines, "\n")
}

// ValVec is an eigenpair.
type ValVec struct {
	Val float64
	Vec []float64
}

// Eigen returns all eigenpairs of the symmetric part of m in ascending order of eigenvalue.
func (m *COO) Eigen() ([]ValVec, error) {
	s, err := m.Symmetric()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, errors.Wrapf(mps.ErrNumerical, "EigenSym of dimension %d did not converge", m.rows)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	vvs := make([]ValVec, 0, len(vals))
	for i, v := range vals {
		vvs = append(vvs, ValVec{Val: v, Vec: mat.Col(nil, i, &vecs)})
	}
	slices.SortStableFunc(vvs, func(a, b ValVec) int { return cmp.Compare(a.Val, b.Val) })
	return vvs, nil
}

func rowMajor(a, b vRowCol) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// Avoid printing -0.
	if v == 0 {
		return " 0"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	// Align non-negative numbers with negative ones in the same column.
	if v >= 0 {
		s = " " + s
	}
	return s
}
