// Package dataset reads and writes the CSV tables the lce command works on.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a numeric table split into features and an optional target.
type Dataset struct {
	Features []string
	X        *mat.Dense
	Target   string
	Y        *mat.Dense // nil without a target column
}

// NSamples returns the number of rows.
func (d *Dataset) NSamples() int {
	r, _ := d.X.Dims()
	return r
}

// isMissing reports whether a cell denotes a missing value.
func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null", "?":
		return true
	}
	return false
}

// Read parses a CSV stream whose first row is the header. Every other cell
// must be numeric or one of the missing markers (empty, NA, NaN, null, ?),
// which become NaN. When target is non-empty that column is split off as Y.
func Read(r io.Reader, target string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, lceErrors.NewValueError("dataset.Read", "empty CSV input")
	}
	if err != nil {
		return nil, lceErrors.Wrap(err, "reading header")
	}

	targetIdx := -1
	features := make([]string, 0, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if target != "" && name == target {
			targetIdx = i
			continue
		}
		features = append(features, name)
	}
	if target != "" && targetIdx < 0 {
		return nil, lceErrors.NewValidationError("target", "column not found in header", target)
	}
	if len(features) == 0 {
		return nil, lceErrors.NewValueError("dataset.Read", "no feature columns")
	}

	var xs, ys []float64
	n := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, lceErrors.Wrapf(err, "reading line %d", line)
		}
		for i, cell := range row {
			v, err := parseCell(cell)
			if err != nil {
				return nil, lceErrors.Wrapf(err, "line %d, column %q", line, header[i])
			}
			if i == targetIdx {
				ys = append(ys, v)
			} else {
				xs = append(xs, v)
			}
		}
		n++
	}
	if n == 0 {
		return nil, lceErrors.NewValueError("dataset.Read", "no data rows")
	}

	d := &Dataset{
		Features: features,
		X:        mat.NewDense(n, len(features), xs),
		Target:   target,
	}
	if targetIdx >= 0 {
		d.Y = mat.NewDense(n, 1, ys)
	}
	return d, nil
}

// ReadFile opens path and reads it with Read.
func ReadFile(path, target string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lceErrors.Wrap(err, "open dataset")
	}
	defer f.Close()

	d, err := Read(f, target)
	if err != nil {
		return nil, lceErrors.Wrapf(err, "parsing %s", path)
	}
	return d, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if isMissing(cell) {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, lceErrors.NewValueError("dataset.parseCell", "not a number: "+strconv.Quote(cell))
	}
	return v, nil
}

// Write emits m as CSV with the given header. Values use the shortest
// representation that round-trips.
func Write(w io.Writer, header []string, m mat.Matrix) error {
	r, c := m.Dims()
	if len(header) != c {
		return lceErrors.NewDimensionError("dataset.Write", c, len(header), 1)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return lceErrors.Wrap(err, "writing header")
	}
	record := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			record[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return lceErrors.Wrapf(err, "writing row %d", i)
		}
	}
	cw.Flush()
	return lceErrors.Wrap(cw.Error(), "flush CSV")
}
