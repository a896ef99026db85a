// Package report summarizes segmentation results per class.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ClassVolumes builds a table with one row per class: class, voxels and
// fraction of all voxels. When dice is not nil it adds a dice column; it
// must then have one score per class.
func ClassVolumes(counts []int64, dice []float64) (dataframe.DataFrame, error) {
	if dice != nil && len(dice) != len(counts) {
		return dataframe.DataFrame{}, errors.Errorf("got %v dice scores for %v classes", len(dice), len(counts))
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	classes := make([]int, len(counts))
	voxels := make([]int, len(counts))
	fractions := make([]float64, len(counts))
	for i, c := range counts {
		classes[i] = i
		voxels[i] = int(c)
		if total > 0 {
			fractions[i] = float64(c) / float64(total)
		}
	}

	cols := []series.Series{
		series.New(classes, series.Int, "class"),
		series.New(voxels, series.Int, "voxels"),
		series.New(fractions, series.Float, "fraction"),
	}
	if dice != nil {
		cols = append(cols, series.New(dice, series.Float, "dice"))
	}

	df := dataframe.New(cols...)
	return df, df.Err
}

// WriteCSV writes df to w with a header row.
func WriteCSV(w io.Writer, df dataframe.DataFrame) error {
	return df.WriteCSV(w)
}

// SaveCSV writes df to a file.
func SaveCSV(filename string, df dataframe.DataFrame) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, df); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %q", filename)
	}
	return f.Close()
}

// PlotFractions saves a bar chart of the "fraction" column of df.
// The image format follows the file extension (png, svg, pdf, ...).
func PlotFractions(filename, title string, df dataframe.DataFrame) error {
	fractions := df.Col("fraction")
	if fractions.Err != nil {
		return fractions.Err
	}

	values := make(plotter.Values, fractions.Len())
	names := make([]string, fractions.Len())
	for i := range values {
		values[i] = fractions.Elem(i).Float()
		names[i] = fmt.Sprintf("class %d", i)
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title
	p.Y.Label.Text = "fraction of voxels"

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	return p.Save(4*vg.Inch, 3*vg.Inch, filename)
}
