package report

import (
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
)

// Entry is one volume listed in a manifest.
type Entry struct {
	ID     string
	Path   string
	Target string // optional ground truth labels
}

// ReadManifest reads a CSV file with header "id,path" and an optional
// "target" column.
func ReadManifest(filename string) ([]Entry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true), dataframe.DetectTypes(false))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "reading manifest %q", filename)
	}

	hasTarget := false
	for _, name := range df.Names() {
		if name == "target" {
			hasTarget = true
		}
	}

	ids := df.Col("id")
	paths := df.Col("path")
	if ids.Err != nil || paths.Err != nil {
		return nil, errors.Errorf("manifest %q needs \"id\" and \"path\" columns, got %v", filename, df.Names())
	}

	var targets []string
	if hasTarget {
		targets = df.Col("target").Records()
	}

	entries := make([]Entry, 0, df.Nrow())
	for i, id := range ids.Records() {
		e := Entry{ID: id, Path: paths.Records()[i]}
		if hasTarget {
			e.Target = targets[i]
		}
		entries = append(entries, e)
	}

	return entries, nil
}
