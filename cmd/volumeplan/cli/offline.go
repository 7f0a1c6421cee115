package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/volumeplan/volumeplan/internal/forecast"
)

// readRecords loads a JSON array of records from path, or stdin for "-".
func readRecords(path string, stdin io.Reader) ([]forecast.Record, error) {
	var r io.Reader
	switch strings.TrimSpace(path) {
	case "", "-":
		if stdin == nil {
			stdin = os.Stdin
		}
		r = stdin
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var records []forecast.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// parseFilters turns "dim=v1,v2" arguments into filters.
func parseFilters(raw []string) ([]forecast.Filter, error) {
	filters := make([]forecast.Filter, 0, len(raw))
	for _, item := range raw {
		dim, values, ok := strings.Cut(item, "=")
		dim = strings.TrimSpace(dim)
		if !ok || dim == "" {
			return nil, fmt.Errorf("invalid filter %q (expected dimension=v1,v2)", item)
		}
		f := forecast.Filter{Dimension: dim}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				f.Values = append(f.Values, v)
			}
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// multiFlag collects repeated string flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ";") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
