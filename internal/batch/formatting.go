package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// formatBatchResults formats the entries in the given format.
func formatBatchResults(entries []Entry, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(entries)
	case "csv":
		return formatCSV(entries)
	case "", "text":
		return formatText(entries), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func formatJSON(entries []Entry) (string, error) {
	out := struct {
		Pairs []Entry `json:"pairs"`
	}{Pairs: entries}
	bts, err := json.MarshalIndent(out, "", "  ")
	return string(bts), err
}

func formatCSV(entries []Entry) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	header := []string{
		"name", "source", "points", "valid_disparities", "consistent",
		"depth_min", "depth_max", "depth_mean", "total_ms", "cloud", "error",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, e := range entries {
		row := []string{e.Name, e.Source, "0", "0", "0", "", "", "", "", e.Cloud, e.Error}
		if r := e.Result; r != nil {
			s := r.Summary
			row[2] = strconv.Itoa(s.Points)
			row[3] = strconv.Itoa(s.ValidDisparities)
			row[4] = strconv.Itoa(s.Consistent)
			row[5] = strconv.FormatFloat(s.DepthMin, 'f', 4, 64)
			row[6] = strconv.FormatFloat(s.DepthMax, 'f', 4, 64)
			row[7] = strconv.FormatFloat(s.DepthMean, 'f', 4, 64)
			row[8] = strconv.FormatInt(time.Duration(r.Processing.TotalNs).Milliseconds(), 10)
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}

func formatText(entries []Entry) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Sprintf("# %s (%s)\n", e.Name, e.Source))
		if e.Error != "" {
			b.WriteString(p.Sprintf("  error: %s\n", e.Error))
		}
		r := e.Result
		if r == nil {
			continue
		}
		s := r.Summary
		b.WriteString(p.Sprintf("  rectified: %dx%d, baseline %.4f, focal %.2f\n", s.Width, s.Height, s.Baseline, s.Focal))
		b.WriteString(p.Sprintf("  disparities: %d valid, %d consistent, range [%.2f, %.2f]\n",
			s.ValidDisparities, s.Consistent, s.DisparityMin, s.DisparityMax))
		b.WriteString(p.Sprintf("  points: %d (%d dropped)\n", s.Points, r.FilterStats.Dropped()))
		if s.Points > 0 {
			b.WriteString(p.Sprintf("  depth: %.4f .. %.4f, mean %.4f\n", s.DepthMin, s.DepthMax, s.DepthMean))
		}
		if e.Cloud != "" {
			b.WriteString(p.Sprintf("  cloud: %s\n", e.Cloud))
		}
		b.WriteString(p.Sprintf("  time: %v\n", time.Duration(r.Processing.TotalNs).Round(time.Millisecond)))
	}
	return b.String()
}
