// Package report renders stored projections as text and histogram PNGs.
package report

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/projection"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/store"
	"github.com/alexistats/nhl-modelling-bayesian/projector/internal/summary"
)

// Stats lists the totals in report order.
var Stats = []projection.Stat{projection.Points, projection.Goals, projection.Assists}

var (
	colorA = color.NRGBA{R: 31, G: 119, B: 180, A: 140}
	colorB = color.NRGBA{R: 255, G: 127, B: 14, A: 140}
)

// WriteSummary prints one block per player: header line, then one line per stat.
// Summaries are recomputed from the samples at level.
func WriteSummary(w io.Writer, a *store.Artifact, level float64) error {
	_, err := fmt.Fprintf(w, "%s  season %s  %d GP  %d G  %d A  %d games left\n",
		a.Player, a.SeasonID, a.GamesPlayed, a.Totals.Goals, a.Totals.Assists, len(a.Remaining))
	if err != nil {
		return err
	}
	for _, st := range Stats {
		s, err := summary.Summarize(a.Samples.Select(st), level)
		if err != nil {
			return fmt.Errorf("%s %s: %w", a.Player, st, err)
		}
		_, err = fmt.Fprintf(w, "  %-8s mean %7.2f  %2.0f%% HDI [%4.0f, %4.0f]  var %7.2f  p5 %5.1f  p95 %5.1f\n",
			st, s.Mean, s.Level*100, s.Lower, s.Upper, s.Variance, s.P5, s.P95)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteLeaderboard prints the first n ranked entries by expected points, or
// all of them when n <= 0. Entries without a points summary are skipped.
func WriteLeaderboard(w io.Writer, entries []store.Entry, n int) error {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	for _, e := range entries[:n] {
		s, ok := e.Summaries[projection.Points.String()]
		if !ok {
			continue
		}
		_, err := fmt.Fprintf(w, "%3d. %-24s %7.2f pts  %2.0f%% HDI [%4.0f, %4.0f]\n",
			e.Rank, e.Player, s.Mean, s.Level*100, s.Lower, s.Upper)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteComparison prints P(A > B) for one stat.
func WriteComparison(w io.Writer, a, b *store.Artifact, st projection.Stat) error {
	p, err := summary.Compare(a.Samples.Select(st), b.Samples.Select(st))
	if err != nil {
		return fmt.Errorf("compare %s vs %s: %w", a.Player, b.Player, err)
	}
	_, err = fmt.Fprintf(w, "P(%s > %s on %s) = %.3f\n", a.Player, b.Player, st, p)
	return err
}

// Histogram saves overlaid, normalized histograms of one stat for two
// players to path. The format follows the file extension.
func Histogram(path string, a, b *store.Artifact, st projection.Stat) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Projected season %s", st)
	p.X.Label.Text = st.String()
	p.Y.Label.Text = "density"
	p.Legend.Top = true

	for _, series := range []struct {
		art *store.Artifact
		c   color.Color
	}{{a, colorA}, {b, colorB}} {
		vals := series.art.Samples.Select(st)
		if len(vals) == 0 {
			return fmt.Errorf("%s has no %s samples", series.art.Player, st)
		}
		h, err := plotter.NewHist(plotter.Values(vals), bins(vals))
		if err != nil {
			return fmt.Errorf("histogram %s: %w", series.art.Player, err)
		}
		h.Normalize(1)
		h.FillColor = series.c
		h.LineStyle.Width = vg.Length(0)
		p.Add(h)
		p.Legend.Add(series.art.Player, h)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// bins uses one bin per integer total, capped to keep sparse tails readable.
func bins(vals []float64) int {
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	n := int(hi-lo) + 1
	return min(max(n, 1), 60)
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// FileName returns "<a>_vs_<b>_<stat>.png" under dir with names slugged.
func FileName(dir string, a, b string, st projection.Stat) string {
	return filepath.Join(dir, fmt.Sprintf("%s_vs_%s_%s.png", slug(a), slug(b), st))
}

func slug(name string) string {
	return strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
