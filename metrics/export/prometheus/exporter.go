package prometheus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/profileauth"
	"github.com/MrEthical07/profileauth/metrics/export/internaldefs"
)

// ContentType is the text exposition format version written by the Handler.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() profileauth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter writes engine metrics in Prometheus text format.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *profileauth.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource takes any snapshot source; tests use it.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves the current snapshot. A scrape against an engine with
// metrics disabled gets 200 and an empty body.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_, _ = p.WriteTo(w)
	})
}

// Render is WriteTo into a string.
func (p *PrometheusExporter) Render() string {
	var buf bytes.Buffer
	_, _ = p.WriteTo(&buf)
	return buf.String()
}

// WriteTo writes every family in a fixed order. Nothing is written when the
// snapshot is empty and no audit events were dropped.
func (p *PrometheusExporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, def := range internaldefs.CounterDefs {
		family(cw, def.Name, def.Help, "counter")
		fmt.Fprintf(cw, "%s %d\n", def.Name, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		family(cw, def.Name, def.Help, "histogram")
		buckets := internaldefs.Cumulative(snap.Histograms[def.ID])
		for i, le := range internaldefs.Buckets {
			fmt.Fprintf(cw, "%s_bucket{le=%q} %d\n", def.Name, le, buckets[i])
		}
		// The engine keeps bucket counts only, so _sum is always zero.
		fmt.Fprintf(cw, "%s_sum 0\n%s_count %d\n", def.Name, def.Name, buckets[len(buckets)-1])
	}
	family(cw, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	fmt.Fprintf(cw, "%s %d\n", internaldefs.AuditDroppedName, dropped)

	if err := cw.w.Flush(); err != nil && cw.err == nil {
		cw.err = err
	}
	return cw.n, cw.err
}

func family(w io.Writer, name, help, typ string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, helpEscaper.Replace(help), name, typ)
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

// countingWriter keeps the first error and the byte total across many
// small writes.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
