// Package metrics renders run statistics in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tastythames/polyrun/internal/runstore"
)

// QueueStats reports enqueued and dropped run counts.
type QueueStats func() (enqueued, dropped uint64)

type Renderer struct {
	Store runstore.Store
	Queue QueueStats
}

func NewRenderer(s runstore.Store, q QueueStats) *Renderer {
	return &Renderer{Store: s, Queue: q}
}

func (r *Renderer) Write(w io.Writer) {
	start := time.Now()

	header(w, MetricUp, "gauge", "1 if the polyrun service is running.")
	fmt.Fprintf(w, "%s 1\n", MetricUp)

	if r.Queue != nil {
		enq, drop := r.Queue()
		header(w, MetricQueueEnqueued, "counter", "Runs accepted into the queue.")
		fmt.Fprintf(w, "%s %d\n", MetricQueueEnqueued, enq)
		header(w, MetricQueueDropped, "counter", "Runs dropped because the queue was full.")
		fmt.Fprintf(w, "%s %d\n", MetricQueueDropped, drop)
	}

	snap := r.Store.Snapshot()

	counts := map[[2]string]int{}
	last := map[string]runstore.Run{}
	for _, run := range snap {
		counts[[2]string{run.Tool, string(run.State)}]++
		if run.Host == "" || !run.State.Done() {
			continue
		}
		if prev, ok := last[run.Host]; !ok || run.Finished.After(prev.Finished) {
			last[run.Host] = run
		}
	}

	header(w, MetricRuns, "gauge", "Runs held in the store by tool and state.")
	keys := make([][2]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s %d\n", MetricRuns, formatLabels(map[string]string{"tool": k[0], "state": k[1]}), counts[k])
	}

	header(w, MetricHostUp, "gauge", "0 if the last run on the host failed.")
	header(w, MetricHostLastDuration, "gauge", "Duration of the last run on the host.")
	header(w, MetricHostLastRunTs, "gauge", "Unix timestamp of the last finished run on the host.")
	header(w, MetricHostMissing, "gauge", "Expected outputs the last run could not retrieve.")

	hosts := make([]string, 0, len(last))
	for h := range last {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	for _, h := range hosts {
		run := last[h]
		labels := formatLabels(map[string]string{"host": h})

		up := 1
		if run.State == runstore.StateFailed {
			up = 0
		}
		fmt.Fprintf(w, "%s%s %d\n", MetricHostUp, labels, up)
		if !run.Started.IsZero() {
			fmt.Fprintf(w, "%s%s %.3f\n", MetricHostLastDuration, labels, run.Finished.Sub(run.Started).Seconds())
		}
		fmt.Fprintf(w, "%s%s %d\n", MetricHostLastRunTs, labels, run.Finished.Unix())
		missing := 0
		if run.Result != nil {
			missing = len(run.Result.Missing)
		}
		fmt.Fprintf(w, "%s%s %d\n", MetricHostMissing, labels, missing)
	}

	header(w, MetricRenderDurationSeconds, "gauge", "Time spent rendering /metrics.")
	fmt.Fprintf(w, "%s %.6f\n", MetricRenderDurationSeconds, time.Since(start).Seconds())
}

func header(w io.Writer, name, typ, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, typ)
}

func formatLabels(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `%s="%s"`, k, escape(m[k]))
	}
	b.WriteString("}")
	return b.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escape(v string) string { return labelEscaper.Replace(v) }
