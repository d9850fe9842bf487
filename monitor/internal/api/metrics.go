package api

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/pulsewatch/monitor/internal/status"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

const metricPrefix = "pulsewatch_"

// metrics serves GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, _ *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range BuildMetrics(h.deps.Status.List()) {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("api: encode metric family failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

// BuildMetrics converts live entries into metric families. Families with no
// samples are omitted, except the check count.
func BuildMetrics(entries []status.Entry) []*dto.MetricFamily {
	checks := gaugeFamily("checks", "Number of checks with a live result.")
	checks.Metric = append(checks.Metric, gauge(float64(len(entries))))

	up := gaugeFamily("check_up", "1 if the check's last probe succeeded, 0 otherwise.")
	duration := gaugeFamily("check_duration_milliseconds", "Duration of the last probe.")
	uptime := gaugeFamily("check_uptime_percent", "Share of up results over the recent window.")
	cert := gaugeFamily("check_cert_days_left", "Whole days until the served certificate expires.")
	code := gaugeFamily("check_response_code", "HTTP status code of the last probe, 0 when it errored.")
	alerts := &dto.MetricFamily{
		Name: proto.String(metricPrefix + "check_alerts_total"),
		Help: proto.String("State-change alerts raised since the check was first seen."),
		Type: dto.MetricType_COUNTER.Enum(),
	}

	for _, e := range entries {
		c := e.Result.Check
		labels := []*dto.LabelPair{
			{Name: proto.String("check"), Value: proto.String(c.ID)},
			{Name: proto.String("target"), Value: proto.String(c.Target())},
		}

		var upValue float64
		if c.State == types.StateUp {
			upValue = 1
		}
		up.Metric = append(up.Metric, labelled(gauge(upValue), labels))
		duration.Metric = append(duration.Metric, labelled(gauge(float64(e.Result.Outcome.DurationMS)), labels))
		uptime.Metric = append(uptime.Metric, labelled(gauge(e.Result.UptimePct), labels))
		code.Metric = append(code.Metric, labelled(gauge(float64(e.Result.Outcome.ResponseCode)), labels))
		if d := e.Result.Outcome.CertDaysLeft; d != nil {
			cert.Metric = append(cert.Metric, labelled(gauge(float64(*d)), labels))
		}
		alerts.Metric = append(alerts.Metric, &dto.Metric{
			Label:   labels,
			Counter: &dto.Counter{Value: proto.Float64(float64(e.AlertCount))},
		})
	}

	out := []*dto.MetricFamily{checks}
	for _, mf := range []*dto.MetricFamily{up, duration, uptime, code, cert, alerts} {
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	return out
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(metricPrefix + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func labelled(m *dto.Metric, labels []*dto.LabelPair) *dto.Metric {
	m.Label = labels
	return m
}
