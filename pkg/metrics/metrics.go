package metrics

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Family names.
const (
	RequestsTotal   = "varmock_requests_total"
	LoadErrorsTotal = "varmock_load_errors_total"
	Mocks           = "varmock_mocks"
)

type requestKey struct {
	route   string
	variant string
}

// Registry holds the counters of one server.
type Registry struct {
	mu         sync.Mutex
	requests   map[requestKey]float64
	loadErrors map[string]float64
	mocks      float64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		requests:   make(map[requestKey]float64),
		loadErrors: make(map[string]float64),
	}
}

// RequestServed counts one response of the variant of route.
func (r *Registry) RequestServed(routeID, variantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[requestKey{routeID, variantID}]++
}

// LoadErrors adds n errors of kind. A zero n still exposes the series.
func (r *Registry) LoadErrors(kind string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadErrors[kind] += float64(n)
}

// SetMocks records how many mocks the last load resolved.
func (r *Registry) SetMocks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mocks = float64(n)
}

// Gather returns the current metric families sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	requests := &dto.MetricFamily{
		Name: proto.String(RequestsTotal),
		Help: proto.String("Responses served by route variant."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for k, v := range r.requests {
		requests.Metric = append(requests.Metric, counter(v, label("route", k.route), label("variant", k.variant)))
	}
	sortMetrics(requests)

	loadErrors := &dto.MetricFamily{
		Name: proto.String(LoadErrorsTotal),
		Help: proto.String("Definitions that failed to load, by kind."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for kind, v := range r.loadErrors {
		loadErrors.Metric = append(loadErrors.Metric, counter(v, label("kind", kind)))
	}
	sortMetrics(loadErrors)

	mocks := &dto.MetricFamily{
		Name: proto.String(Mocks),
		Help: proto.String("Mocks resolved by the last load."),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: proto.Float64(r.mocks)},
		}},
	}

	families := []*dto.MetricFamily{requests, loadErrors, mocks}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
	return families
}

// WriteText writes every family in the text exposition format. Families
// without samples are skipped.
func (r *Registry) WriteText(w io.Writer) error {
	for _, mf := range r.Gather() {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics in the text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		if err := r.WriteText(&buf); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_, _ = w.Write(buf.Bytes())
	})
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func counter(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func sortMetrics(mf *dto.MetricFamily) {
	sort.Slice(mf.Metric, func(i, j int) bool {
		return labelsKey(mf.Metric[i]) < labelsKey(mf.Metric[j])
	})
}

func labelsKey(m *dto.Metric) string {
	parts := make([]string, len(m.Label))
	for i, l := range m.Label {
		parts[i] = l.GetValue()
	}
	return strings.Join(parts, "\xff")
}
