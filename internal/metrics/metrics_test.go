package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SendsTotal.WithLabelValues("sent").Inc()
	m.SendsTotal.WithLabelValues("sent").Inc()
	m.UnreadTotal.Set(7)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	sends := byName["admiral_sends_total"]
	if sends == nil {
		t.Fatal("admiral_sends_total not registered")
	}
	if got := sends.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("sends = %v, want 2", got)
	}
	unread := byName["admiral_unread_messages"]
	if unread == nil || unread.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Errorf("unread gauge = %v", unread)
	}
}

func TestNewWithNilRegistry(t *testing.T) {
	// Two instances must not collide.
	_ = New(nil)
	_ = New(nil)
}
