package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/keyrotate/pkg/rotate"
)

var now = time.Date(2022, time.June, 1, 0, 0, 0, 0, time.UTC)

func TestObserveKeys(t *testing.T) {
	r := New()
	r.ObserveKeys([]rotate.AccessKey{
		{ID: "A", Status: rotate.StatusInactive, CreatedAt: now.AddDate(0, 0, -90)},
		{ID: "B", Status: rotate.StatusActive, CreatedAt: now.AddDate(0, 0, -30)},
	}, now)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.keys.WithLabelValues("Active")), "active keys")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.keys.WithLabelValues("Inactive")), "inactive keys")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.keys.WithLabelValues("Unknown")), "unknown keys")
	assert.Equal(t, 30.0, testutil.ToFloat64(r.oldestKeyAge), "only active keys count toward age")

	r.ObserveKeys(nil, now)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.keys.WithLabelValues("Active")), "counts reset")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.oldestKeyAge), "age reset")
}

func TestObserveActionAndRun(t *testing.T) {
	r := New()
	r.ObserveAction(rotate.Action{Kind: rotate.CreateKey, Rule: rotate.RuleBootstrap})
	r.ObserveAction(rotate.Action{Kind: rotate.CreateKey, Rule: rotate.RuleBootstrap})
	r.ObserveRun(nil, now)
	r.ObserveRun(errors.New("bad stuff"), now)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.actions.WithLabelValues("create-key", "bootstrap")), "actions counted")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("success")), "success counted")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failure")), "failure counted")
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(r.lastRun), "last run time")

	expected := `
# HELP keyrotate_runs_total Total number of rotation runs by result
# TYPE keyrotate_runs_total counter
keyrotate_runs_total{result="failure"} 1
keyrotate_runs_total{result="success"} 1
`
	err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "keyrotate_runs_total")
	assert.NoError(t, err, "exposition matches")
}

func TestHappyPush(t *testing.T) {
	var (
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.ObserveRun(nil, now)

	err := r.Push(context.Background(), srv.URL, "deploy-bot")
	require.NoError(t, err, "push works")
	assert.Equal(t, "/metrics/job/keyrotate/principal/deploy-bot", path, "grouped by principal")
	assert.NotEmpty(t, body, "metrics sent")
}

func TestSadPush(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "deploy-bot")
	assert.ErrorContains(t, err, "failed to push metrics", "server failure reported")
}
