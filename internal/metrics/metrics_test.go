package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHTTP(t *testing.T) {
	tests := []struct {
		name  string
		route string
		want  string
	}{
		{name: "matched route", route: "/verify", want: "/verify"},
		{name: "unmatched route", route: "", want: "unmatched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := HTTPRequests.WithLabelValues(http.MethodPost, tt.want, "200")
			before := testutil.ToFloat64(counter)

			ObserveHTTP(http.MethodPost, tt.route, http.StatusOK, 5*time.Millisecond)

			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Errorf("requests = %v, want %v", got, before+1)
			}
		})
	}
}

func TestSubmissionsCounter(t *testing.T) {
	before := testutil.ToFloat64(Submissions.WithLabelValues("unknown"))
	Submissions.WithLabelValues("unknown").Inc()
	if got := testutil.ToFloat64(Submissions.WithLabelValues("unknown")); got != before+1 {
		t.Errorf("submissions = %v, want %v", got, before+1)
	}
}
