package insights

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avezhov/finance-service/internal/config"
	"github.com/avezhov/finance-service/internal/models"
	"github.com/sirupsen/logrus"
)

func newTestClient(url string) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewClient(&config.Config{InsightsURL: url}, log)
}

func TestMonthlyInsightsParsesResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		w.Write([]byte(`{"insights": ["Spend less on takeout.", "Income grew 4%."]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).MonthlyInsights(context.Background(), models.NewMonthlyStats(), "February")
	if err != nil {
		t.Fatalf("monthly insights: %v", err)
	}
	if len(got) != 2 || got[0] != "Spend less on takeout." {
		t.Fatalf("unexpected insights: %v", got)
	}
}

func TestMonthlyInsightsErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
		{"empty insights", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"insights": []}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			if _, err := newTestClient(srv.URL).MonthlyInsights(context.Background(), models.NewMonthlyStats(), "February"); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestMonthlyInsightsUnconfigured(t *testing.T) {
	t.Parallel()

	if _, err := newTestClient("").MonthlyInsights(context.Background(), models.NewMonthlyStats(), "February"); err == nil {
		t.Fatal("expected an error when no provider is configured")
	}
}
