package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"ProductScout/internal/domain"
)

func sampleReport() domain.RunReport {
	return domain.RunReport{
		Query:  domain.Query{ID: "q1", Text: "headphones for sleeping"},
		Result: domain.PipelineResult{QueryID: "q1", Success: true, CandidateCount: 2, Top10Count: 1},
		Products: []domain.RankedProduct{{
			Rank:      1,
			Product:   domain.CandidateProduct{Brand: "Sony", Model: "WF_1000XM5"},
			Scores:    domain.ScoringDimensions{Overall: 72},
			Rationale: "Most praised for comfort.",
			Citations: []domain.Citation{{SourceURL: "https://reddit.com/r/sleep/1"}},
		}},
	}
}

func TestNotifyPostsDigest(t *testing.T) {
	t.Parallel()

	forms := make(chan url.Values, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		forms <- r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier("token", "42")
	n.baseURL = server.URL
	n.client = server.Client()

	if err := n.Notify(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	form := <-forms
	if form.Get("chat_id") != "42" {
		t.Fatalf("unexpected chat id: %s", form.Get("chat_id"))
	}
	if !strings.Contains(form.Get("text"), `1. Sony WF\_1000XM5 - 72/100`) {
		t.Fatalf("unexpected digest: %s", form.Get("text"))
	}
}

func TestNotifyMisconfigured(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").Notify(context.Background(), sampleReport()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBuildDigestFailureAndEmpty(t *testing.T) {
	t.Parallel()

	failed := domain.RunReport{Query: domain.Query{Text: "lamp"}, Result: domain.PipelineResult{Error: "query missing"}}
	if got := BuildDigest(failed); !strings.Contains(got, "Run failed: query missing") {
		t.Fatalf("unexpected failure digest: %s", got)
	}

	empty := domain.RunReport{Query: domain.Query{Text: "lamp"}, Result: domain.PipelineResult{Success: true}}
	if got := BuildDigest(empty); !strings.Contains(got, "No products found") {
		t.Fatalf("unexpected empty digest: %s", got)
	}
}

func TestBuildDigestEscapesCitationURL(t *testing.T) {
	t.Parallel()

	report := sampleReport()
	report.Products[0].Citations[0].SourceURL = "https://www.reddit.com/r/sleep/comments/abc/best_sleep_buds/"

	got := BuildDigest(report)
	if !strings.Contains(got, `https://www.reddit.com/r/sleep/comments/abc/best\_sleep\_buds/`) {
		t.Fatalf("citation url not escaped: %s", got)
	}
}
