package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vthunder/hourglass/internal/netguard"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// httptest binds to 127.0.0.1, so the loopback-only policy permits it.
	return NewClient(srv.URL, "llama3.1:8b", netguard.New(true), 5*time.Second)
}

func TestAvailableChecksModelList(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.1:8b"}},
		})
	})
	if !c.Available(context.Background()) {
		t.Error("model in tags list should be available")
	}
}

func TestAvailableFalseWhenModelMissing(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "mistral:7b"}},
		})
	})
	if c.Available(context.Background()) {
		t.Error("missing model should not be available")
	}
}

func TestSummarizeParsesWrappedJSON(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Models often wrap JSON in prose; the client must cope.
		resp := `Sure! Here is the summary:
{"narrative": "A steady day.", "suggestions": ["a", "b", "c"]}
Hope that helps.`
		json.NewEncoder(w).Encode(generateResponse{Response: resp, Done: true})
	})

	narrative, suggestions, err := c.Summarize(context.Background(), "data")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if narrative != "A steady day." {
		t.Errorf("narrative = %q", narrative)
	}
	if len(suggestions) != 3 {
		t.Errorf("got %d suggestions", len(suggestions))
	}
}

func TestSummarizeErrorOnGarbage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "no json here", Done: true})
	})
	if _, _, err := c.Summarize(context.Background(), "data"); err == nil {
		t.Error("expected parse error for non-JSON response")
	}
}

func TestSummarizeHonorsContext(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := c.Summarize(ctx, "data"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestClassifyCategoryMatchesOffered(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: " \"work\" \n", Done: true})
	})
	cat, err := c.ClassifyCategory(context.Background(), "writing report", "", []string{"Work", "Break"})
	if err != nil {
		t.Fatalf("ClassifyCategory: %v", err)
	}
	if cat != "Work" {
		t.Errorf("category = %q, want Work (case-normalized)", cat)
	}
}

func TestClassifyCategoryRejectsUnknown(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "Gardening", Done: true})
	})
	cat, err := c.ClassifyCategory(context.Background(), "x", "", []string{"Work", "Break"})
	if err != nil {
		t.Fatalf("ClassifyCategory: %v", err)
	}
	if cat != "" {
		t.Errorf("unknown answer should map to empty, got %q", cat)
	}
}
