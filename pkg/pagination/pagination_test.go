package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assessments"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?_count=5&_offset=15&limit=50&offset=1", 5, 15},
		{"?limit=1000", MaxLimit, 0},
		{"?limit=-3&offset=-7", DefaultLimit, 0},
		{"?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("expected %d/%d, got %d/%d", tt.wantLimit, tt.wantOffset, p.Limit, p.Offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 25, Params{Limit: 10, Offset: 10})
	if !r.HasMore {
		t.Error("expected more results after offset 10 of 25")
	}
	r = NewResponse([]string{"a"}, 25, Params{Limit: 10, Offset: 20})
	if r.HasMore {
		t.Error("expected no more results on last page")
	}
}

func TestLinks(t *testing.T) {
	links := Params{Limit: 10, Offset: 10}.Links("/fhir/RiskAssessment", 35)
	if len(links) != 3 {
		t.Fatalf("expected self, next, previous; got %d links", len(links))
	}
	want := map[string]string{
		"self":     "/fhir/RiskAssessment?_count=10&_offset=10",
		"next":     "/fhir/RiskAssessment?_count=10&_offset=20",
		"previous": "/fhir/RiskAssessment?_count=10&_offset=0",
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s: expected %s, got %s", l.Relation, want[l.Relation], l.URL)
		}
	}
}

func TestLinks_FirstAndOnlyPage(t *testing.T) {
	links := Params{Limit: 20}.Links("/fhir/RiskAssessment", 3)
	if len(links) != 1 || links[0].Relation != "self" {
		t.Errorf("expected only a self link, got %+v", links)
	}
}
