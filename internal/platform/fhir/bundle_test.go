package fhir

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewCollectionBundle(t *testing.T) {
	p := &Patient{ResourceType: "Patient", ID: "p1"}
	ra := &RiskAssessment{ResourceType: "RiskAssessment", ID: "sarcoma-risk-p1", Status: "final", Subject: Reference{Reference: "Patient/p1"}}

	b, err := NewCollectionBundle("sarcoma-risk-p1", "http://ehr.test/fhir/", p, ra)
	if err != nil {
		t.Fatalf("NewCollectionBundle() error: %v", err)
	}
	if b.Type != "collection" {
		t.Errorf("expected collection, got %s", b.Type)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(b.Entry))
	}
	if b.Entry[0].FullURL != "http://ehr.test/fhir/Patient/p1" {
		t.Errorf("expected absolute fullUrl, got %s", b.Entry[0].FullURL)
	}
	if b.Entry[1].FullURL != "http://ehr.test/fhir/RiskAssessment/sarcoma-risk-p1" {
		t.Errorf("unexpected fullUrl %s", b.Entry[1].FullURL)
	}
	if b.Total != nil {
		t.Error("expected no total on a collection bundle")
	}
}

func TestNewCollectionBundle_Deterministic(t *testing.T) {
	p := &Patient{ResourceType: "Patient", ID: "p1"}
	a, _ := NewCollectionBundle("x", "", p)
	b, _ := NewCollectionBundle("x", "", p)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("expected identical bundles, got\n%s\n%s", ja, jb)
	}
}

func TestNewSearchBundle(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"resourceType":"RiskAssessment","id":"a1"}`),
		json.RawMessage(`{"resourceType":"RiskAssessment"}`),
	}
	b := NewSearchBundle("https://api.test/fhir", raws, 7, []BundleLink{{Relation: "self", URL: "/fhir/RiskAssessment"}})
	if b.Type != "searchset" {
		t.Errorf("expected searchset, got %s", b.Type)
	}
	if b.Total == nil || *b.Total != 7 {
		t.Errorf("expected total 7, got %v", b.Total)
	}
	if b.Entry[0].FullURL != "https://api.test/fhir/RiskAssessment/a1" {
		t.Errorf("unexpected fullUrl %s", b.Entry[0].FullURL)
	}
	if b.Entry[1].FullURL != "" {
		t.Errorf("expected empty fullUrl without id, got %s", b.Entry[1].FullURL)
	}
	if b.Entry[0].Search == nil || b.Entry[0].Search.Mode != "match" {
		t.Error("expected search mode match")
	}
}

func TestFullURL_WithoutBase(t *testing.T) {
	a := FullURL("", "Patient", "p1")
	if !strings.HasPrefix(a, "urn:uuid:") {
		t.Fatalf("expected urn:uuid, got %s", a)
	}
	if b := FullURL("", "Patient", "p1"); a != b {
		t.Errorf("expected stable urn, got %s and %s", a, b)
	}
	if c := FullURL("", "Patient", "p2"); a == c {
		t.Error("expected distinct urns for distinct resources")
	}
}

func TestBaseURL(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/fhir/RiskAssessment", nil)
	req.Host = "risk.example.org"
	req.Header.Set(echo.HeaderXForwardedProto, "https")
	c := e.NewContext(req, httptest.NewRecorder())

	if got := BaseURL(c); got != "https://risk.example.org/fhir" {
		t.Errorf("expected https://risk.example.org/fhir, got %s", got)
	}
}
