package fhir

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewCollectionBundle wraps resources in a collection Bundle. Entries keep
// the given order and get absolute fullUrls under base (see FullURL). No
// timestamp is set so identical input gives an identical bundle.
func NewCollectionBundle(id, base string, resources ...interface{}) (*Bundle, error) {
	entries := make([]BundleEntry, 0, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode bundle entry %d: %w", i, err)
		}
		entries = append(entries, BundleEntry{
			FullURL:  entryFullURL(base, raw),
			Resource: raw,
		})
	}
	return &Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         "collection",
		Entry:        entries,
	}, nil
}

// NewSearchBundle creates a searchset Bundle from already encoded resources.
func NewSearchBundle(base string, resources []json.RawMessage, total int, links []BundleLink) *Bundle {
	entries := make([]BundleEntry, len(resources))
	for i, raw := range resources {
		entries[i] = BundleEntry{
			FullURL:  entryFullURL(base, raw),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Link:         links,
		Entry:        entries,
	}
}

func entryFullURL(base string, raw json.RawMessage) string {
	var head struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.ResourceType == "" || head.ID == "" {
		return ""
	}
	return FullURL(base, head.ResourceType, head.ID)
}

// FullURL is the absolute entry URL for a resource: base/Type/id, or a
// name-based urn:uuid when there is no server base (offline output).
func FullURL(base, resourceType, id string) string {
	ref := FormatReference(resourceType, id)
	if base == "" {
		return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(ref)).String()
	}
	return strings.TrimRight(base, "/") + "/" + ref
}

// BaseURL is the FHIR service base as seen by the client.
func BaseURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host + "/fhir"
}
