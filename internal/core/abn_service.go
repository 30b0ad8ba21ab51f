package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DefaultABNLookupURL is the government registry's JSON endpoint. The
// response may arrive JSONP-wrapped depending on how the registry feels that
// day; decodeRegistryBody handles both.
const DefaultABNLookupURL = "https://abr.business.gov.au/json/AbnDetails.aspx"

var abnPattern = regexp.MustCompile(`^[0-9]{11}$`)

// BusinessRecord is the flattened view of a registry entry.
type BusinessRecord struct {
	ABN        string `json:"abn"`
	EntityName string `json:"entityName"`
	Postcode   string `json:"postcode"`
	State      string `json:"state"`
	Status     string `json:"status"`
}

// ABNService proxies lookups to the business registry.
type ABNService struct {
	guid    string
	baseURL string
	client  *http.Client
}

// NewABNService accepts an empty guid; lookups then return the
// misconfiguration error. A nil client gets a sensible timeout.
func NewABNService(guid, baseURL string, client *http.Client) *ABNService {
	if baseURL == "" {
		baseURL = DefaultABNLookupURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ABNService{guid: guid, baseURL: baseURL, client: client}
}

// Lookup validates the ABN, queries the registry once and normalizes the
// heterogeneous payload into a flat record.
func (s *ABNService) Lookup(ctx context.Context, rawABN string) (*BusinessRecord, error) {
	abn := stripWhitespace(rawABN)
	if !abnPattern.MatchString(abn) {
		return nil, NewInvalidInput("abn must be exactly 11 digits")
	}
	if s.guid == "" {
		return nil, NewMisconfigured("ABN lookup service is not configured")
	}

	query := url.Values{}
	query.Set("abn", abn)
	query.Set("guid", s.guid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, NewUpstream("business registry lookup failed", err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("ABN registry request failed: %v", err)
		return nil, NewUpstream("business registry lookup failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("ABN registry returned status %d", resp.StatusCode)
		return nil, NewUpstream("business registry lookup failed", fmt.Errorf("registry status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewUpstream("business registry lookup failed", err)
	}

	payload, err := decodeRegistryBody(body)
	if err != nil {
		log.Printf("ABN registry body failed to parse: %v", err)
		return nil, NewUpstream("business registry returned an unreadable response", err)
	}

	matched := stringField(payload, "Abn")
	if matched == "" {
		return nil, NewNotFound("no business record matched that ABN")
	}

	return &BusinessRecord{
		ABN:        matched,
		EntityName: resolveField(payload, entityNameAccessors, "Business"),
		Postcode:   resolveField(payload, postcodeAccessors, ""),
		State:      resolveField(payload, stateAccessors, ""),
		Status:     stringField(payload, "AbnStatus"),
	}, nil
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// decodeRegistryBody handles both raw JSON and JSONP callback wrapping. An
// empty body decodes to an empty object; the caller turns that into NotFound.
func decodeRegistryBody(body []byte) (map[string]any, error) {
	text := strings.TrimSpace(string(body))
	if !strings.HasPrefix(text, "{") {
		open := strings.Index(text, "(")
		end := strings.LastIndex(text, ")")
		if open >= 0 && end > open {
			text = strings.TrimSpace(text[open+1 : end])
		}
	}
	if text == "" {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// fieldAccessor tries one upstream shape; the chains below keep the
// precedence order auditable and testable in isolation.
type fieldAccessor func(payload map[string]any) string

var entityNameAccessors = []fieldAccessor{
	directString("EntityName"),
	firstBusinessName,
	nestedOrganisationName("MainName"),
	nestedOrganisationName("MainTradingName"),
}

var postcodeAccessors = []fieldAccessor{
	directString("AddressPostcode"),
	directString("Postcode"),
}

var stateAccessors = []fieldAccessor{
	directString("AddressState"),
	directString("State"),
}

func resolveField(payload map[string]any, chain []fieldAccessor, fallback string) string {
	for _, accessor := range chain {
		if v := accessor(payload); v != "" {
			return v
		}
	}
	return fallback
}

func directString(key string) fieldAccessor {
	return func(payload map[string]any) string {
		return stringField(payload, key)
	}
}

// firstBusinessName reads BusinessName[0], which the registry serves either
// as an object carrying organisationName or as a bare string.
func firstBusinessName(payload map[string]any) string {
	list, ok := payload["BusinessName"].([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	switch first := list[0].(type) {
	case map[string]any:
		return stringField(first, "organisationName")
	case string:
		return strings.TrimSpace(first)
	}
	return ""
}

func nestedOrganisationName(key string) fieldAccessor {
	return func(payload map[string]any) string {
		nested, ok := payload[key].(map[string]any)
		if !ok {
			return ""
		}
		return stringField(nested, "organisationName")
	}
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return strings.TrimSpace(v)
}
