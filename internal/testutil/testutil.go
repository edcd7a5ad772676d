// Package testutil provides common test utilities and helpers for chatbot tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/api"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/dispatch"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/flow"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/twiliowhatsapp"
)

// TestTermURL is the term link placed in reply texts by test servers.
const TestTermURL = "https://example.com/static/termo"

// TestTemplateSid is the template content sid used by test servers.
const TestTemplateSid = "HX_test"

// TestingT is the subset of testing.T used by the assertion helpers,
// so the helpers themselves can be tested with a recording fake.
type TestingT interface {
	Helper()
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// TestServer bundles an API server with the in-memory fakes behind it,
// so tests can drive HTTP endpoints and assert on stored state.
type TestServer struct {
	Server  *api.Server
	Handler http.Handler
	Store   *store.InMemoryStore
	Client  *twiliowhatsapp.MockClient
	Trigger *dispatch.Trigger
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer(t *testing.T, opts ...api.Option) *TestServer {
	t.Helper()
	st := store.NewInMemoryStore()
	client := twiliowhatsapp.NewMockClient()
	svc := messaging.NewTwilioService(client)
	t.Cleanup(func() {
		if err := svc.Stop(); err != nil {
			t.Errorf("failed to stop messaging service: %v", err)
		}
	})

	engine := flow.NewEngine(st, svc, flow.NewFlow(TestTermURL, nil))
	trigger := dispatch.NewTrigger(st, svc, TestTemplateSid, "")
	server := api.NewServer(st, st, svc, engine, trigger, opts...)
	return &TestServer{
		Server:  server,
		Handler: server.Handler(),
		Store:   st,
		Client:  client,
		Trigger: trigger,
	}
}

// SeedContact inserts a contact with the given status and active
// automation, failing the test on error.
func SeedContact(t TestingT, st store.Store, phone, name string, status models.ContactStatus) *models.Contact {
	t.Helper()
	contact, err := st.UpsertContact(models.Contact{
		Phone:      phone,
		Name:       name,
		Status:     status,
		Automation: models.AutomationActive,
	})
	if err != nil {
		t.Fatalf("failed to seed contact %s: %v", phone, err)
	}
	return contact
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// AssertMessageCount validates the number of logged messages for a contact.
func AssertMessageCount(t TestingT, st store.Store, contactID string, expected int, context string) {
	t.Helper()
	messages, err := st.ListMessages(contactID)
	if err != nil {
		t.Fatalf("%s: failed to list messages: %v", context, err)
	}
	if len(messages) != expected {
		t.Errorf("%s: expected %d messages, got %d", context, expected, len(messages))
	}
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateJSONRequest creates an HTTP request carrying a raw JSON string,
// useful for malformed-payload cases.
func CreateJSONRequest(t TestingT, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateFormRequest creates a form-encoded HTTP request the way the
// provider webhooks deliver callbacks.
func CreateFormRequest(t TestingT, target string, form map[string]string) *http.Request {
	t.Helper()
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		t.Fatalf("failed to create form request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
