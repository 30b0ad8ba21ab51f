package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redtape.au/redtape/internal/core"
	"redtape.au/redtape/internal/store"
)

const testSecret = "test-secret"

type fixture struct {
	router   http.Handler
	mock     *core.MockCompletion
	registry *httptest.Server
}

// newFixture wires the whole API against a scripted completion client and a
// fake ABN registry, matching the production wiring in cmd/server.
func newFixture(t *testing.T, registryBody string) *fixture {
	t.Helper()

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, registryBody)
	}))
	t.Cleanup(registry.Close)

	mock := &core.MockCompletion{Result: core.CompletionResult{Text: "hello there"}}
	chat := core.NewChatService(mock)
	abn := core.NewABNService("test-guid", registry.URL, nil)
	flow := core.NewFlowService(store.NewSessionStore(), chat)

	return &fixture{
		router:   NewRouter(NewAPIHandler(abn, chat, flow, testSecret)),
		mock:     mock,
		registry: registry,
	}
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, `{}`)
	rec := f.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestABNLookupEndpoint(t *testing.T) {
	f := newFixture(t, `callback({"Abn":"51824753556","EntityName":"EXAMPLE PTY LTD","AbnStatus":"Active","AddressState":"NSW","AddressPostcode":"2000"})`)

	rec := f.do(t, http.MethodPost, "/api/abn", "", map[string]string{"abn": "51 824 753 556"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	record := decodeBody[core.BusinessRecord](t, rec)
	assert.Equal(t, "51824753556", record.ABN)
	assert.Equal(t, "EXAMPLE PTY LTD", record.EntityName)
	assert.Equal(t, "NSW", record.State)
	assert.Equal(t, "2000", record.Postcode)
	assert.Equal(t, "Active", record.Status)
}

func TestABNLookupEndpointRejectsBadInput(t *testing.T) {
	f := newFixture(t, `{}`)

	rec := f.do(t, http.MethodPost, "/api/abn", "", map[string]string{"abn": "not-an-abn"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.NotEmpty(t, body["error"])
}

func TestABNLookupEndpointNotRegistered(t *testing.T) {
	f := newFixture(t, `callback({"Message":"Search text is not a valid ABN or ACN"})`)

	rec := f.do(t, http.MethodPost, "/api/abn", "", map[string]string{"abn": "51824753556"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpointEnvelope(t *testing.T) {
	f := newFixture(t, `{}`)
	f.mock.Result = core.CompletionResult{
		Text:     "You should register for GST.",
		ToolArgs: []byte(`{"showForm":"abn","citations":[{"title":"ATO: GST registration","url":"https://www.ato.gov.au/gst"}]}`),
	}

	rec := f.do(t, http.MethodPost, "/api/chat", "", ChatRequest{
		Messages: []core.IncomingMessage{{Role: "user", Content: "Do I need GST?"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[ChatResponse](t, rec)
	require.NotNil(t, resp.Message)
	assert.Equal(t, "You should register for GST.", resp.Message.Content)
	assert.Equal(t, store.FormABN, resp.Message.ShowForm)
	require.NotNil(t, resp.Message.Metadata)
	require.Len(t, resp.Message.Metadata.Citations, 1)
	assert.Equal(t, "ATO: GST registration", resp.Message.Metadata.Citations[0].Title)
}

func TestChatEndpointWithoutClientIs500(t *testing.T) {
	f := newFixture(t, `{}`)
	chat := core.NewChatService(nil)
	f.router = NewRouter(NewAPIHandler(
		core.NewABNService("test-guid", f.registry.URL, nil),
		chat,
		core.NewFlowService(store.NewSessionStore(), chat),
		testSecret,
	))

	rec := f.do(t, http.MethodPost, "/api/chat", "", ChatRequest{
		Messages: []core.IncomingMessage{{Role: "user", Content: "hi"}},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.NotEmpty(t, body["error"])
}

func TestSessionRoutesRequireAuth(t *testing.T) {
	f := newFixture(t, `{}`)

	rec := f.do(t, http.MethodPost, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/sessions", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "invalid token", body["error"])
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, `{}`)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/sessions", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decodeBody[store.Session](t, rec)
	require.NotEmpty(t, sess.ID)
	base := "/api/sessions/" + sess.ID

	// Chat round.
	f.mock.Result = core.CompletionResult{Text: "Tell me more about your situation."}
	rec = f.do(t, http.MethodPost, base+"/messages", token, PostMessageRequest{Content: "I'm starting a business"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg := decodeBody[store.ChatMessage](t, rec)
	assert.Equal(t, store.RoleAssistant, msg.Role)
	assert.Equal(t, "Tell me more about your situation.", msg.Content)

	rec = f.do(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess = decodeBody[store.Session](t, rec)
	assert.Len(t, sess.Messages, 2)

	// Reset clears the chat but not the session.
	rec = f.do(t, http.MethodPost, base+"/reset", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess = decodeBody[store.Session](t, rec)
	assert.Empty(t, sess.Messages)

	// Delete.
	rec = f.do(t, http.MethodDelete, base, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsAreSubjectScoped(t *testing.T) {
	f := newFixture(t, `{}`)

	rec := f.do(t, http.MethodPost, "/api/sessions", signToken(t, "user-1"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.Session](t, rec)

	rec = f.do(t, http.MethodGet, "/api/sessions/"+sess.ID, signToken(t, "user-2"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another subject's session looks like it does not exist")
}

func TestFormDirectiveAndSubmission(t *testing.T) {
	f := newFixture(t, `{}`)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/sessions", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.Session](t, rec)
	base := "/api/sessions/" + sess.ID

	f.mock.Result = core.CompletionResult{
		Text:     "What does your business look like?",
		ToolArgs: []byte(`{"showForm":"businessDetails"}`),
	}
	rec = f.do(t, http.MethodPost, base+"/messages", token, PostMessageRequest{Content: "I run a cafe"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msg := decodeBody[store.ChatMessage](t, rec)
	assert.Equal(t, store.FormBusinessDetails, msg.ShowForm)

	f.mock.Result = core.CompletionResult{Text: "Thanks, updating your checklist."}
	rec = f.do(t, http.MethodPost, base+"/forms", token, core.FormSubmission{
		Form:   store.FormBusinessDetails,
		Fields: map[string]any{"industry": "hospitality", "employees": 3},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, base+"/portfolio", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeBody[store.State](t, rec)
	require.NotNil(t, state.Portfolio.Business)
	assert.Equal(t, "hospitality", state.Portfolio.Business.Industry)
	assert.Equal(t, 3, state.Portfolio.Business.Employees)

	// Resubmitting is a conflict.
	rec = f.do(t, http.MethodPost, base+"/forms", token, core.FormSubmission{
		Form:   store.FormBusinessDetails,
		Fields: map[string]any{"industry": "mining"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitFormWithoutDirective(t *testing.T) {
	f := newFixture(t, `{}`)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/sessions", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.Session](t, rec)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/forms", token, core.FormSubmission{
		Form:   store.FormCarer,
		Fields: map[string]any{"hoursPerWeek": 25},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChecklistEndpoints(t *testing.T) {
	f := newFixture(t, `{}`)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/sessions", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.Session](t, rec)
	base := "/api/sessions/" + sess.ID

	rec = f.do(t, http.MethodPost, base+"/checklist", token, store.NewChecklistItem{
		Title:    "Register for GST",
		Priority: store.PriorityHigh,
		Category: store.CategoryTax,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	state := decodeBody[store.State](t, rec)
	require.Len(t, state.Checklist, 1)
	item := state.Checklist[0]
	assert.False(t, item.Completed)

	rec = f.do(t, http.MethodPost, base+"/checklist/"+item.ID+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state = decodeBody[store.State](t, rec)
	assert.True(t, state.Checklist[0].Completed)

	rec = f.do(t, http.MethodDelete, base+"/checklist/"+item.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state = decodeBody[store.State](t, rec)
	assert.Empty(t, state.Checklist)
}

func TestChecklistTitleRequired(t *testing.T) {
	f := newFixture(t, `{}`)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/sessions", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.Session](t, rec)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/checklist", token, store.NewChecklistItem{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchActionEndpoint(t *testing.T) {
	f := newFixture(t, `{}`)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/sessions", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[store.Session](t, rec)

	rec = f.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/portfolio/actions", token, store.Action{
		Type:     store.ActionSetUserType,
		UserType: store.UserTypeBusiness,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decodeBody[store.State](t, rec)
	assert.Equal(t, store.UserTypeBusiness, state.Portfolio.UserType)
}
