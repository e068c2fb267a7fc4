package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- fakes ---

type fakeAgentRepo struct {
	agents    map[string]*entity.Agent
	defaultID string
}

func newFakeAgentRepo(agents ...*entity.Agent) *fakeAgentRepo {
	r := &fakeAgentRepo{agents: map[string]*entity.Agent{}}
	for _, a := range agents {
		r.agents[a.ID] = a
		if a.IsDefault {
			r.defaultID = a.ID
		}
	}
	return r
}

func (r *fakeAgentRepo) FindByID(ctx context.Context, id string) (*entity.Agent, error) {
	if a, ok := r.agents[id]; ok {
		return a, nil
	}
	return nil, errors.NewNotFoundError("agent not found: " + id)
}

func (r *fakeAgentRepo) FindBySlug(ctx context.Context, slug string) (*entity.Agent, error) {
	for _, a := range r.agents {
		if a.Slug == slug {
			return a, nil
		}
	}
	return nil, errors.NewNotFoundError("agent not found: " + slug)
}

func (r *fakeAgentRepo) FindDefault(ctx context.Context) (*entity.Agent, error) {
	if a, ok := r.agents[r.defaultID]; ok {
		return a, nil
	}
	return nil, errors.NewNotFoundError("no default agent")
}

func (r *fakeAgentRepo) FindAll(ctx context.Context) ([]entity.Agent, error) {
	out := make([]entity.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeAgentRepo) Create(ctx context.Context, agent *entity.Agent) error {
	for _, a := range r.agents {
		if a.Slug == agent.Slug {
			return errors.NewAlreadyExistsError("agent slug already exists: " + agent.Slug)
		}
	}
	agent.ID = "agent-" + agent.Slug
	r.agents[agent.ID] = agent
	return nil
}

func (r *fakeAgentRepo) Update(ctx context.Context, id string, patch map[string]any) (*entity.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, errors.NewNotFoundError("agent not found: " + id)
	}
	if name, ok := patch["name"].(string); ok {
		a.Name = name
	}
	return a, nil
}

func (r *fakeAgentRepo) Delete(ctx context.Context, id string) error {
	a, ok := r.agents[id]
	if !ok {
		return errors.NewNotFoundError("agent not found: " + id)
	}
	if a.IsDefault {
		return errors.NewValidationError("cannot delete the default agent")
	}
	delete(r.agents, id)
	return nil
}

type fakeConvRepo struct {
	convs map[string]*entity.Conversation
}

func newFakeConvRepo(convs ...*entity.Conversation) *fakeConvRepo {
	r := &fakeConvRepo{convs: map[string]*entity.Conversation{}}
	for _, c := range convs {
		r.convs[c.ID] = c
	}
	return r
}

func (r *fakeConvRepo) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	if c, ok := r.convs[id]; ok {
		return c, nil
	}
	return nil, errors.NewNotFoundError("conversation not found: " + id)
}

func (r *fakeConvRepo) FindAll(ctx context.Context, status entity.ConversationStatus, limit, skip int) ([]entity.Conversation, error) {
	var out []entity.Conversation
	for _, c := range r.convs {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) Create(ctx context.Context, conv *entity.Conversation) error {
	conv.ID = "conv-new"
	r.convs[conv.ID] = conv
	return nil
}

func (r *fakeConvRepo) UpdateMeta(ctx context.Context, id string, patch map[string]any) (*entity.Conversation, error) {
	c, ok := r.convs[id]
	if !ok {
		return nil, errors.NewNotFoundError("conversation not found: " + id)
	}
	if title, ok := patch["title"].(string); ok {
		c.Title = title
	}
	return c, nil
}

func (r *fakeConvRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.convs[id]; !ok {
		return errors.NewNotFoundError("conversation not found: " + id)
	}
	delete(r.convs, id)
	return nil
}

func (r *fakeConvRepo) AppendMessage(ctx context.Context, id string, msg entity.Message, tokenDelta, toolCallDelta int) error {
	return nil
}

func (r *fakeConvRepo) RecentMessages(ctx context.Context, id string, max int) ([]entity.Message, error) {
	return nil, nil
}

func (r *fakeConvRepo) UnprocessedMessages(ctx context.Context, id string) ([]entity.Message, error) {
	return nil, nil
}

func (r *fakeConvRepo) MarkMessagesProcessed(ctx context.Context, id string, ids []string) error {
	return nil
}

type fakeProcessor struct {
	chunks []llm.Chunk
}

func (p *fakeProcessor) ProcessMessage(ctx context.Context, conversationID, userText string) <-chan llm.Chunk {
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for _, c := range p.chunks {
			out <- c
		}
	}()
	return out
}

type fakeMemoryStore struct {
	memories     map[string]*entity.Memory
	lastFilters  map[string]any
	lastQuery    string
	createdConf  *float64
	createdSrc   entity.MemorySource
	searchResult []entity.Memory
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{memories: map[string]*entity.Memory{}}
}

func (s *fakeMemoryStore) Create(ctx context.Context, content string, contentType entity.ContentType, categories []string, importance float64, confidence *float64, source entity.MemorySource) (string, error) {
	s.createdConf = confidence
	s.createdSrc = source
	id := "mem-1"
	s.memories[id] = &entity.Memory{
		ID:          id,
		Content:     content,
		ContentType: contentType,
		Categories:  categories,
		Importance:  importance,
		Confidence:  confidence,
		Status:      entity.MemoryActive,
		Source:      source,
	}
	return id, nil
}

func (s *fakeMemoryStore) Get(ctx context.Context, id string) (*entity.Memory, error) {
	if m, ok := s.memories[id]; ok {
		return m, nil
	}
	return nil, errors.NewNotFoundError("memory not found: " + id)
}

func (s *fakeMemoryStore) List(ctx context.Context, contentType entity.ContentType, limit, skip int) ([]entity.Memory, error) {
	var out []entity.Memory
	for _, m := range s.memories {
		out = append(out, *m)
	}
	return out, nil
}

func (s *fakeMemoryStore) Update(ctx context.Context, id string, patch map[string]any) error {
	if _, ok := s.memories[id]; !ok {
		return errors.NewNotFoundError("memory not found: " + id)
	}
	return nil
}

func (s *fakeMemoryStore) SoftDelete(ctx context.Context, id string) error {
	if _, ok := s.memories[id]; !ok {
		return errors.NewNotFoundError("memory not found: " + id)
	}
	s.memories[id].Status = entity.MemoryDeleted
	return nil
}

func (s *fakeMemoryStore) Search(ctx context.Context, query string, limit int, filters map[string]any) ([]entity.Memory, error) {
	s.lastQuery = query
	s.lastFilters = filters
	return s.searchResult, nil
}

// --- helpers ---

func defaultAgent() *entity.Agent {
	return &entity.Agent{
		ID:        "agent-1",
		Slug:      "aria",
		Name:      "Aria",
		IsDefault: true,
		LLM:       entity.LLMTriple{Backend: "ollama", Model: "llama3", Temperature: 0.7},
		Memory:    entity.DefaultMemorySettings(),
	}
}

func activeConversation() *entity.Conversation {
	return &entity.Conversation{
		ID:      "conv-1",
		AgentID: "agent-1",
		Title:   "Chat",
		Status:  entity.ConversationActive,
	}
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- agent handler ---

func agentRouter(repo *fakeAgentRepo) *gin.Engine {
	h := NewAgentHandler(repo, zap.NewNop())
	r := gin.New()
	r.GET("/agents", h.List)
	r.POST("/agents", h.Create)
	r.GET("/agents/:id", h.Get)
	r.PUT("/agents/:id", h.Update)
	r.DELETE("/agents/:id", h.Delete)
	return r
}

func TestAgentHandler_CreateAndConflict(t *testing.T) {
	repo := newFakeAgentRepo(defaultAgent())
	r := agentRouter(repo)

	body := `{"slug": "helper", "name": "Helper", "system_prompt": "You help.", "llm": {"backend": "ollama", "model": "llama3"}}`
	w := doJSON(r, http.MethodPost, "/agents", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var created entity.Agent
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.IsDefault {
		t.Error("created agent must not be default")
	}
	if created.Memory.ShortTermMessages != 20 {
		t.Errorf("memory defaults not applied: %+v", created.Memory)
	}

	w = doJSON(r, http.MethodPost, "/agents", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate slug status = %d", w.Code)
	}
}

func TestAgentHandler_GetUnknownIs404(t *testing.T) {
	r := agentRouter(newFakeAgentRepo())
	w := doJSON(r, http.MethodGet, "/agents/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAgentHandler_EmptyUpdateRejected(t *testing.T) {
	r := agentRouter(newFakeAgentRepo(defaultAgent()))
	w := doJSON(r, http.MethodPut, "/agents/agent-1", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAgentHandler_DefaultAgentUndeletable(t *testing.T) {
	repo := newFakeAgentRepo(defaultAgent())
	r := agentRouter(repo)

	w := doJSON(r, http.MethodDelete, "/agents/agent-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if _, ok := repo.agents["agent-1"]; !ok {
		t.Error("default agent was deleted")
	}
}

// --- conversation handler ---

func conversationRouter(convs *fakeConvRepo, agents *fakeAgentRepo, proc MessageProcessor) *gin.Engine {
	h := NewConversationHandler(convs, agents, proc, zap.NewNop())
	r := gin.New()
	r.GET("/conversations", h.List)
	r.POST("/conversations", h.Create)
	r.GET("/conversations/:id", h.Get)
	r.PATCH("/conversations/:id", h.Update)
	r.DELETE("/conversations/:id", h.Delete)
	r.POST("/conversations/:id/messages", h.SendMessage)
	return r
}

func TestConversationHandler_CreateSnapshotsDefaults(t *testing.T) {
	r := conversationRouter(newFakeConvRepo(), newFakeAgentRepo(defaultAgent()), &fakeProcessor{})

	w := doJSON(r, http.MethodPost, "/conversations", `{}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var conv entity.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conv.Title != "New Conversation" {
		t.Errorf("title = %q", conv.Title)
	}
	if conv.AgentID != "agent-1" || conv.LLM.Backend != "ollama" || conv.LLM.Model != "llama3" {
		t.Errorf("snapshot = %+v", conv)
	}
}

func TestConversationHandler_CreateUnknownAgentIs404(t *testing.T) {
	r := conversationRouter(newFakeConvRepo(), newFakeAgentRepo(defaultAgent()), &fakeProcessor{})
	w := doJSON(r, http.MethodPost, "/conversations", `{"agent_slug": "nope"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestConversationHandler_SendMessageSSE(t *testing.T) {
	proc := &fakeProcessor{chunks: []llm.Chunk{
		llm.TextChunk("Hello"),
		llm.TextChunk(" there"),
		llm.DoneChunk(llm.Usage{InputTokens: 3, OutputTokens: 2}),
	}}
	r := conversationRouter(newFakeConvRepo(activeConversation()), newFakeAgentRepo(defaultAgent()), proc)

	w := doJSON(r, http.MethodPost, "/conversations/conv-1/messages", `{"content": "hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: text\n") || !strings.Contains(body, "event: done\n") {
		t.Errorf("missing frames:\n%s", body)
	}
	if !strings.Contains(body, `"text":"Hello"`) {
		t.Errorf("missing text payload:\n%s", body)
	}
	if strings.Index(body, "event: done") < strings.Index(body, "event: text") {
		t.Error("terminal frame arrived before text")
	}
}

func TestConversationHandler_SendMessageCollected(t *testing.T) {
	proc := &fakeProcessor{chunks: []llm.Chunk{
		llm.TextChunk("Hello"),
		llm.ToolCallChunk(entity.ToolCall{ID: "tc-1", Name: "shell", Arguments: map[string]any{"command": "ls"}}),
		llm.TextChunk(" there"),
		llm.DoneChunk(llm.Usage{InputTokens: 3, OutputTokens: 2}),
	}}
	r := conversationRouter(newFakeConvRepo(activeConversation()), newFakeAgentRepo(defaultAgent()), proc)

	w := doJSON(r, http.MethodPost, "/conversations/conv-1/messages", `{"content": "hi", "stream": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Content   string            `json:"content"`
		ToolCalls []entity.ToolCall `json:"tool_calls"`
		Usage     llm.Usage         `json:"usage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != "Hello there" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "shell" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage.InputTokens != 3 || resp.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestConversationHandler_SendMessageCollectedNoToolCalls(t *testing.T) {
	proc := &fakeProcessor{chunks: []llm.Chunk{
		llm.TextChunk("Hello"),
		llm.DoneChunk(llm.Usage{InputTokens: 3, OutputTokens: 2}),
	}}
	r := conversationRouter(newFakeConvRepo(activeConversation()), newFakeAgentRepo(defaultAgent()), proc)

	w := doJSON(r, http.MethodPost, "/conversations/conv-1/messages", `{"content": "hi", "stream": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// tool_calls is an empty array, never null.
	if !strings.Contains(w.Body.String(), `"tool_calls":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestConversationHandler_SendMessageUnknownConversation(t *testing.T) {
	r := conversationRouter(newFakeConvRepo(), newFakeAgentRepo(defaultAgent()), &fakeProcessor{})
	w := doJSON(r, http.MethodPost, "/conversations/nope/messages", `{"content": "hi"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

// --- memory handler ---

func memoryRouter(store *fakeMemoryStore) *gin.Engine {
	h := NewMemoryHandler(store, newFakeConvRepo(), newFakeAgentRepo(), nil, zap.NewNop())
	r := gin.New()
	r.GET("/memories", h.List)
	r.POST("/memories", h.Create)
	r.POST("/memories/search", h.Search)
	r.GET("/memories/:id", h.Get)
	r.PATCH("/memories/:id", h.Update)
	r.DELETE("/memories/:id", h.Delete)
	return r
}

func TestMemoryHandler_ManualCreate(t *testing.T) {
	store := newFakeMemoryStore()
	r := memoryRouter(store)

	w := doJSON(r, http.MethodPost, "/memories", `{"content": "Likes Go", "content_type": "preference", "categories": ["coding"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if store.createdConf == nil || *store.createdConf != 1.0 {
		t.Errorf("confidence = %v", store.createdConf)
	}
	if store.createdSrc.Type != "manual" {
		t.Errorf("source = %+v", store.createdSrc)
	}
}

func TestMemoryHandler_InvalidContentType(t *testing.T) {
	r := memoryRouter(newFakeMemoryStore())
	w := doJSON(r, http.MethodPost, "/memories", `{"content": "x", "content_type": "weird"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestMemoryHandler_SearchBuildsFilters(t *testing.T) {
	store := newFakeMemoryStore()
	store.searchResult = []entity.Memory{{ID: "mem-1", Content: "Likes Go", Score: 0.03}}
	r := memoryRouter(store)

	w := doJSON(r, http.MethodPost, "/memories/search", `{"query": "go", "content_type": "preference", "categories": ["coding", "tools"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if store.lastQuery != "go" {
		t.Errorf("query = %q", store.lastQuery)
	}
	if store.lastFilters["content_type"] != "preference" {
		t.Errorf("filters = %+v", store.lastFilters)
	}
	in, ok := store.lastFilters["categories"].(map[string]any)
	if !ok || len(in["$in"].([]string)) != 2 {
		t.Errorf("category filter = %+v", store.lastFilters["categories"])
	}
}

func TestMemoryHandler_SoftDelete(t *testing.T) {
	store := newFakeMemoryStore()
	conf := 1.0
	store.memories["mem-1"] = &entity.Memory{ID: "mem-1", Content: "x", Confidence: &conf, Status: entity.MemoryActive}
	r := memoryRouter(store)

	w := doJSON(r, http.MethodDelete, "/memories/mem-1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if store.memories["mem-1"].Status != entity.MemoryDeleted {
		t.Error("memory not soft-deleted")
	}

	w = doJSON(r, http.MethodDelete, "/memories/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

// --- health handler ---

type fakePinger struct{ err error }

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeProber struct{}

func (p *fakeProber) Backends() []string { return []string{"ollama", "anthropic"} }

func (p *fakeProber) IsAvailable(ctx context.Context, backend string) (bool, string) {
	if backend == "ollama" {
		return true, "reachable"
	}
	return false, "anthropic.api_key not configured"
}

func healthRouter(db Pinger) *gin.Engine {
	h := NewHealthHandler(db, &fakeProber{}, zap.NewNop())
	r := gin.New()
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/health/llm", h.HealthLLM)
	return r
}

func TestHealthHandler_Healthy(t *testing.T) {
	w := doJSON(healthRouter(&fakePinger{}), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "healthy" || resp["database"] != "connected" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthHandler_UnhealthyDatabase(t *testing.T) {
	w := doJSON(healthRouter(&fakePinger{err: context.DeadlineExceeded}), http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"unhealthy"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHealthHandler_LLMBackends(t *testing.T) {
	w := doJSON(healthRouter(&fakePinger{}), http.MethodGet, "/health/llm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Backends map[string]struct {
			Available bool   `json:"available"`
			Reason    string `json:"reason"`
		} `json:"backends"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Backends["ollama"].Available || resp.Backends["anthropic"].Available {
		t.Errorf("backends = %+v", resp.Backends)
	}
	if resp.Backends["anthropic"].Reason != "anthropic.api_key not configured" {
		t.Errorf("reason = %q", resp.Backends["anthropic"].Reason)
	}
}
