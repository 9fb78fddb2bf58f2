package controllers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"matcha-back/controllers"
	"matcha-back/models"
	"matcha-back/routes"
	"matcha-back/services"
	"matcha-back/store"
)

type fixedResponder struct {
	reply services.TurnReply
	err   error
}

func (r *fixedResponder) SendTurn(context.Context, []models.Message, string) (services.TurnReply, error) {
	return r.reply, r.err
}

func newTestServer(t *testing.T, mem *store.Memory, responder services.Responder) (*httptest.Server, *services.Engine, *services.ConversationController) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	sessions := services.NewSessionStore(mem, logger)
	loader := services.NewMessageLoader(mem, logger)
	controller := services.NewConversationController(services.NewChatState(), sessions, loader, responder, services.LocaleEN, logger)
	reconciler := services.NewSessionReconciler(controller, logger)
	categories := services.NewCategorizationManager(sessions)
	identity := &services.StaticIdentityProvider{UserID: "u1"}
	engine := services.NewEngine(sessions, controller, reconciler, identity, logger)
	engine.SwitchIdentity("u1")

	chat := controllers.NewChatController(engine, controller, categories, logger)
	server := httptest.NewServer(routes.SetupRouter(chat, logger))
	t.Cleanup(server.Close)
	return server, engine, controller
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var parsed map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, parsed
}

func TestHandleChatRoundTrip(t *testing.T) {
	mem := store.NewMemory()
	server, _, controller := newTestServer(t, mem, &fixedResponder{reply: services.TurnReply{Text: "やあ！"}})

	resp, body := postJSON(t, server.URL+"/chat", `{"message": "こんにちは"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["reply"] != "やあ！" {
		t.Fatalf("reply = %v", body["reply"])
	}
	if body["chat_id"] == "" || body["chat_id"] != controller.State().ActiveID() {
		t.Fatalf("chat_id = %v, want the adopted chat", body["chat_id"])
	}
}

func TestHandleChatRejectsMissingMessage(t *testing.T) {
	server, _, _ := newTestServer(t, store.NewMemory(), &fixedResponder{})

	resp, _ := postJSON(t, server.URL+"/chat", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleChatFailureStillReturnsApology(t *testing.T) {
	mem := store.NewMemory()
	server, _, _ := newTestServer(t, mem, &fixedResponder{err: context.DeadlineExceeded})

	resp, body := postJSON(t, server.URL+"/chat", `{"message": "hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (turn failures become an apology reply)", resp.StatusCode)
	}
	if body["reply"] != "Sorry, an error occurred." {
		t.Fatalf("reply = %v, want the apology text", body["reply"])
	}
}

func TestGetSessionsReturnsPartition(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	if _, err := mem.CreateChat(ctx, store.ChatRecord{UserID: "u1", Title: "one"}); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	server, _, _ := newTestServer(t, mem, &fixedResponder{})

	resp, err := http.Get(server.URL + "/chat/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Sessions models.SessionPartition `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sessions.Ungrouped) != 1 || body.Sessions.Ungrouped[0].Title != "one" {
		t.Fatalf("partition = %+v, want one ungrouped chat", body.Sessions)
	}
}

func TestRenameChatRejectsBlankTitle(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	id, err := mem.CreateChat(ctx, store.ChatRecord{UserID: "u1", Title: "one"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	server, _, _ := newTestServer(t, mem, &fixedResponder{})

	resp, _ := postJSON(t, server.URL+"/chat/sessions/rename", `{"chat_id": "`+id+`", "title": "   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGroupChatUnknownChatNotFound(t *testing.T) {
	server, _, _ := newTestServer(t, store.NewMemory(), &fixedResponder{})

	resp, _ := postJSON(t, server.URL+"/chat/sessions/group", `{"chat_id": "missing", "group_name": "work"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteActiveChatResetsSelection(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	id, err := mem.CreateChat(ctx, store.ChatRecord{UserID: "u1", Title: "one"})
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	server, _, controller := newTestServer(t, mem, &fixedResponder{})

	if controller.State().ActiveID() != id {
		t.Fatal("precondition: the only chat auto-selected")
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/chat/sessions/"+id, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if controller.State().ActiveID() != "" {
		t.Fatalf("active = %q after deleting the active chat, want cleared", controller.State().ActiveID())
	}
}
