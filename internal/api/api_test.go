package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/audit"
	"github.com/lalith-99/disruptionhub/internal/auth"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/notify"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"github.com/lalith-99/disruptionhub/internal/repository/memory"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type switchMailer struct{ down bool }

func (m *switchMailer) Send(context.Context, notify.Mail) bool { return !m.down }

type testServer struct {
	router    *gin.Engine
	authority *auth.Authority
	accounts  *memory.AccountStore
	mailer    *switchMailer
	alert     *models.Alert
	alice     *models.Account
	bob       *models.Account
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := zap.NewNop()

	accounts := memory.NewAccountStore()
	alerts := memory.NewAlertStore()
	items := memory.NewActionItemStore()
	notifications := memory.NewNotificationStore()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	alice := &models.Account{
		ID: uuid.New(), Email: "alice@ops.test", Role: models.RoleUser, Status: models.AccountActive,
		PasswordHash: string(hash),
		Collaborators: []models.Collaborator{
			{Email: "desk@ops.test", Role: models.RoleManager, Status: models.CollaboratorActive},
		},
	}
	bob := &models.Account{ID: uuid.New(), Email: "bob@ops.test", Role: models.RoleUser, Status: models.AccountActive}
	for _, a := range []*models.Account{alice, bob} {
		if err := accounts.Save(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	alert := &models.Alert{ID: uuid.New(), Title: "Airport closure", City: "Lisbon"}
	alerts.Put(alert)

	authority := auth.NewAuthority(accounts, auth.NewMemoryRevocationSet(time.Now), "api-test-secret", logger)
	svc := actionhub.NewService(items, alerts, accounts, audit.NewZapSink(logger), realtime.NewHub(logger), logger)
	mailer := &switchMailer{}
	dispatcher := notify.NewDispatcher(svc, accounts, alerts, notifications, mailer, "https://app.test", logger)

	router := NewRouter(RouterConfig{
		Authority:     authority,
		Service:       svc,
		Dispatcher:    dispatcher,
		Accounts:      accounts,
		Notifications: notifications,
		Logger:        logger,
	})
	return &testServer{router: router, authority: authority, accounts: accounts, mailer: mailer, alert: alert, alice: alice, bob: bob}
}

func (s *testServer) token(t *testing.T, a *models.Account, premium bool) string {
	t.Helper()
	tok, err := s.authority.Issue(&models.Identity{AccountID: a.ID, Email: a.Email, Role: a.Role, Premium: premium}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func engagement(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	eng, ok := body["engagement"].(map[string]any)
	if !ok {
		t.Fatalf("response has no engagement: %v", body)
	}
	return eng
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/v1/health", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response %d %v", rec.Code, body)
	}
}

func TestHealthReportsDependencyOutage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterConfig{
		Authority:   auth.NewAuthority(memory.NewAccountStore(), auth.NewMemoryRevocationSet(time.Now), "s", zap.NewNop()),
		HealthCheck: func(context.Context) error { return errors.New("pool closed") },
		Logger:      zap.NewNop(),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/v1/me", "/v1/action-hub"} {
		if rec, _ := s.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestLoginLogout(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "alice@ops.test", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", rec.Code)
	}

	rec, body := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "alice@ops.test", "password": "correct-horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", rec.Code, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}

	if rec, _ := s.do(t, http.MethodGet, "/v1/me", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPost, "/v1/auth/logout", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodGet, "/v1/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestFollowCountsEndToEnd(t *testing.T) {
	s := newTestServer(t)
	aliceTok := s.token(t, s.alice, false)
	bobTok := s.token(t, s.bob, false)
	followPath := "/v1/alerts/" + s.alert.ID.String() + "/follow"

	rec, body := s.do(t, http.MethodPost, followPath, aliceTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alice follow: %d %v", rec.Code, body)
	}
	if n := engagement(t, body)["number_of_follows"]; n != float64(1) {
		t.Fatalf("expected 1 follower, got %v", n)
	}

	_, body = s.do(t, http.MethodPost, followPath, bobTok, nil)
	if n := engagement(t, body)["number_of_follows"]; n != float64(2) {
		t.Fatalf("expected 2 followers, got %v", n)
	}
	bobItem := body["item"].(map[string]any)
	if bobItem["alert"] != bobItem["alert_id"] {
		t.Errorf("alert and alert_id must match: %v vs %v", bobItem["alert"], bobItem["alert_id"])
	}

	_, body = s.do(t, http.MethodPost, followPath, aliceTok, nil)
	if body["deleted"] != true || body["item"] != nil {
		t.Errorf("alice's item should be deleted, got %v", body)
	}
	eng := engagement(t, body)
	if eng["number_of_follows"] != float64(1) {
		t.Errorf("expected 1 follower, got %v", eng["number_of_follows"])
	}
	followedBy, _ := eng["followed_by"].([]any)
	if len(followedBy) != 1 || followedBy[0] != s.bob.ID.String() {
		t.Errorf("expected followed_by=[bob], got %v", followedBy)
	}
}

func TestAlertStateAndListCarryCounts(t *testing.T) {
	s := newTestServer(t)
	aliceTok := s.token(t, s.alice, false)
	bobTok := s.token(t, s.bob, false)
	alertPath := "/v1/alerts/" + s.alert.ID.String()

	rec, body := s.do(t, http.MethodGet, alertPath, aliceTok, nil)
	if rec.Code != http.StatusOK || body["item"] != nil || body["is_following"] != false {
		t.Fatalf("expected empty state before any toggle, got %d %v", rec.Code, body)
	}

	s.do(t, http.MethodPost, alertPath+"/follow", aliceTok, nil)
	s.do(t, http.MethodPost, alertPath+"/follow", bobTok, nil)

	_, body = s.do(t, http.MethodGet, alertPath, aliceTok, nil)
	if body["is_following"] != true || body["item"] == nil {
		t.Errorf("expected alice's followed item, got %v", body)
	}
	if n := engagement(t, body)["number_of_follows"]; n != float64(2) {
		t.Errorf("expected 2 followers, got %v", n)
	}

	rec, _ = s.do(t, http.MethodGet, "/v1/action-hub", aliceTok, nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list))
	}
	if n := engagement(t, list[0])["number_of_follows"]; n != float64(2) {
		t.Errorf("list item: expected 2 followers, got %v", n)
	}

	rec, _ = s.do(t, http.MethodGet, "/v1/alerts/"+uuid.NewString(), aliceTok, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert: expected 404, got %d", rec.Code)
	}
}

func TestNotifyBatchErrorKeepsReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	h := NewNotifyHandler(nil, zap.NewNop())
	report := &notify.Report{Total: 2, Sent: 1, Failed: 1}
	h.respondBatchError(c, report, apperr.Dependency("action item store unavailable", errors.New("pool closed")))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := body["report"].(map[string]any)
	if !ok || got["sent"] != float64(1) || got["total"] != float64(2) {
		t.Errorf("expected report in error body, got %v", body)
	}
}

func TestForbiddenCarriesReason(t *testing.T) {
	s := newTestServer(t)
	aliceTok := s.token(t, s.alice, false)
	bobTok := s.token(t, s.bob, false)

	_, body := s.do(t, http.MethodPost, "/v1/alerts/"+s.alert.ID.String()+"/flag", aliceTok, nil)
	itemPath := "/v1/action-hub/" + body["item"].(map[string]any)["id"].(string)

	rec, body := s.do(t, http.MethodGet, itemPath, bobTok, nil)
	if rec.Code != http.StatusForbidden || body["reason"] != "not_owner" {
		t.Errorf("expected 403 not_owner, got %d %v", rec.Code, body)
	}

	rec, body = s.do(t, http.MethodPost, itemPath+"/notify-team", aliceTok, map[string]any{"message": "hi"})
	if rec.Code != http.StatusForbidden || body["reason"] != "premium_required" {
		t.Errorf("expected 403 premium_required, got %d %v", rec.Code, body)
	}
}

func TestActionHubValidation(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, s.alice, false)

	_, body := s.do(t, http.MethodPost, "/v1/alerts/"+s.alert.ID.String()+"/flag", tok, nil)
	itemPath := "/v1/action-hub/" + body["item"].(map[string]any)["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad item id", http.MethodGet, "/v1/action-hub/not-a-uuid", nil, http.StatusBadRequest},
		{"missing item", http.MethodGet, "/v1/action-hub/" + uuid.NewString(), nil, http.StatusNotFound},
		{"unknown alert", http.MethodPost, "/v1/alerts/" + uuid.NewString() + "/flag", nil, http.StatusNotFound},
		{"bad status", http.MethodPut, itemPath + "/status", map[string]string{"status": "archived"}, http.StatusBadRequest},
		{"bad tab", http.MethodPut, itemPath + "/tab", map[string]string{"tab": "history"}, http.StatusBadRequest},
		{"blank note", http.MethodPost, itemPath + "/notes", map[string]string{"content": "  "}, http.StatusBadRequest},
		{"no usable guests", http.MethodPost, itemPath + "/guests", map[string]any{"guests": []map[string]string{{"name": "x"}}}, http.StatusBadRequest},
		{"nobody to notify", http.MethodPost, itemPath + "/notify-guests", map[string]any{}, http.StatusBadRequest},
		{"set status", http.MethodPut, itemPath + "/status", map[string]string{"status": "handled"}, http.StatusOK},
		{"add note", http.MethodPost, itemPath + "/notes", map[string]string{"content": "Rebooked"}, http.StatusCreated},
		{"logs", http.MethodGet, itemPath + "/logs", nil, http.StatusOK},
		{"list by status", http.MethodGet, "/v1/action-hub?status=handled", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, tt.method, tt.path, tok, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%v)", tt.want, rec.Code, body)
			}
		})
	}
}

func TestNotifyGuestsOutageIsNotAnError(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, s.alice, false)

	_, body := s.do(t, http.MethodPost, "/v1/alerts/"+s.alert.ID.String()+"/flag", tok, nil)
	itemPath := "/v1/action-hub/" + body["item"].(map[string]any)["id"].(string)
	rec, body := s.do(t, http.MethodPost, itemPath+"/guests", tok, map[string]any{
		"guests": []map[string]string{{"email": "g1@x.test"}, {"email": "g2@x.test"}, {}},
	})
	if rec.Code != http.StatusCreated || body["accepted"] != float64(2) {
		t.Fatalf("add guests: %d %v", rec.Code, body)
	}

	s.mailer.down = true
	rec, body = s.do(t, http.MethodPost, itemPath+"/notify-guests", tok, map[string]string{"message": "Update"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 during outage, got %d", rec.Code)
	}
	if body["sent"] != float64(0) || body["total"] != float64(2) {
		t.Errorf("expected 0 of 2, got sent=%v total=%v", body["sent"], body["total"])
	}
}

func TestCollaboratorLoginActsOnParent(t *testing.T) {
	s := newTestServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("desk-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s.alice.Collaborators[0].CredentialHash = string(hash)
	if err := s.accounts.Save(context.Background(), s.alice); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, body := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "desk@ops.test", "password": "desk-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("collaborator login: %d %v", rec.Code, body)
	}
	tok := body["token"].(string)

	_, body = s.do(t, http.MethodPost, "/v1/alerts/"+s.alert.ID.String()+"/flag", tok, nil)
	item := body["item"].(map[string]any)
	if item["user_id"] != s.alice.ID.String() {
		t.Errorf("item should belong to the parent account, got %v", item["user_id"])
	}
	logs := item["action_logs"].([]any)
	if logs[0].(map[string]any)["user_email"] != "desk@ops.test" {
		t.Errorf("log entry should name the collaborator, got %v", logs[0])
	}
}
