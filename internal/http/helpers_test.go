package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	http "github.com/tazhibayda/features-service/internal/http"
	"github.com/tazhibayda/features-service/internal/log"
	"github.com/tazhibayda/features-service/internal/queue"
	"github.com/tazhibayda/features-service/internal/repo"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

const testSecret = "test_secret_key"

type testEnv struct {
	T      *testing.T
	Ctx    context.Context
	Mongo  *mongodb.MongoDBContainer
	Store  *repo.Store
	Router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mc, err := mongodb.RunContainer(ctx,
		testcontainers.WithImage("mongo:6"),
	)
	if err != nil {
		t.Fatalf("mongo container: %v", err)
	}

	uri, err := mc.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("mongo uri: %v", err)
	}

	if _, err := log.Init(false); err != nil {
		t.Fatalf("log init: %v", err)
	}

	store, err := repo.NewStore(ctx, uri, "features_test")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	// Redis и Rabbit в тестах не нужны: лимитер без Redis пропускает,
	// publisher — Noop
	h := http.NewHandler(store, nil, queue.NewNoop(), testSecret, 60, 0)

	gin.SetMode(gin.TestMode)
	r := http.NewRouter(h)

	return &testEnv{T: t, Ctx: ctx, Mongo: mc, Store: store, Router: r}
}

func (e *testEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Client.Disconnect(e.Ctx)
	}
	if e.Mongo != nil {
		_ = e.Mongo.Terminate(e.Ctx)
	}
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	e.Router.ServeHTTP(w, req)
	return w
}

// register регистрирует пользователя и возвращает id + access token.
func (e *testEnv) register(name, email string) (id, token string) {
	e.T.Helper()
	w := e.do("POST", "/api/v1/users/register",
		`{"name":"`+name+`","email":"`+email+`","password":"StrongP@ss1","confirmPassword":"StrongP@ss1"}`, "")
	if w.Code != 201 {
		e.T.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	var resp struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		e.T.Fatalf("register resp parse: %v; body=%s", err, w.Body.String())
	}
	return resp.User.ID, resp.Token
}

type featureView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedBy   struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"createdBy"`
	Likes struct {
		Count int `json:"count"`
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	} `json:"likes"`
	Comments *struct {
		Count int `json:"count"`
		Data  []struct {
			ID         string `json:"id"`
			Comment    string `json:"comment"`
			CommentsBy struct {
				ID string `json:"id"`
			} `json:"commentsBy"`
		} `json:"data"`
	} `json:"comments"`
	TotalComments int `json:"totalComments"`
}

func parseFeature(t *testing.T, body []byte) featureView {
	t.Helper()
	var resp struct {
		Feature featureView `json:"feature"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("feature parse: %v; body=%s", err, body)
	}
	return resp.Feature
}

func parseFeatures(t *testing.T, body []byte) []featureView {
	t.Helper()
	var resp struct {
		Features []featureView `json:"features"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("features parse: %v; body=%s", err, body)
	}
	return resp.Features
}

// createFeature создаёт фичу и возвращает её id.
func (e *testEnv) createFeature(token, title, desc string) string {
	e.T.Helper()
	w := e.do("POST", "/api/v1/features", `{"title":"`+title+`","description":"`+desc+`"}`, token)
	if w.Code != 201 {
		e.T.Fatalf("create feature %q: %d %s", title, w.Code, w.Body.String())
	}
	return parseFeature(e.T, w.Body.Bytes()).ID
}
