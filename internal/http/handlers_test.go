package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	http "github.com/tazhibayda/features-service/internal/http"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func Test_Create_Duplicate_List_Fetch(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, tok := env.register("John", "john@example.com")

	id := env.createFeature(tok, "Dark Mode", "make it dark")

	// дубль с другим регистром
	w := env.do("POST", "/api/v1/features", `{"title":"dark mode","description":"again"}`, tok)
	if w.Code != 400 {
		t.Fatalf("duplicate title expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// короткий title-паттерн коллидирует с длинным существующим
	w = env.do("POST", "/api/v1/features", `{"title":"dark","description":""}`, tok)
	if w.Code != 400 {
		t.Fatalf("containment duplicate expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do("GET", "/api/v1/features", "", tok)
	if w.Code != 200 {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	items := parseFeatures(t, w.Body.Bytes())
	if len(items) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(items))
	}
	f := items[0]
	if f.ID != id || f.Title != "Dark Mode" || f.Status != "under-review" {
		t.Fatalf("unexpected summary: %+v", f)
	}
	if f.TotalComments != 0 || f.Likes.Count != 0 {
		t.Fatalf("fresh feature must have zero counters: %+v", f)
	}
	if f.Comments != nil {
		t.Fatalf("list must not include comment bodies: %+v", f.Comments)
	}
	if f.CreatedBy.Email != "john@example.com" {
		t.Fatalf("creator not resolved: %+v", f.CreatedBy)
	}

	w = env.do("GET", "/api/v1/features/"+id, "", tok)
	if w.Code != 200 {
		t.Fatalf("fetch: %d %s", w.Code, w.Body.String())
	}
	d := parseFeature(t, w.Body.Bytes())
	if d.Comments == nil || d.Comments.Count != 0 {
		t.Fatalf("detail must include comments object: %+v", d.Comments)
	}

	// несуществующий id
	w = env.do("GET", "/api/v1/features/"+primitive.NewObjectID().Hex(), "", tok)
	if w.Code != 404 {
		t.Fatalf("fetch missing expected 404, got %d", w.Code)
	}
}

func Test_Create_Validation(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, tok := env.register("V", "v@example.com")

	w := env.do("POST", "/api/v1/features", `{"title":"  ","description":"d"}`, tok)
	if w.Code != 400 {
		t.Fatalf("blank title expected 400, got %d", w.Code)
	}
	w = env.do("POST", "/api/v1/features", `{"title":"X","description":"d"}`, "")
	if w.Code != 401 {
		t.Fatalf("no token expected 401, got %d", w.Code)
	}
}

func Test_Like_Unlike_Toggle(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, tok1 := env.register("U1", "u1@example.com")
	u2, tok2 := env.register("U2", "u2@example.com")

	id := env.createFeature(tok1, "A", "d")

	// explicit like от U2
	w := env.do("PUT", "/api/v1/features/"+id+"/like", "", tok2)
	if w.Code != 200 {
		t.Fatalf("like: %d %s", w.Code, w.Body.String())
	}
	f := parseFeature(t, w.Body.Bytes())
	if f.Likes.Count != 1 || len(f.Likes.Users) != 1 || f.Likes.Users[0].ID != u2 {
		t.Fatalf("after like: %+v", f.Likes)
	}

	// повторный explicit like — no-op
	w = env.do("PUT", "/api/v1/features/"+id+"/like", "", tok2)
	f = parseFeature(t, w.Body.Bytes())
	if f.Likes.Count != 1 || len(f.Likes.Users) != 1 {
		t.Fatalf("like must be idempotent: %+v", f.Likes)
	}

	// explicit unlike
	w = env.do("DELETE", "/api/v1/features/"+id+"/like", "", tok2)
	f = parseFeature(t, w.Body.Bytes())
	if f.Likes.Count != 0 || len(f.Likes.Users) != 0 {
		t.Fatalf("after unlike: %+v", f.Likes)
	}

	// toggle дважды возвращает в исходное
	w = env.do("PATCH", "/api/v1/features/"+id+"/like", "", tok2)
	f = parseFeature(t, w.Body.Bytes())
	if f.Likes.Count != 1 {
		t.Fatalf("toggle on: %+v", f.Likes)
	}
	w = env.do("PATCH", "/api/v1/features/"+id+"/like", "", tok2)
	f = parseFeature(t, w.Body.Bytes())
	if f.Likes.Count != 0 || len(f.Likes.Users) != 0 {
		t.Fatalf("toggle off: %+v", f.Likes)
	}

	// лайк несуществующей фичи
	w = env.do("PATCH", "/api/v1/features/"+primitive.NewObjectID().Hex()+"/like", "", tok2)
	if w.Code != 404 {
		t.Fatalf("like missing expected 404, got %d", w.Code)
	}
}

func Test_Comment_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	u1, tok1 := env.register("U1", "c1@example.com")
	_, tok2 := env.register("U2", "c2@example.com")

	id := env.createFeature(tok1, "Comments", "d")

	w := env.do("POST", "/api/v1/features/"+id+"/comments", `{"comment":"nice"}`, tok1)
	if w.Code != 200 {
		t.Fatalf("add comment: %d %s", w.Code, w.Body.String())
	}
	f := parseFeature(t, w.Body.Bytes())
	if f.Comments == nil || f.Comments.Count != 1 || len(f.Comments.Data) != 1 {
		t.Fatalf("after add: %+v", f.Comments)
	}
	cm := f.Comments.Data[0]
	if cm.Comment != "nice" || cm.CommentsBy.ID != u1 {
		t.Fatalf("comment shape: %+v", cm)
	}

	// чужой пользователь удалить не может
	w = env.do("DELETE", "/api/v1/features/"+id+"/comments/"+cm.ID, "", tok2)
	if w.Code != 403 {
		t.Fatalf("foreign delete expected 403, got %d: %s", w.Code, w.Body.String())
	}
	w = env.do("GET", "/api/v1/features/"+id, "", tok2)
	f = parseFeature(t, w.Body.Bytes())
	if f.Comments.Count != 1 || len(f.Comments.Data) != 1 {
		t.Fatalf("comment must survive forbidden delete: %+v", f.Comments)
	}

	// автор удаляет
	w = env.do("DELETE", "/api/v1/features/"+id+"/comments/"+cm.ID, "", tok1)
	if w.Code != 200 {
		t.Fatalf("author delete: %d %s", w.Code, w.Body.String())
	}
	f = parseFeature(t, w.Body.Bytes())
	if f.Comments.Count != 0 || len(f.Comments.Data) != 0 {
		t.Fatalf("after delete: %+v", f.Comments)
	}

	// повторное удаление — комментария уже нет
	w = env.do("DELETE", "/api/v1/features/"+id+"/comments/"+cm.ID, "", tok1)
	if w.Code != 404 {
		t.Fatalf("second delete expected 404, got %d", w.Code)
	}

	// пустой комментарий
	w = env.do("POST", "/api/v1/features/"+id+"/comments", `{"comment":"  "}`, tok1)
	if w.Code != 400 {
		t.Fatalf("blank comment expected 400, got %d", w.Code)
	}
}

func Test_Status_Update(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, tok := env.register("M", "m@example.com")
	id := env.createFeature(tok, "Status", "d")

	w := env.do("PATCH", "/api/v1/features/"+id+"/status", `{"status":"planned"}`, tok)
	if w.Code != 200 {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	if f := parseFeature(t, w.Body.Bytes()); f.Status != "planned" {
		t.Fatalf("status not applied: %+v", f)
	}

	// переходы не ограничены
	w = env.do("PATCH", "/api/v1/features/"+id+"/status", `{"status":"rejected"}`, tok)
	if f := parseFeature(t, w.Body.Bytes()); f.Status != "rejected" {
		t.Fatalf("status not applied: %+v", f)
	}

	w = env.do("PATCH", "/api/v1/features/"+id+"/status", `{"status":"bogus"}`, tok)
	if w.Code != 400 {
		t.Fatalf("bad status expected 400, got %d", w.Code)
	}
	w = env.do("PATCH", "/api/v1/features/"+primitive.NewObjectID().Hex()+"/status", `{"status":"planned"}`, tok)
	if w.Code != 404 {
		t.Fatalf("missing feature expected 404, got %d", w.Code)
	}
}

func Test_Search(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, tok := env.register("S", "s@example.com")
	darkID := env.createFeature(tok, "Dark Mode", "night theme")
	csvID := env.createFeature(tok, "Export CSV", "download data")

	check := func(term string, want ...string) {
		t.Helper()
		w := env.do("GET", "/api/v1/features/search?q="+term, "", tok)
		if w.Code != 200 {
			t.Fatalf("search %q: %d %s", term, w.Code, w.Body.String())
		}
		items := parseFeatures(t, w.Body.Bytes())
		if len(items) != len(want) {
			t.Fatalf("search %q: expected %d results, got %d", term, len(want), len(items))
		}
		for i, id := range want {
			if items[i].ID != id {
				t.Fatalf("search %q: item %d = %s, want %s", term, i, items[i].ID, id)
			}
			if items[i].Comments != nil {
				t.Fatalf("search results must omit comments: %+v", items[i].Comments)
			}
		}
	}

	check("dark", darkID)
	check("csv", csvID)
	check("zzz")
	// description тоже ищется
	check("night", darkID)
}

func Test_SoftDeletedCreator_ExcludedFromList_NotFetch(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	xID, tokX := env.register("X", "x@example.com")
	_, tokY := env.register("Y", "y@example.com")

	id := env.createFeature(tokX, "Ghost", "d")

	w := env.do("GET", "/api/v1/features", "", tokY)
	if items := parseFeatures(t, w.Body.Bytes()); len(items) != 1 {
		t.Fatalf("expected feature visible, got %d items", len(items))
	}

	oid, err := primitive.ObjectIDFromHex(xID)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Store.SoftDeleteUser(env.Ctx, oid); err != nil {
		t.Fatal(err)
	}

	w = env.do("GET", "/api/v1/features", "", tokY)
	if items := parseFeatures(t, w.Body.Bytes()); len(items) != 0 {
		t.Fatalf("feature of deleted creator must not be listed, got %d items", len(items))
	}

	// прямое чтение по id остаётся доступным
	w = env.do("GET", "/api/v1/features/"+id, "", tokY)
	if w.Code != 200 {
		t.Fatalf("fetch by id after creator delete: %d %s", w.Code, w.Body.String())
	}
}

func Test_Register_Login_Me(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, _ = env.register("John", "login@example.com")

	w := env.do("POST", "/api/v1/users/login", `{"email":"login@example.com","password":"StrongP@ss1"}`, "")
	if w.Code != 200 {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/api/v1/users/login", `{"email":"login@example.com","password":"wrongwrong"}`, "")
	if w.Code != 401 {
		t.Fatalf("bad password expected 401, got %d", w.Code)
	}
	w = env.do("POST", "/api/v1/users/login", `{"email":"nobody@example.com","password":"whatever1"}`, "")
	if w.Code != 404 {
		t.Fatalf("unknown email expected 404, got %d", w.Code)
	}

	_, tok := env.register("Jane", "jane@example.com")
	w = env.do("GET", "/api/v1/users/me", "", tok)
	if w.Code != 200 {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}

	// дубль email
	w = env.do("POST", "/api/v1/users/register",
		`{"name":"J2","email":"jane@example.com","password":"StrongP@ss1","confirmPassword":"StrongP@ss1"}`, "")
	if w.Code != 409 {
		t.Fatalf("duplicate email expected 409, got %d", w.Code)
	}
}

func Test_UserStoreErrors_NotMaskedAsConflict(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	_, _ = env.register("A", "a@example.com")
	_, tokB := env.register("B", "b@example.com")

	// занятый email при обновлении профиля — конфликт по уникальному индексу
	w := env.do("PATCH", "/api/v1/users/update", `{"email":"a@example.com"}`, tokB)
	if w.Code != 409 {
		t.Fatalf("email collision expected 409, got %d: %s", w.Code, w.Body.String())
	}

	// обрыв базы конфликтом не является
	if err := env.Store.Client.Disconnect(env.Ctx); err != nil {
		t.Fatal(err)
	}
	w = env.do("POST", "/api/v1/users/register",
		`{"name":"C","email":"c@example.com","password":"StrongP@ss1","confirmPassword":"StrongP@ss1"}`, "")
	if w.Code != 500 {
		t.Fatalf("register with store down expected 500, got %d: %s", w.Code, w.Body.String())
	}
	w = env.do("POST", "/api/v1/users/google-signin", `{"name":"G","email":"g@example.com"}`, "")
	if w.Code != 500 {
		t.Fatalf("google-signin with store down expected 500, got %d: %s", w.Code, w.Body.String())
	}
}

type brokenPub struct{}

func (brokenPub) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	return errors.New("broker down")
}
func (brokenPub) Close() error { return nil }

func Test_PublishFailure_DoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	h := http.NewHandler(env.Store, nil, brokenPub{}, testSecret, 60, 0)
	r := http.NewRouter(h)
	do := func(method, path, body, token string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		r.ServeHTTP(w, req)
		return w
	}

	w := do("POST", "/api/v1/users/register",
		`{"name":"P","email":"pub@example.com","password":"StrongP@ss1","confirmPassword":"StrongP@ss1"}`, "")
	if w.Code != 201 {
		t.Fatalf("register with broken broker: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("register resp: %v; body=%s", err, w.Body.String())
	}

	w = do("POST", "/api/v1/features", `{"title":"Broker Down","description":"x"}`, resp.Token)
	if w.Code != 201 {
		t.Fatalf("create with broken broker: %d %s", w.Code, w.Body.String())
	}
}
