package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"taskdeck/internal/utils"
	"taskdeck/store"
)

func decodeAll(t *testing.T, rows []json.RawMessage) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(rows))
	for _, raw := range rows {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			t.Fatalf("decode row: %v", err)
		}
		out = append(out, row)
	}
	return out
}

func TestSignInSignOut(t *testing.T) {
	s := New()
	s.AddAccount("u@example.com", "secret")

	var events []store.Event
	defer s.OnSessionChange(func(e store.Event, _ *store.Session) {
		events = append(events, e)
	})()

	if _, err := s.SignIn(context.Background(), "u@example.com", "wrong"); !utils.IsAuth(err) {
		t.Errorf("SignIn() with wrong password = %v, want auth error", err)
	}

	session, err := s.SignIn(context.Background(), "u@example.com", "secret")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if session.User.Email != "u@example.com" {
		t.Errorf("session user = %+v", session.User)
	}

	got, err := s.GetSession(context.Background())
	if err != nil || got == nil {
		t.Fatalf("GetSession() = %v, %v", got, err)
	}

	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if got, _ := s.GetSession(context.Background()); got != nil {
		t.Errorf("GetSession() after sign-out = %+v, want nil", got)
	}

	want := []store.Event{store.EventSignedIn, store.EventSignedOut}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestSignUpThenSignIn(t *testing.T) {
	s := New()

	user, err := s.SignUp(context.Background(), "new@example.com", "pw")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.ID == "" {
		t.Error("SignUp() should assign a user ID")
	}

	if _, err := s.SignUp(context.Background(), "new@example.com", "pw"); !utils.IsAuth(err) {
		t.Errorf("duplicate SignUp() = %v, want auth error", err)
	}

	if _, err := s.SignIn(context.Background(), "new@example.com", "pw"); err != nil {
		t.Errorf("SignIn() after SignUp() error = %v", err)
	}
}

func TestSetSessionThroughClientInterface(t *testing.T) {
	var c store.Client = New()

	c.SetSession(&store.Session{
		AccessToken: "restored-token",
		User:        store.User{ID: "u1", Email: "u@example.com"},
	})

	user, err := c.GetUser(context.Background())
	if err != nil {
		t.Fatalf("GetUser() after SetSession() error = %v", err)
	}
	if user.Email != "u@example.com" {
		t.Errorf("GetUser() = %+v, want restored account", user)
	}
}

func TestGetUserRequiresSession(t *testing.T) {
	s := New()
	if _, err := s.GetUser(context.Background()); !utils.IsAuth(err) {
		t.Errorf("GetUser() signed out = %v, want auth error", err)
	}
}

func TestSelectFilterOrderLimit(t *testing.T) {
	s := New()
	s.AddRow("tasks", map[string]any{"user_id": "u1", "title": "c", "due_at": "2026-09-03"})
	s.AddRow("tasks", map[string]any{"user_id": "u1", "title": "a", "due_at": "2026-09-01"})
	s.AddRow("tasks", map[string]any{"user_id": "u2", "title": "other", "due_at": "2026-09-02"})
	s.AddRow("tasks", map[string]any{"user_id": "u1", "title": "b", "due_at": "2026-09-02"})

	rows, err := s.Select(context.Background(), "tasks", store.Query{
		Filters:   []store.Filter{store.Eq("user_id", "u1")},
		OrderBy:   "due_at",
		Ascending: true,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	decoded := decodeAll(t, rows)
	if len(decoded) != 2 {
		t.Fatalf("Select() returned %d rows, want 2", len(decoded))
	}
	if decoded[0]["title"] != "a" || decoded[1]["title"] != "b" {
		t.Errorf("Select() order = %v, %v, want a, b", decoded[0]["title"], decoded[1]["title"])
	}
}

func TestSelectEmptyTable(t *testing.T) {
	s := New()
	rows, err := s.Select(context.Background(), "tasks", store.Query{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("Select() = %v, want empty non-nil slice", rows)
	}
}

func TestInsertAssignsIDs(t *testing.T) {
	s := New()

	rows, err := s.Insert(context.Background(), "tasks", []map[string]any{
		{"title": "one", "user_id": "u1"},
		{"title": "two", "user_id": "u1"},
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	decoded := decodeAll(t, rows)
	if len(decoded) != 2 {
		t.Fatalf("Insert() returned %d rows, want 2", len(decoded))
	}
	for _, row := range decoded {
		if id, _ := row["id"].(string); id == "" {
			t.Errorf("row %v missing generated id", row)
		}
		if row["created_at"] == nil {
			t.Errorf("row %v missing created_at", row)
		}
	}
	if len(s.Rows("tasks")) != 2 {
		t.Errorf("table has %d rows, want 2", len(s.Rows("tasks")))
	}
}

func TestInsertSingleObject(t *testing.T) {
	s := New()

	type taskRow struct {
		Title  string `json:"title"`
		UserID string `json:"user_id"`
	}
	rows, err := s.Insert(context.Background(), "tasks", taskRow{Title: "solo", UserID: "u1"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Insert() returned %d rows, want 1", len(rows))
	}
}

func TestUpdate(t *testing.T) {
	s := New()
	id := s.AddRow("tasks", map[string]any{"title": "x", "status": "pending"})
	s.AddRow("tasks", map[string]any{"title": "y", "status": "pending"})

	rows, err := s.Update(context.Background(), "tasks",
		map[string]any{"status": "completed"},
		[]store.Filter{store.Eq("id", id)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Update() touched %d rows, want 1", len(rows))
	}

	for _, row := range s.Rows("tasks") {
		want := "pending"
		if row["id"] == id {
			want = "completed"
		}
		if row["status"] != want {
			t.Errorf("row %v status = %v, want %v", row["id"], row["status"], want)
		}
	}
}

func TestUpdateRequiresFilter(t *testing.T) {
	s := New()
	if _, err := s.Update(context.Background(), "tasks", map[string]any{"status": "completed"}, nil); err == nil {
		t.Error("Update() without filters should fail")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	id := s.AddRow("tasks", map[string]any{"title": "x"})
	s.AddRow("tasks", map[string]any{"title": "y"})

	if err := s.Delete(context.Background(), "tasks", []store.Filter{store.Eq("id", id)}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	rows := s.Rows("tasks")
	if len(rows) != 1 || rows[0]["title"] != "y" {
		t.Errorf("remaining rows = %v, want only y", rows)
	}
}

func TestDeleteRequiresFilter(t *testing.T) {
	s := New()
	if err := s.Delete(context.Background(), "tasks", nil); err == nil {
		t.Error("Delete() without filters should fail")
	}
}

func TestErrorInjection(t *testing.T) {
	injected := errors.New("injected")
	s := New()
	s.AddAccount("u@example.com", "secret")
	s.SignInErr = injected
	s.SelectErr = injected
	s.InsertErr = injected
	s.UpdateErr = injected
	s.DeleteErr = injected

	if _, err := s.SignIn(context.Background(), "u@example.com", "secret"); !errors.Is(err, injected) {
		t.Errorf("SignIn() = %v, want injected error", err)
	}
	if _, err := s.Select(context.Background(), "tasks", store.Query{}); !errors.Is(err, injected) {
		t.Errorf("Select() = %v, want injected error", err)
	}
	if _, err := s.Insert(context.Background(), "tasks", nil); !errors.Is(err, injected) {
		t.Errorf("Insert() = %v, want injected error", err)
	}
	if _, err := s.Update(context.Background(), "tasks", nil, []store.Filter{store.Eq("id", "1")}); !errors.Is(err, injected) {
		t.Errorf("Update() = %v, want injected error", err)
	}
	if err := s.Delete(context.Background(), "tasks", []store.Filter{store.Eq("id", "1")}); !errors.Is(err, injected) {
		t.Errorf("Delete() = %v, want injected error", err)
	}
}
