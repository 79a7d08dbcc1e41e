package server

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkInvariants verifies that client and session records agree.
func checkInvariants(t *testing.T, st *state) {
	t.Helper()

	for id, sess := range st.sessions {
		if sess.id != id {
			t.Errorf("session %q stored under key %q", sess.id, id)
		}
		if len(sess.members) != st.capacity {
			t.Errorf("session %q has %d slots, want %d", id, len(sess.members), st.capacity)
		}
		occupied := 0
		seen := map[string]bool{}
		for _, m := range sess.members {
			if m == "" {
				continue
			}
			occupied++
			if seen[m] {
				t.Errorf("session %q lists %q twice", id, m)
			}
			seen[m] = true
			rec, ok := st.clients[m]
			switch {
			case !ok:
				t.Errorf("session %q lists unknown client %q", id, m)
			case rec.session != id:
				t.Errorf("session %q lists %q, whose session is %q", id, m, rec.session)
			case rec.conn == nil:
				t.Errorf("session %q lists logged-out client %q", id, m)
			}
		}
		if occupied != sess.count {
			t.Errorf("session %q count = %d, occupied slots = %d", id, sess.count, occupied)
		}
		if sess.count == 0 {
			t.Errorf("empty session %q still registered", id)
		}
	}

	for name, rec := range st.clients {
		if rec.session != "" {
			if _, ok := st.sessions[rec.session]; !ok {
				t.Errorf("client %q points at missing session %q", name, rec.session)
			}
			if rec.conn == nil {
				t.Errorf("logged-out client %q is still in session %q", name, rec.session)
			}
		}
		if rec.conn != nil && rec.conn.user != name {
			t.Errorf("client %q bound to a connection serving %q", name, rec.conn.user)
		}
	}
}

func newTestState(t *testing.T, capacity int, users ...string) *state {
	t.Helper()
	st := newState(capacity)
	for _, u := range users {
		if err := st.register(u, u+"-pw"); err != nil {
			t.Fatalf("register(%s): %v", u, err)
		}
	}
	return st
}

func mustLogin(t *testing.T, st *state, user string) *conn {
	t.Helper()
	c := &conn{t: &fakeTransport{}}
	if err := st.login(user, user+"-pw", c); err != nil {
		t.Fatalf("login(%s): %v", user, err)
	}
	return c
}

func TestStateRegister(t *testing.T) {
	st := newTestState(t, 2, "alice")
	if err := st.register("alice", "other"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("register duplicate: expected ErrDuplicateUsername, got %v", err)
	}
	if err := st.register("Alice", "pw"); err != nil {
		t.Fatalf("usernames are case-sensitive, register(Alice): %v", err)
	}
	if st.clients["alice"].conn != nil {
		t.Fatalf("register must not log the user in")
	}
}

func TestStateLogin(t *testing.T) {
	st := newTestState(t, 2, "alice", "bob")
	c := &conn{t: &fakeTransport{}}

	tests := []struct {
		name     string
		user, pw string
		conn     *conn
		wantErr  error
	}{
		{"unknown user", "mallory", "x", c, ErrUnknownUser},
		{"wrong password", "alice", "nope", c, ErrInvalidCredentials},
		{"ok", "alice", "alice-pw", c, nil},
		{"second connection", "alice", "alice-pw", &conn{t: &fakeTransport{}}, ErrAlreadyLoggedIn},
		{"bound connection", "bob", "bob-pw", c, ErrAlreadyLoggedIn},
	}
	for _, tt := range tests {
		err := st.login(tt.user, tt.pw, tt.conn)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: login error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}

	if st.clients["alice"].conn != c || c.user != "alice" {
		t.Fatalf("alice should be bound to c")
	}
	if st.clients["bob"].conn != nil {
		t.Fatalf("bob should not be logged in")
	}
	checkInvariants(t, st)
}

func TestStateSessions(t *testing.T) {
	st := newTestState(t, 2, "alice", "bob", "carol")
	alice := mustLogin(t, st, "alice")
	bob := mustLogin(t, st, "bob")
	carol := mustLogin(t, st, "carol")

	if err := st.createSession("room1", "alice", alice); err != nil {
		t.Fatalf("createSession: %v", err)
	}
	if err := st.createSession("room2", "alice", alice); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("createSession while in a session: got %v", err)
	}
	if err := st.createSession("room1", "bob", bob); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("createSession duplicate: got %v", err)
	}
	if err := st.createSession("room3", "bob", alice); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("createSession from the wrong connection: got %v", err)
	}
	if err := st.joinSession("nowhere", "bob", bob); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("joinSession missing: got %v", err)
	}
	if err := st.joinSession("room1", "bob", bob); err != nil {
		t.Fatalf("joinSession: %v", err)
	}
	if err := st.joinSession("room1", "bob", bob); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("joinSession twice: got %v", err)
	}
	if err := st.joinSession("room1", "carol", carol); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("joinSession on a full session: got %v", err)
	}
	checkInvariants(t, st)

	// The first free slot is reused.
	st.leaveSession("alice")
	if err := st.joinSession("room1", "carol", carol); err != nil {
		t.Fatalf("joinSession after a slot freed: %v", err)
	}
	if diff := cmp.Diff([]string{"carol", "bob"}, st.members("room1")); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	checkInvariants(t, st)

	var closed []string
	st.onSessionClosed = func(id string) { closed = append(closed, id) }
	st.leaveSession("carol")
	st.logout("bob")
	if _, ok := st.sessions["room1"]; ok {
		t.Fatalf("room1 should be deleted once empty")
	}
	if diff := cmp.Diff([]string{"room1"}, closed); diff != "" {
		t.Errorf("closed sessions mismatch (-want +got):\n%s", diff)
	}
	if bob.user != "" || st.clients["bob"].conn != nil {
		t.Fatalf("logout should unbind both sides")
	}
	checkInvariants(t, st)

	// Leaving without a session is a no-op.
	st.leaveSession("carol")
	st.leaveSession("nobody")
	checkInvariants(t, st)
}

func TestStateQuery(t *testing.T) {
	st := newTestState(t, 4, "dave", "bob", "alice", "carol")
	alice := mustLogin(t, st, "alice")
	mustLogin(t, st, "bob")
	mustLogin(t, st, "dave")
	if err := st.createSession("room1", "alice", alice); err != nil {
		t.Fatalf("createSession: %v", err)
	}

	want := []presence{
		{username: "alice", session: "room1"},
		{username: "bob"},
		{username: "dave"},
	}
	if diff := cmp.Diff(want, st.query(), cmp.AllowUnexported(presence{})); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if got := st.online(); got != 3 {
		t.Errorf("online = %d, want 3", got)
	}
}

func TestStateUpsert(t *testing.T) {
	st := newTestState(t, 2, "alice")
	c := mustLogin(t, st, "alice")

	if st.upsert("alice", "rotated") {
		t.Fatalf("upsert of a known user should not report an addition")
	}
	if st.clients["alice"].conn != c {
		t.Fatalf("upsert must keep the login binding")
	}
	if !st.upsert("bob", "pw") {
		t.Fatalf("upsert of a new user should report an addition")
	}
	if err := st.login("alice", "rotated", &conn{t: &fakeTransport{}}); !errors.Is(err, ErrAlreadyLoggedIn) {
		t.Fatalf("refreshed password should be checked first, got %v", err)
	}
}
