package server

import (
	"sort"
)

// clientRecord is a registered user. conn is set only while logged in.
type clientRecord struct {
	username string
	password string
	conn     *conn
	session  string // "" when not in a session
}

// sessionRecord is a live conferencing session. members is a fixed slot table;
// free slots hold "".
type sessionRecord struct {
	id      string
	members []string
	count   int
}

// presence is one line of a QUERY reply.
type presence struct {
	username string
	session  string
}

// state holds the client and session registries. It is owned by the event
// loop and is never touched from any other goroutine.
type state struct {
	capacity int
	clients  map[string]*clientRecord
	sessions map[string]*sessionRecord

	// onSessionClosed is called after an empty session is removed.
	onSessionClosed func(id string)
}

func newState(capacity int) *state {
	if capacity < 1 {
		capacity = 1
	}
	return &state{
		capacity: capacity,
		clients:  make(map[string]*clientRecord),
		sessions: make(map[string]*sessionRecord),
	}
}

// register adds a logged-out record.
func (st *state) register(username, password string) error {
	if _, ok := st.clients[username]; ok {
		return ErrDuplicateUsername
	}
	st.clients[username] = &clientRecord{username: username, password: password}
	return nil
}

// upsert adds or refreshes a record from the credential store without
// touching its login state.
func (st *state) upsert(username, password string) (added bool) {
	if rec, ok := st.clients[username]; ok {
		rec.password = password
		return false
	}
	st.clients[username] = &clientRecord{username: username, password: password}
	return true
}

// login binds c to username. A connection serves at most one user and a user
// is served by at most one connection.
func (st *state) login(username, password string, c *conn) error {
	rec, ok := st.clients[username]
	if !ok {
		return ErrUnknownUser
	}
	if rec.password != password {
		return ErrInvalidCredentials
	}
	if rec.conn != nil || c.user != "" {
		return ErrAlreadyLoggedIn
	}
	rec.conn = c
	c.user = username
	return nil
}

// logout removes the user from its session and unbinds its connection.
func (st *state) logout(username string) {
	rec, ok := st.clients[username]
	if !ok {
		return
	}
	st.leaveSession(username)
	if rec.conn != nil {
		rec.conn.user = ""
		rec.conn = nil
	}
}

// authorize returns the record for username if it is bound to c.
func (st *state) authorize(username string, c *conn) (*clientRecord, error) {
	rec, ok := st.clients[username]
	if !ok || rec.conn == nil || rec.conn != c {
		return nil, ErrNotLoggedIn
	}
	return rec, nil
}

func (st *state) createSession(id, owner string, c *conn) error {
	rec, err := st.authorize(owner, c)
	if err != nil {
		return err
	}
	if rec.session != "" {
		return ErrAlreadyInSession
	}
	if _, exists := st.sessions[id]; exists {
		return ErrSessionExists
	}

	sess := &sessionRecord{id: id, members: make([]string, st.capacity)}
	sess.members[0] = owner
	sess.count = 1
	st.sessions[id] = sess
	rec.session = id
	return nil
}

func (st *state) joinSession(id, username string, c *conn) error {
	rec, err := st.authorize(username, c)
	if err != nil {
		return err
	}
	if rec.session != "" {
		return ErrAlreadyInSession
	}
	sess, ok := st.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.count >= len(sess.members) {
		return ErrSessionFull
	}

	for i, m := range sess.members {
		if m == "" {
			sess.members[i] = username
			break
		}
	}
	sess.count++
	rec.session = id
	return nil
}

// leaveSession is a no-op for users without a session.
func (st *state) leaveSession(username string) {
	rec, ok := st.clients[username]
	if !ok || rec.session == "" {
		return
	}
	if sess, ok := st.sessions[rec.session]; ok {
		st.removeFromSession(sess, username)
	}
	rec.session = ""
}

// removeFromSession frees the member's slot and deletes the session once it
// is empty.
func (st *state) removeFromSession(sess *sessionRecord, username string) {
	for i, m := range sess.members {
		if m == username {
			sess.members[i] = ""
			sess.count--
			break
		}
	}
	if sess.count > 0 {
		return
	}
	delete(st.sessions, sess.id)
	if st.onSessionClosed != nil {
		st.onSessionClosed(sess.id)
	}
}

// members returns the occupied slots of session id in slot order.
func (st *state) members(id string) []string {
	sess, ok := st.sessions[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, sess.count)
	for _, m := range sess.members {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// online counts logged-in users.
func (st *state) online() int {
	n := 0
	for _, rec := range st.clients {
		if rec.conn != nil {
			n++
		}
	}
	return n
}

// query lists logged-in users sorted by name.
func (st *state) query() []presence {
	out := make([]presence, 0, len(st.clients))
	for _, rec := range st.clients {
		if rec.conn == nil {
			continue
		}
		out = append(out, presence{username: rec.username, session: rec.session})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].username < out[j].username })
	return out
}
