package models

import "time"

type Language string

const (
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
)

// DefaultLanguage is used when a session is created without an explicit language.
const DefaultLanguage = LangJavaScript

// Valid reports whether l is one of the supported editor languages.
func (l Language) Valid() bool {
	switch l {
	case LangJavaScript, LangPython:
		return true
	}
	return false
}

func SupportedLanguages() []Language { return []Language{LangJavaScript, LangPython} }

/*** Collaboration session state ***/
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Session struct {
	SessionID string    `json:"sessionId"`
	Code      string    `json:"code"`
	Language  Language  `json:"language"`
	Users     []User    `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy whose user list does not alias the receiver's.
func (s Session) Clone() Session {
	users := make([]User, len(s.Users))
	copy(users, s.Users)
	s.Users = users
	return s
}

/*** Real-time channel ***/

// Client → server event types.
const (
	EventJoinSession    = "join-session"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
)

// Server → client event types. EventLanguageChange is reused for the broadcast.
const (
	EventInitialState = "initial-state"
	EventUsersUpdate  = "users-update"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventCodeUpdate   = "code-update"
	EventError        = "error"
)

type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

type CodeChangePayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

type LanguageChangePayload struct {
	SessionID string   `json:"sessionId"`
	Language  Language `json:"language"`
}

type InitialState struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
	Users    []User   `json:"users"`
}

/*** REST session lifecycle ***/
type CreateSessionRequest struct {
	Language    Language `json:"language,omitempty"`
	InitialCode string   `json:"initialCode,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

type CodeResponse struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

type UpdateCodeRequest struct {
	Code     *string  `json:"code"`
	Language Language `json:"language,omitempty"`
}

type UpdateCodeResponse struct {
	Success bool `json:"success"`
}

/*** Activity events published for other services ***/
const (
	ActivitySessionCreated = "session-created"
	ActivityUserJoined     = "user-joined"
	ActivityUserLeft       = "user-left"
	ActivitySessionEvicted = "session-evicted"
)

type ActivityEvent struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId,omitempty"`
	UserName   string    `json:"userName,omitempty"`
	InstanceID string    `json:"instanceId"`
	Timestamp  time.Time `json:"timestamp"`
}
