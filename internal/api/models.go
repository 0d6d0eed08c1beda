package api

import "time"

// =============================================================================
// RESOURCE MODELS
// =============================================================================

// User is a public profile.
type User struct {
	ID        int      `json:"id"`
	Username  string   `json:"username"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	Bio       string   `json:"bio,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Skills    []string `json:"skills,omitempty"`
}

// DisplayName returns the full name, or the username when none is set.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// CodeSnippet is source attached to a post.
type CodeSnippet struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Post is a feed entry.
type Post struct {
	ID            int          `json:"id"`
	Author        User         `json:"author"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	Snippet       *CodeSnippet `json:"code_snippet,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	LikesCount    int          `json:"likes_count"`
	CommentsCount int          `json:"comments_count"`
	IsLiked       bool         `json:"is_liked"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Comment is a reply on a post.
type Comment struct {
	ID        int       `json:"id"`
	Post      int       `json:"post"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is one message of a conversation. ClientID is set by the
// sender so its own echo can be matched to the optimistic copy.
type ChatMessage struct {
	ID           int       `json:"id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	Conversation int       `json:"conversation"`
	Sender       string    `json:"sender"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	IsRead       bool      `json:"is_read"`
}

// Conversation is a chat thread between users.
type Conversation struct {
	ID           int          `json:"id"`
	Participants []User       `json:"participants"`
	LastMessage  *ChatMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Notification is an activity item for the signed-in user.
type Notification struct {
	ID        int       `json:"id"`
	Type      string    `json:"notification_type"`
	Actor     *User     `json:"actor,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
