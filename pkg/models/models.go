package models

import (
	"time"

	"socialhub/internal/common"
)

// users collection
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash"`
	Bio          string    `json:"bio"`
	Location     string    `json:"location"`
	Avatar       *Media    `json:"avatar,omitempty"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary is the display data embedded in posts, messages and friend lists.
func (u *User) Summary() UserSummary {
	s := UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Online:      u.Online,
	}
	if u.Avatar != nil {
		s.AvatarURL = u.Avatar.URL
	}
	return s
}

type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Online      bool   `json:"online"`
}

// Profile is what the API returns for a user; it never carries the hash.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	Bio          string    `json:"bio"`
	Location     string    `json:"location"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
	IsFriend     bool      `json:"isFriend"`
	FriendCount  int       `json:"friendCount"`
	Relationship string    `json:"relationship,omitempty"`
}

func (u *User) Profile() Profile {
	p := Profile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		Location:    u.Location,
		Online:      u.Online,
		LastSeen:    u.LastSeen,
		CreatedAt:   u.CreatedAt,
	}
	if u.Avatar != nil {
		p.AvatarURL = u.Avatar.URL
	}
	return p
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// Media references an object in media storage.
type Media struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Kind        MediaKind `json:"kind"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
}

type RelationshipStatus string

const (
	RelationshipPending  RelationshipStatus = "pending"
	RelationshipAccepted RelationshipStatus = "accepted"
)

// relationships collection, one document per unordered pair (UserA < UserB)
type Relationship struct {
	ID          string             `json:"id"`
	UserA       string             `json:"userA"`
	UserB       string             `json:"userB"`
	RequesterID string             `json:"requesterId"`
	Status      RelationshipStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Other returns the participant that is not userID.
func (r *Relationship) Other(userID string) string {
	if r.UserA == userID {
		return r.UserB
	}
	return r.UserA
}

func (r *Relationship) Involves(userID string) bool {
	return r.UserA == userID || r.UserB == userID
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	}
	return false
}

type Like struct {
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// posts collection
type Post struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"authorId"`
	Content    string     `json:"content"`
	Media      []Media    `json:"media"`
	Visibility Visibility `json:"visibility"`
	Likes      []Like     `json:"likes"`
	Comments   []Comment  `json:"comments"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (p *Post) LikedBy(userID string) bool {
	for _, l := range p.Likes {
		if l.UserID == userID {
			return true
		}
	}
	return false
}

type LikeView struct {
	User      UserSummary `json:"user"`
	CreatedAt time.Time   `json:"createdAt"`
}

type CommentView struct {
	ID        string      `json:"id"`
	User      UserSummary `json:"user"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
}

// PostView is a post populated for one viewer.
type PostView struct {
	ID           string        `json:"id"`
	Author       UserSummary   `json:"author"`
	Content      string        `json:"content"`
	Media        []Media       `json:"media"`
	Visibility   Visibility    `json:"visibility"`
	Likes        []LikeView    `json:"likes"`
	LikeCount    int           `json:"likeCount"`
	LikedByMe    bool          `json:"likedByMe"`
	Comments     []CommentView `json:"comments"`
	CommentCount int           `json:"commentCount"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageFile:
		return true
	}
	return false
}

// messages collection
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Attachment *Media      `json:"attachment,omitempty"`
	Read       bool        `json:"read"`
	ReadAt     *time.Time  `json:"readAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the participant that is not userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Before orders messages by creation time, then by id.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// MessageView is a message with sender/receiver display data populated.
type MessageView struct {
	Message
	Sender   UserSummary `json:"sender"`
	Receiver UserSummary `json:"receiver"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	User        UserSummary `json:"user"`
	LastMessage Message     `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
}

type FriendRequest struct {
	User      UserSummary `json:"user"`
	CreatedAt time.Time   `json:"createdAt"`
}

type FriendsOverview struct {
	Friends  []UserSummary   `json:"friends"`
	Incoming []FriendRequest `json:"incoming"`
	Outgoing []FriendRequest `json:"outgoing"`
}

// Envelope is the body of every REST response.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []common.FieldError `json:"errors,omitempty"`
}
