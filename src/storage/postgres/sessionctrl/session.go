// Package sessionctrl keeps the conversation history of chat sessions in Postgres
package sessionctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"algomind/src/core/model"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"not null;index:idx_session_messages_session_created,priority:1" json:"session_id"`
	Role      string    `gorm:"not null" json:"role"`
	Content   string    `gorm:"not null;type:text" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_session_messages_session_created,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "session_messages"
}

type SessionService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewSessionService(db *gorm.DB, nodeID int64) (*SessionService, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &SessionService{
		db:        db,
		snowflake: node,
	}, nil
}

// Migrate creates or updates the session_messages table
func (s *SessionService) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Message{}); err != nil {
		return fmt.Errorf("failed to migrate session messages: %v", err)
	}
	return nil
}

// Append records one exchange of a session. Empty contents are skipped.
func (s *SessionService) Append(ctx context.Context, sessionID string, turns ...model.Turn) error {
	now := time.Now()
	var messages []Message
	for i, t := range turns {
		if t.Content == "" {
			continue
		}
		messages = append(messages, Message{
			ID:        s.snowflake.Generate().Int64(),
			SessionID: sessionID,
			Role:      t.Role,
			Content:   t.Content,
			// keep insertion order stable for turns appended together
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	if len(messages) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Create(&messages)
	if result.Error != nil {
		return fmt.Errorf("failed to append session messages: %v", result.Error)
	}
	return nil
}

// RecentTurns returns up to limit of the latest turns of a session, oldest first
func (s *SessionService) RecentTurns(ctx context.Context, sessionID string, limit int) ([]model.Turn, error) {
	if sessionID == "" || limit <= 0 {
		return nil, nil
	}

	var messages []Message
	result := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load session %s: %v", sessionID, result.Error)
	}

	return toTurns(messages), nil
}

// DeleteSession forgets a session's history
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	result := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&Message{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete session: %v", result.Error)
	}
	return nil
}

// toTurns reverses newest-first rows into conversation order
func toTurns(messages []Message) []model.Turn {
	turns := make([]model.Turn, len(messages))
	for i, m := range messages {
		turns[len(messages)-1-i] = model.Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}
