package models

// MessageCategory selects which pool a reminder draws its text from.
type MessageCategory string

const (
	DefaultNudge  MessageCategory = "default_nudge"
	PositiveNudge MessageCategory = "positive_nudge"
	ReEngagement  MessageCategory = "re_engagement"
)

// MessageTemplate is one entry in a category's pool. Text may contain the
// literal token "name", replaced with the recipient's display name when
// rendered.
type MessageTemplate struct {
	ID       uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Category MessageCategory `gorm:"size:32;not null;index" json:"category"`
	Text     string          `gorm:"type:text;not null" json:"text"`
}

// TableName specifies the table name for the MessageTemplate model
func (MessageTemplate) TableName() string {
	return "message_template"
}
