package types

import (
	"time"
)

// KnowledgeLib lifecycle states. Generation and analysis consult these
// before mutating the graph; PENDING doubles as the cancel signal for a
// run already in flight.
const (
	LibStatusPending    = "PENDING"
	LibStatusGenerating = "GENERATING"
	LibStatusAnalyzing  = "ANALYZING"
	LibStatusPublished  = "PUBLISHED"
)

type KnowledgeLib struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"not null;column:name" json:"name"`
	Status    string    `gorm:"not null;default:PENDING;column:status" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (KnowledgeLib) TableName() string {
	return "knowledge_lib"
}
