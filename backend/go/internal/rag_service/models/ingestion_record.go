package models

import (
	"time"

	"gorm.io/datatypes"
)

// IngestionRecord 是入库台账中的一行，每次入库尝试（无论成功与否）都会写入一条。
type IngestionRecord struct {
	ID            uint              `gorm:"primaryKey"`
	TraceID       string            `gorm:"index;not null;size:64"`   // 触发该次入库的用户操作
	Source        string            `gorm:"index;not null;size:1024"` // 绝对路径、对象引用或 URL
	Status        string            `gorm:"not null;size:16"`         // success / failure
	ChunksCreated int               `gorm:"not null;default:0"`
	ErrorCode     string            `gorm:"size:64"`
	Message       string            `gorm:"size:2048"`
	Provenance    datatypes.JSONMap `gorm:"type:json"` // 第一个文档的来源元数据
	CreatedAt     time.Time
}

// TableName 固定表名。
func (IngestionRecord) TableName() string { return "ingestion_records" }
