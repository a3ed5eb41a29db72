package tasklog

import "time"

// Entry is one finished sync task.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TaskID    string    `gorm:"column:task_id;size:36;index" json:"task_id"`
	LinkID    string    `gorm:"column:link_id;size:255;index" json:"link_id"`
	Kind      string    `gorm:"column:kind;size:32" json:"kind"`
	Path      string    `gorm:"column:path;size:1024" json:"path"`
	Name      string    `gorm:"column:name;size:1024" json:"name"`
	State     string    `gorm:"column:state;size:64" json:"state"`
	Tries     int       `gorm:"column:tries" json:"tries"`
	Bytes     int64     `gorm:"column:bytes" json:"bytes"`
	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName returns the table name.
func (Entry) TableName() string {
	return "sync_task_log"
}
