package account

import "time"

// The following are GORM model structs used only for AutoMigrate: they
// describe the same columns the Persistable implementations read/write by
// hand, in the struct-tag form gorm.AutoMigrate expects. Runtime reads and
// writes never go through these types — they exist purely as schema.

type accountSchema struct {
	ID           int64     `gorm:"primaryKey"`
	Name         string    `gorm:"uniqueIndex;size:50"`
	Mail         string    `gorm:"size:255"`
	PasswordHash string    `gorm:"size:255"`
	Token        string    `gorm:"uniqueIndex;size:96"`
	CreatedAt    time.Time
}

func (accountSchema) TableName() string { return "accounts" }

type userSchema struct {
	ID        int64 `gorm:"primaryKey"`
	AccountID int64 `gorm:"index;column:account_id"`
	Name      string `gorm:"size:50"`
	Location  int64 `gorm:"index"`
	X         int
	Y         int
	Running   bool
}

func (userSchema) TableName() string { return "users" }

type messageSchema struct {
	ID       int64  `gorm:"primaryKey"`
	Text     string `gorm:"size:500"`
	UserID   int64  `gorm:"index;column:user_id"`
	UserName string `gorm:"size:50;column:user_name"`
	Location int64  `gorm:"index"`
	X        int
	Y        int
	DeleteAt time.Time `gorm:"index;column:delete_at"`
}

func (messageSchema) TableName() string { return "messages" }

// SchemaModels lists every GORM-tagged model this package's tables derive
// from, for a single AutoMigrate call at startup.
func SchemaModels() []any {
	return []any{&accountSchema{}, &userSchema{}, &messageSchema{}}
}
