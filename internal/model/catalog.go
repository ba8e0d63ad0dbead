package model

import (
	"time"

	"gorm.io/gorm"
)

// Category 菜品分类。
type Category struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name string `gorm:"size:50;not null" json:"name"`
}

func (Category) TableName() string { return "categories" }

// Food 在售菜品；Price 为单价（分），下单时快照进 OrderItem。
type Food struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Price       int64  `gorm:"not null" json:"price"`
	CategoryID  *uint  `gorm:"index" json:"category_id"`
}

func (Food) TableName() string { return "foods" }
