package model

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Payment struct {
	gorm.Model
	UserID      uint            `json:"user_id" gorm:"index;not null"`
	Gateway     string          `json:"gateway" gorm:"not null"`
	Plan        string          `json:"plan" gorm:"not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency    string          `json:"currency" gorm:"size:3;default:'INR'"`
	MerchantRef string          `json:"merchant_ref" gorm:"uniqueIndex;not null"`
	GatewayRef  string          `json:"gateway_ref" gorm:"index"`
	Status      string          `json:"status" gorm:"index;default:'pending';not null"`
	Payload     datatypes.JSON  `json:"-"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}
