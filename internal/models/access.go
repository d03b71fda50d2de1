package models

import "time"

// AccessGrant представляет право пользователя на получение контента товара.
// На пару (пользователь, товар) существует не более одной записи:
// повторная покупка обновляет granted_at и payment_id, а не дублирует право.
type AccessGrant struct {
	UserUID    string    `json:"user_uid"`
	ProductUID string    `json:"product_uid"`
	PaymentID  *string   `json:"payment_id,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}
