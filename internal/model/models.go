package model

// All lists every table, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&LoginHistory{},
		&GalleryItem{},
		&Referral{},
		&UserReward{},
		&Withdrawal{},
		&Payment{},
		&CardView{},
		&CardStats{},
	}
}
