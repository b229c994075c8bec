package domain

// Profile is the durable user row. Its id is the identity provider's user id.
type Profile struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string `gorm:"type:text" json:"email"`
	Role      string `gorm:"type:text" json:"role"`
	FirstName string `gorm:"column:firstname;type:text" json:"firstname"`
	LastName  string `gorm:"column:lastname;type:text" json:"lastname"`
}

func (Profile) TableName() string { return "users" }

// Snapshot is the denormalised copy cached next to the session tokens.
func (p Profile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		UserID:    p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Role:      p.Role,
	}
}

type ProfileSnapshot struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}
