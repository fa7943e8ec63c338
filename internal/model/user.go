package model

// User is the chat-side projection of a social network user.
type User struct {
	ID          int64  `json:"id,string" db:"id"`
	Nickname    string `json:"nickname" db:"nickname"`
	Name        string `json:"name" db:"name"`
	Avatar      string `json:"avatar" db:"avatar"`
	IsAutomated bool   `json:"isAutomated" db:"is_automated"`
	Archetype   string `json:"archetype" db:"archetype"` // persona key for automated accounts
}

// UserView is the user shape embedded in message and conversation JSON.
type UserView struct {
	ID          int64  `json:"id,string"`
	Nickname    string `json:"nickname"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"`
	Online      bool   `json:"online"`
	IsAutomated bool   `json:"isAutomated"`
}

// View builds the public projection of u.
func (u *User) View(online bool) UserView {
	if u == nil {
		return UserView{}
	}
	return UserView{
		ID:          u.ID,
		Nickname:    u.Nickname,
		Name:        u.Name,
		Avatar:      u.Avatar,
		Online:      online,
		IsAutomated: u.IsAutomated,
	}
}
