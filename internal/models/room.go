package models

// RoomInfo reports the presence of a room as the relay sees it
type RoomInfo struct {
	Room        string       `json:"room"`
	Broadcaster *Participant `json:"broadcaster,omitempty"`
	ViewerCount int          `json:"viewerCount"`
}

// LoginRequest is the operator login body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued operator token
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// CloseRoomResponse reports how many members a room close disconnected
type CloseRoomResponse struct {
	Room         string `json:"room"`
	Disconnected int    `json:"disconnected"`
}
