package models

// TelegramUpdate represents an incoming Telegram update (webhook or getUpdates)
type TelegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

// TelegramMessage represents a Telegram message
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from,omitempty"`
	Chat      *TelegramChat `json:"chat"`
	Date      int64         `json:"date"`
	Text      string        `json:"text,omitempty"`
	Caption   string        `json:"caption,omitempty"`

	// Media attachments
	Photo    []TelegramPhotoSize `json:"photo,omitempty"` // One entry per resolution
	Video    *TelegramFile       `json:"video,omitempty"`
	Document *TelegramFile       `json:"document,omitempty"`
}

// TelegramPhotoSize represents one resolution variant of a photo
type TelegramPhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int    `json:"file_size,omitempty"`
}

// TelegramFile covers the fields shared by video and document attachments
type TelegramFile struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramUser represents a Telegram user
type TelegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// TelegramChat represents a Telegram chat
type TelegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "private", "group", "supergroup", "channel"
}

// TelegramReplyKeyboard is a custom reply keyboard (one button per row for choice lists)
type TelegramReplyKeyboard struct {
	Keyboard        [][]TelegramKeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool                       `json:"resize_keyboard"`
	OneTimeKeyboard bool                       `json:"one_time_keyboard"`
}

// TelegramKeyboardButton is a single reply keyboard button
type TelegramKeyboardButton struct {
	Text string `json:"text"`
}

// TelegramReplyKeyboardRemove hides any custom keyboard on the client
type TelegramReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}
