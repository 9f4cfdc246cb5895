package dashboard

import "time"

// Replies. Validation tags are checked when a reply is decoded: a record that
// misses a required field is a parse error, not a zero value.

type User struct {
	ID      string  `json:"id" validate:"required"`
	Name    string  `json:"name"`
	Email   string  `json:"email" validate:"required"`
	Company string  `json:"company,omitempty"`
	Role    string  `json:"role" validate:"required"`
	Factor  float64 `json:"factor" validate:"gte=0"` // pricing multiplier applied to list prices
}

type Chat struct {
	ID           string    `json:"id" validate:"required"`
	Title        string    `json:"title"`
	Participants []string  `json:"participants"`
	LastMessage  string    `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Message struct {
	ID       string    `json:"id" validate:"required"`
	ChatID   string    `json:"chatId" validate:"required"`
	SenderID string    `json:"senderId" validate:"required"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

type Project struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Client    string    `json:"client"`
	Status    string    `json:"status"`
	Total     float64   `json:"total"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile is a catalog item: an extruded section with its cross-section
// dimensions in millimetres.
type Profile struct {
	ID            string  `json:"id" validate:"required"`
	Code          string  `json:"code" validate:"required"`
	Name          string  `json:"name"`
	Width         float64 `json:"width" validate:"gt=0"`
	Height        float64 `json:"height" validate:"gt=0"`
	Thickness     float64 `json:"thickness" validate:"gt=0"`
	PricePerMeter float64 `json:"pricePerMeter" validate:"gte=0"`
}

// Requests. The backend validates them with the same tags.

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Company  string `json:"company,omitempty"`
}

type UserIDRequest struct {
	ID string `json:"id" validate:"required"`
}

type UpdateFactorRequest struct {
	UserID string  `json:"userId" validate:"required"`
	Factor float64 `json:"factor" validate:"gt=0"`
}

type ChatIDRequest struct {
	ChatID string `json:"chatId" validate:"required"`
}

type SendMessageRequest struct {
	ChatID   string `json:"chatId" validate:"required"`
	SenderID string `json:"senderId" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

type ProjectsRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type ProjectIDRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
}

// Dimensions bounds a catalog search. Zero maximums mean unbounded.
type Dimensions struct {
	MinWidth     float64 `json:"minWidth" validate:"gte=0"`
	MaxWidth     float64 `json:"maxWidth" validate:"gte=0"`
	MinHeight    float64 `json:"minHeight" validate:"gte=0"`
	MaxHeight    float64 `json:"maxHeight" validate:"gte=0"`
	MinThickness float64 `json:"minThickness" validate:"gte=0"`
}

// Match reports whether p falls inside d.
func (d Dimensions) Match(p Profile) bool {
	within := func(v, lo, hi float64) bool { return v >= lo && (hi == 0 || v <= hi) }
	return within(p.Width, d.MinWidth, d.MaxWidth) &&
		within(p.Height, d.MinHeight, d.MaxHeight) &&
		p.Thickness >= d.MinThickness
}
