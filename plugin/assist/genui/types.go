// Package genui builds the component-based responses the chat frontend
// renders: text, forecast tables, confirmation dialogs, error alerts, and
// suggestion lists.
package genui

import (
	"github.com/google/uuid"
)

// ComponentType defines the type of UI component.
type ComponentType string

const (
	ComponentText          ComponentType = "text"
	ComponentForecastTable ComponentType = "forecast_table"
	ComponentConfirmDialog ComponentType = "confirm_dialog"
	ComponentErrorAlert    ComponentType = "error_alert"
	ComponentSuggestions   ComponentType = "suggestions"
	ComponentSuccessBanner ComponentType = "success_banner"
)

// UIComponent represents a generic UI component.
type UIComponent struct {
	Type    ComponentType `json:"type"`
	ID      string        `json:"id"`
	Data    any           `json:"data"`
	Actions []UIAction    `json:"actions,omitempty"`
}

// UIAction represents an action button on a component.
type UIAction struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "button", "submit"
	Label   string `json:"label"`
	Style   string `json:"style"` // "primary", "secondary", "danger"
	Payload any    `json:"payload,omitempty"`
}

// Response is a complete assistant response: lead text plus components.
type Response struct {
	Text       string        `json:"text,omitempty"`
	HTML       string        `json:"html,omitempty"`
	Components []UIComponent `json:"components,omitempty"`
}

func newComponentID() string {
	return uuid.New().String()
}
