package models

// Location is a provider-specific place identifier with its coordinates.
type Location struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Region    string   `json:"region,omitempty"`
}
