// Package model defines the records shared by the fulfillment pipeline.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType discriminates the two status-bearing entities.
type EntityType string

const (
	EntityRequest     EntityType = "request"
	EntityApplication EntityType = "application"
)

// Urgency mirrors the urgency_level column of service_requests.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// ParseUrgency accepts the four urgency levels; the empty string maps to normal.
func ParseUrgency(s string) (Urgency, bool) {
	switch u := Urgency(s); u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyUrgent:
		return u, true
	case "":
		return UrgencyNormal, true
	}
	return "", false
}

// IsPressing is true for the levels that reward immediately available providers.
func (u Urgency) IsPressing() bool { return u == UrgencyHigh || u == UrgencyUrgent }

// Contact is how a client or provider can be reached.
type Contact struct {
	Name      string `json:"name,omitempty" yaml:"name"`
	Email     string `json:"email,omitempty" yaml:"email"`
	Phone     string `json:"phone,omitempty" yaml:"phone"`
	PushToken string `json:"pushToken,omitempty" yaml:"pushToken"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Location is a free-text area with optional coordinates.
type Location struct {
	Text string       `json:"text" yaml:"text"`
	Geo  *Coordinates `json:"geo,omitempty" yaml:"geo"`
}

// ServiceRequest mirrors the service_requests table.
type ServiceRequest struct {
	ID              string          `json:"id"`
	Client          Contact         `json:"client"`
	ClientID        string          `json:"clientId"`
	ServiceType     string          `json:"serviceType"`
	Description     string          `json:"description"`
	Location        Location        `json:"location"`
	PreferredAt     *time.Time      `json:"preferredAt,omitempty"`
	BudgetMin       decimal.Decimal `json:"budgetMin"`
	BudgetMax       decimal.Decimal `json:"budgetMax"`
	EstimatedHours  decimal.Decimal `json:"estimatedHours"`
	Urgency         Urgency         `json:"urgencyLevel"`
	Status          string          `json:"status"`
	AdditionalNotes string          `json:"additionalNotes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// RecipientID addresses the client in notifications. Guest requests carry no
// client id; they are addressed by request.
func (r ServiceRequest) RecipientID() string {
	if r.ClientID != "" {
		return r.ClientID
	}
	return "request:" + r.ID
}

// ProviderService is one service a provider sells, with its hourly rate.
type ProviderService struct {
	ID          string          `json:"id" yaml:"id"`
	ServiceType string          `json:"serviceType" yaml:"serviceType"`
	HourlyRate  decimal.Decimal `json:"hourlyRate" yaml:"hourlyRate"`
	Active      bool            `json:"active" yaml:"active"`
}

// Provider is the read-only directory view of a service provider.
type Provider struct {
	ID            string            `json:"id" yaml:"id"`
	BusinessName  string            `json:"businessName" yaml:"businessName"`
	Contact       Contact           `json:"contact" yaml:"contact"`
	Location      Location          `json:"location" yaml:"location"`
	RatingAverage float64           `json:"ratingAverage" yaml:"ratingAverage"`
	Verified      bool              `json:"verified" yaml:"verified"`
	Available     bool              `json:"available" yaml:"available"`
	Services      []ProviderService `json:"services" yaml:"services"`
}

// ActiveService returns the first active service whose type satisfies match.
func (p Provider) ActiveService(match func(string) bool) (ProviderService, bool) {
	for _, s := range p.Services {
		if s.Active && match(s.ServiceType) {
			return s, true
		}
	}
	return ProviderService{}, false
}

// ServiceByID returns the service with the given id regardless of its active flag.
func (p Provider) ServiceByID(id string) (ProviderService, bool) {
	for _, s := range p.Services {
		if s.ID == id {
			return s, true
		}
	}
	return ProviderService{}, false
}

// JobApplication mirrors the job_applications table (provider onboarding funnel).
type JobApplication struct {
	ID            string    `json:"id"`
	ApplicantName string    `json:"applicantName"`
	Contact       Contact   `json:"contact"`
	ServiceTypes  []string  `json:"serviceTypes"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Booking statuses.
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Booking is the confirmed outcome of a conversion.
type Booking struct {
	ID             string          `json:"id"`
	RequestID      string          `json:"requestId"`
	ProviderID     string          `json:"providerId"`
	ServiceID      string          `json:"serviceId"`
	ServiceType    string          `json:"serviceType"`
	Location       Location        `json:"location"`
	ScheduledAt    *time.Time      `json:"scheduledAt,omitempty"`
	HourlyRate     decimal.Decimal `json:"hourlyRate"`
	EstimatedHours decimal.Decimal `json:"estimatedHours"`
	Price          decimal.Decimal `json:"price"`
	Status         string          `json:"status"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	RemindedAt     *time.Time      `json:"remindedAt,omitempty"`
}

// StatusTransitionRecord is one append-only audit entry.
type StatusTransitionRecord struct {
	ID         string     `json:"id"`
	EntityID   string     `json:"entityId"`
	EntityType EntityType `json:"entityType"`
	FromStatus string     `json:"fromStatus"`
	ToStatus   string     `json:"toStatus"`
	Actor      string     `json:"actor"`
	Comment    string     `json:"comment,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NotificationRecord is the single audit entry written per dispatched event.
type NotificationRecord struct {
	ID          string          `json:"id"`
	EventKey    string          `json:"eventKey"`
	RecipientID string          `json:"recipientId"`
	Template    string          `json:"template"`
	EventType   string          `json:"eventType"`
	Priority    string          `json:"priority"`
	Status      string          `json:"status"`
	Channels    json.RawMessage `json:"channels"`
	CreatedAt   time.Time       `json:"createdAt"`
}
