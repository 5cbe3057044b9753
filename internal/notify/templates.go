package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"text/template"

	"github.com/tidwall/jsonc"

	"jobmate/fulfillment-service/internal/apperr"
)

// Template names.
const (
	TemplateEmergencyCancellation = "emergency_cancellation"
	TemplateProviderAbsence       = "provider_absence"
	TemplateUrgentReplacement     = "urgent_replacement"
	TemplateBookingConfirmation   = "booking_confirmation"
	TemplateReminder24h           = "reminder_24h"
	TemplateMissionStarted        = "mission_started"
	TemplateMissionCompleted      = "mission_completed"
	TemplateApplicationApproved   = "application_approved"
)

// TemplateText holds the raw text/template sources of one template. An empty
// pair or string means the template has no payload for that channel.
type TemplateText struct {
	MessageTitle string `json:"messageTitle,omitempty"`
	MessageBody  string `json:"messageBody,omitempty"`
	SMS          string `json:"sms,omitempty"`
	PushTitle    string `json:"pushTitle,omitempty"`
	PushBody     string `json:"pushBody,omitempty"`
}

// Definition pins the event type, priority and required fields of a template.
type Definition struct {
	Name      string
	EventType string
	Priority  Priority
	Required  []string
	Text      TemplateText
}

var builtin = []Definition{
	{
		Name:      TemplateEmergencyCancellation,
		EventType: "booking.cancelled.emergency",
		Priority:  PriorityUrgent,
		Required:  []string{"clientName", "serviceType", "date", "reason"},
		Text: TemplateText{
			MessageTitle: "Your {{.serviceType}} booking on {{.date}} is cancelled",
			MessageBody: "Hello {{.clientName}},\n\nWe are sorry: your {{.serviceType}} booking on {{.date}} " +
				"had to be cancelled ({{.reason}}). Our team is already looking for a replacement and will contact you shortly.",
			SMS: "URGENT: your {{.serviceType}} booking on {{.date}} is cancelled ({{.reason}}). We are finding a replacement.",
		},
	},
	{
		Name:      TemplateProviderAbsence,
		EventType: "mission.provider_absent",
		Priority:  PriorityUrgent,
		Required:  []string{"clientName", "providerName", "date"},
		Text: TemplateText{
			MessageTitle: "{{.providerName}} cannot attend on {{.date}}",
			MessageBody: "Hello {{.clientName}},\n\n{{.providerName}} has reported an absence for your mission on {{.date}}. " +
				"We are arranging a replacement and will confirm it as soon as possible.",
			SMS:       "URGENT: {{.providerName}} is absent on {{.date}}. A replacement is being arranged.",
			PushTitle: "Provider absent",
			PushBody:  "{{.providerName}} cannot attend on {{.date}}.",
		},
	},
	{
		Name:      TemplateUrgentReplacement,
		EventType: "mission.replacement_needed",
		Priority:  PriorityUrgent,
		Required:  []string{"providerName", "serviceType", "date", "location"},
		Text: TemplateText{
			MessageTitle: "Urgent {{.serviceType}} mission available on {{.date}}",
			MessageBody: "Hello {{.providerName}},\n\nA client in {{.location}} urgently needs a {{.serviceType}} " +
				"provider on {{.date}}. Reply quickly to take the mission.",
			SMS:       "URGENT mission: {{.serviceType}} in {{.location}} on {{.date}}. Open the app to accept.",
			PushTitle: "Urgent mission",
			PushBody:  "{{.serviceType}} in {{.location}} on {{.date}}",
		},
	},
	{
		Name:      TemplateBookingConfirmation,
		EventType: "booking.confirmed",
		Priority:  PriorityNormal,
		Required:  []string{"name", "serviceType", "date", "price", "bookingId"},
		Text: TemplateText{
			MessageTitle: "Booking {{.bookingId}} confirmed",
			MessageBody: "Hello {{.name}},\n\nYour {{.serviceType}} booking on {{.date}} is confirmed. " +
				"Estimated price: {{.price}} EUR. Reference: {{.bookingId}}.",
			PushTitle: "Booking confirmed",
			PushBody:  "{{.serviceType}} on {{.date}} ({{.price}} EUR)",
		},
	},
	{
		Name:      TemplateReminder24h,
		EventType: "booking.reminder",
		Priority:  PriorityHigh,
		Required:  []string{"name", "serviceType", "date", "location"},
		Text: TemplateText{
			MessageTitle: "Reminder: {{.serviceType}} tomorrow",
			MessageBody:  "Hello {{.name}},\n\nThis is a reminder of your {{.serviceType}} booking on {{.date}} at {{.location}}.",
			PushTitle:    "Tomorrow",
			PushBody:     "{{.serviceType}} on {{.date}} at {{.location}}",
		},
	},
	{
		Name:      TemplateMissionStarted,
		EventType: "mission.started",
		Priority:  PriorityNormal,
		Required:  []string{"clientName", "providerName"},
		Text: TemplateText{
			PushTitle: "Mission started",
			PushBody:  "{{.providerName}} has started your mission, {{.clientName}}.",
		},
	},
	{
		Name:      TemplateMissionCompleted,
		EventType: "mission.completed",
		Priority:  PriorityNormal,
		Required:  []string{"clientName", "providerName", "serviceType"},
		Text: TemplateText{
			MessageTitle: "Your {{.serviceType}} mission is complete",
			MessageBody:  "Hello {{.clientName}},\n\n{{.providerName}} has completed your {{.serviceType}} mission. Tell us how it went!",
			PushTitle:    "Mission completed",
			PushBody:     "{{.providerName}} has finished. Rate your experience.",
		},
	},
	{
		Name:      TemplateApplicationApproved,
		EventType: "application.approved",
		Priority:  PriorityNormal,
		Required:  []string{"name"},
		Text: TemplateText{
			MessageTitle: "Welcome aboard, {{.name}}",
			MessageBody:  "Hello {{.name}},\n\nYour application has been approved and your provider account is ready. Onboarding starts now.",
		},
	},
}

type compiled struct {
	def                    Definition
	msgTitle, msgBody, sms *template.Template
	pushTitle, pushBody    *template.Template
}

// Templates is the compiled, immutable template catalogue.
type Templates struct {
	byName map[string]*compiled
}

// DefaultTemplates compiles the built-in catalogue.
func DefaultTemplates() *Templates {
	t, err := NewTemplates(nil)
	if err != nil {
		panic("notify: built-in templates do not compile: " + err.Error())
	}
	return t
}

// NewTemplates compiles the built-in catalogue with text overrides applied.
// Overrides may only replace texts of channels a template already has;
// priorities and required fields are fixed.
func NewTemplates(overrides map[string]TemplateText) (*Templates, error) {
	t := &Templates{byName: make(map[string]*compiled, len(builtin))}
	for _, def := range builtin {
		if o, ok := overrides[def.Name]; ok {
			merged, err := mergeText(def.Text, o)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", def.Name, err)
			}
			def.Text = merged
		}
		c, err := compile(def)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", def.Name, err)
		}
		t.byName[def.Name] = c
	}
	for name := range overrides {
		if _, ok := t.byName[name]; !ok {
			return nil, fmt.Errorf("override for unknown template %q", name)
		}
	}
	return t, nil
}

// LoadTemplates reads a JSONC override file ({"<template>": {TemplateText}})
// and compiles the catalogue with it.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var overrides map[string]TemplateText
	if err := json.Unmarshal(jsonc.ToJSON(data), &overrides); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return NewTemplates(overrides)
}

// Names lists the catalogue in sorted order.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the definition of a template.
func (t *Templates) Definition(name string) (Definition, bool) {
	c, ok := t.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.def, true
}

// Render builds an Event for recipient from template data. It fails with a
// validation error when the template is unknown or a required field is
// missing or empty.
func (t *Templates) Render(name string, to Recipient, data map[string]string) (Event, error) {
	c, ok := t.byName[name]
	if !ok {
		return Event{}, apperr.Validation("unknown template %q", name)
	}
	var missing []string
	for _, field := range c.def.Required {
		if data[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Event{}, apperr.Validation("template %s: missing fields %v", name, missing)
	}

	ev := Event{
		Template:  name,
		EventType: c.def.EventType,
		Priority:  c.def.Priority,
		Recipient: to,
	}
	var err error
	if c.msgBody != nil {
		ev.Payloads.Message, err = renderText(c.msgTitle, c.msgBody, data)
		if err != nil {
			return Event{}, err
		}
	}
	if c.sms != nil {
		body, err := execute(c.sms, data)
		if err != nil {
			return Event{}, err
		}
		ev.Payloads.SMS = &body
	}
	if c.pushBody != nil {
		ev.Payloads.Push, err = renderText(c.pushTitle, c.pushBody, data)
		if err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

func compile(def Definition) (*compiled, error) {
	c := &compiled{def: def}
	var err error
	for _, p := range []struct {
		dst  **template.Template
		name string
		src  string
	}{
		{&c.msgTitle, "messageTitle", def.Text.MessageTitle},
		{&c.msgBody, "messageBody", def.Text.MessageBody},
		{&c.sms, "sms", def.Text.SMS},
		{&c.pushTitle, "pushTitle", def.Text.PushTitle},
		{&c.pushBody, "pushBody", def.Text.PushBody},
	} {
		if p.src == "" {
			continue
		}
		*p.dst, err = template.New(def.Name + "." + p.name).Option("missingkey=error").Parse(p.src)
		if err != nil {
			return nil, err
		}
		if err := checkFields(*p.dst, def.Required); err != nil {
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return c, nil
}

// checkFields rejects templates that reference fields outside Required, so a
// render can never fail on data the caller was not told to pass.
func checkFields(t *template.Template, required []string) error {
	probe := make(map[string]string, len(required))
	for _, f := range required {
		probe[f] = "x"
	}
	var buf bytes.Buffer
	return t.Execute(&buf, probe)
}

func mergeText(base, o TemplateText) (TemplateText, error) {
	pairs := []struct {
		dst     *string
		src     string
		channel string
	}{
		{&base.MessageTitle, o.MessageTitle, "messageTitle"},
		{&base.MessageBody, o.MessageBody, "messageBody"},
		{&base.SMS, o.SMS, "sms"},
		{&base.PushTitle, o.PushTitle, "pushTitle"},
		{&base.PushBody, o.PushBody, "pushBody"},
	}
	for _, p := range pairs {
		if p.src == "" {
			continue
		}
		if *p.dst == "" {
			return base, fmt.Errorf("cannot add %s: the template has no such payload", p.channel)
		}
		*p.dst = p.src
	}
	return base, nil
}

func renderText(title, body *template.Template, data map[string]string) (*Text, error) {
	out := &Text{}
	var err error
	if title != nil {
		if out.Title, err = execute(title, data); err != nil {
			return nil, err
		}
	}
	if out.Body, err = execute(body, data); err != nil {
		return nil, err
	}
	return out, nil
}

func execute(t *template.Template, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "render "+t.Name())
	}
	return buf.String(), nil
}

// channelsOf lists the channels a definition carries payloads for.
func channelsOf(def Definition) []Channel {
	var out []Channel
	if def.Text.MessageBody != "" {
		out = append(out, ChannelMessage)
	}
	if def.Text.SMS != "" {
		out = append(out, ChannelSMS)
	}
	if def.Text.PushBody != "" {
		out = append(out, ChannelPush)
	}
	return out
}

// HasChannel reports whether the template carries a payload for ch.
func (d Definition) HasChannel(ch Channel) bool {
	return slices.Contains(channelsOf(d), ch)
}
