package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which family of locally authored entity a record belongs to.
type Kind string

const (
	KindWorkItem Kind = "work_item"
	KindIdea     Kind = "idea"
	KindProject  Kind = "project"
)

// AllKinds lists every kind in reconciliation order.
var AllKinds = []Kind{KindWorkItem, KindIdea, KindProject}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindWorkItem, KindIdea, KindProject:
		return true
	}
	return false
}

// Marker returns the label used on remote issues to tag the kind.
func (k Kind) Marker() string {
	switch k {
	case KindWorkItem:
		return "work-item"
	case KindIdea:
		return "idea"
	case KindProject:
		return "project"
	}
	return ""
}

// IDPrefix is prepended to generated local ids.
func (k Kind) IDPrefix() string {
	switch k {
	case KindWorkItem:
		return "wi"
	case KindIdea:
		return "idea"
	case KindProject:
		return "proj"
	}
	return "ent"
}

// ParseKind accepts the canonical name, the label marker, or a few loose spellings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "work_item", "work-item", "workitem", "wi", "task":
		return KindWorkItem, nil
	case "idea", "ideas":
		return KindIdea, nil
	case "project", "projects", "proj":
		return KindProject, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// RemoteRef links a local entity to its mirrored issue.
type RemoteRef struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// RepoRef links a project to its provisioned repository.
type RepoRef struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	URL      string `json:"url"`
}

// EntityRef addresses an entity; ids are only unique within a kind.
type EntityRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Entity is the syncable shape shared by work items, ideas and projects.
type Entity struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type,omitempty"`
	Component   string     `json:"component,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Remote      *RemoteRef `json:"remote,omitempty"`
	// RemoteLabels is the last label set observed on or pushed to the remote issue.
	// It may be stale.
	RemoteLabels []string  `json:"remote_labels,omitempty"`
	Repository   *RepoRef  `json:"repository,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Ref returns the entity's address.
func (e *Entity) Ref() EntityRef {
	return EntityRef{Kind: e.Kind, ID: e.ID}
}

// Linked reports whether the entity already has a remote issue.
func (e *Entity) Linked() bool {
	return e.Remote != nil && e.Remote.ID > 0
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Remote != nil {
		r := *e.Remote
		c.Remote = &r
	}
	if e.Repository != nil {
		r := *e.Repository
		c.Repository = &r
	}
	if e.RemoteLabels != nil {
		c.RemoteLabels = append([]string(nil), e.RemoteLabels...)
	}
	return &c
}
