package models

// Field names a tracked entity field.
type Field string

const (
	FieldStatus   Field = "status"
	FieldPriority Field = "priority"
)

// TrackedFields is the order in which change events are emitted and dispatched.
var TrackedFields = []Field{FieldStatus, FieldPriority}

// ChangeEvent is the before/after pair for one field across a unit of work.
// It is never persisted.
type ChangeEvent struct {
	Entity   EntityRef `json:"entity"`
	Field    Field     `json:"field"`
	Previous string    `json:"previous"`
	New      string    `json:"new"`
}
