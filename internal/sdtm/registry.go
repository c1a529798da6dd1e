package sdtm

// SubjectRegistry answers cross-domain reference checks: which subject
// keys exist, and which (subject, visit) pairs are scheduled. Owned by
// an external collaborator (typically loaded from the demographics
// domain); the core only reads it.
type SubjectRegistry interface {
	HasSubject(subject string) bool
	HasVisit(subject, visit string) bool
}

// StaticRegistry is an in-memory SubjectRegistry for tests and for
// callers that assemble the registry themselves.
type StaticRegistry struct {
	subjects map[string]bool
	visits   map[string]map[string]bool
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		subjects: make(map[string]bool),
		visits:   make(map[string]map[string]bool),
	}
}

// AddSubject registers a subject key.
func (r *StaticRegistry) AddSubject(subject string) *StaticRegistry {
	r.subjects[subject] = true
	return r
}

// AddVisit registers a (subject, visit) pair, registering the subject
// as a side effect.
func (r *StaticRegistry) AddVisit(subject, visit string) *StaticRegistry {
	r.AddSubject(subject)
	if r.visits[subject] == nil {
		r.visits[subject] = make(map[string]bool)
	}
	r.visits[subject][visit] = true
	return r
}

func (r *StaticRegistry) HasSubject(subject string) bool {
	return r.subjects[subject]
}

func (r *StaticRegistry) HasVisit(subject, visit string) bool {
	return r.visits[subject][visit]
}
