package eventstore

// PersistenceExceptionResolver decides whether a low-level backend error
// represents a uniqueness violation on the domain-event (or snapshot) row
// (§4.G, §6). When configured, the facade uses it to turn integrity
// violations into ConcurrencyError; when nil, integrity errors pass through
// untranslated (wrapped only with context, per §7).
type PersistenceExceptionResolver interface {
	IsDuplicateKeyViolation(err error) bool
}

// nopResolver never recognizes a violation; it is the default when no
// resolver and no dataSource hint is configured, matching §4.F's
// "persistenceExceptionResolver (optional) ... when null, integrity errors
// pass through untranslated."
type nopResolver struct{}

func (nopResolver) IsDuplicateKeyViolation(error) bool { return false }
