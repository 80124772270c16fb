package dues

// ResolveSubmitter picks the owner of a record created without an explicit
// submitter. Resolution order:
//
//  1. the class supervisor, when assigned
//  2. the class id itself
//  3. fallback
//
// The sweep, reconciliation and enrollment paths all go through here so a
// freshly created record never depends on which path created it.
func ResolveSubmitter(supervisor *SubmitterID, classID *ClassID, fallback SubmitterID) SubmitterID {
	if supervisor != nil && *supervisor != 0 {
		return *supervisor
	}
	if classID != nil && *classID != 0 {
		return SubmitterID(*classID)
	}
	return fallback
}

// DefaultSubmitter resolves the submitter for a class with no caller fallback.
func DefaultSubmitter(c Class) SubmitterID {
	id := c.ID
	return ResolveSubmitter(c.SupervisorID, &id, 0)
}
