package enrich

import "github.com/marcelocantos/moodlelogs/internal/record"

// deletedContext is how the platform export renders the context of a module,
// activity or course that has since been deleted.
const deletedContext = "Other"

// MarkDeletedModules sets Status to DELETED on records whose context no
// longer exists and returns how many were marked. It runs after
// reclassification so the derived component rules still see the context.
func MarkDeletedModules(records []*record.LogRecord) int {
	var n int
	for _, r := range records {
		if r.EventContext == deletedContext {
			r.Status = record.StatusDeleted
			n++
		}
	}
	return n
}
