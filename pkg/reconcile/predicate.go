package reconcile

import (
	"github.com/1vers1on/uls-ingress/pkg/model"
)

// Predicate decides whether a derived license is forwarded to the loader
type Predicate func(*model.License) bool

// StatusIn accepts licenses whose status is one of statuses
func StatusIn(statuses ...model.LicenseStatus) Predicate {
	allowed := make(map[model.LicenseStatus]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}
	return func(l *model.License) bool {
		_, ok := allowed[l.Status]
		return ok
	}
}

// IncludeAll accepts every license
func IncludeAll(*model.License) bool {
	return true
}

// DefaultInclude forwards active licenses only
var DefaultInclude = StatusIn(model.StatusActive)
