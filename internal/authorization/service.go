package authorization

import "context"

// Subject is the acting principal checked against policies.
type Subject struct {
	UserID  string
	RoleIDs []int64
	System  bool
}

type Service interface {
	Authorize(ctx context.Context, subject Subject, object string, action string) error
}
