package common

import "context"

type subjectKey struct{}

// WithSubject stores the authenticated token subject on the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// Subject extracts the authenticated token subject from the context.
func Subject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey{}).(string)
	return v, ok && v != ""
}
