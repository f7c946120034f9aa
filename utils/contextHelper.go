package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/lims_backend/appctx"
)

var (
	ContextKeyActorEmail    = appctx.ContextKeyActorEmail
	ContextKeyActorName     = appctx.ContextKeyActorName
	ContextKeyBranchCode    = appctx.ContextKeyBranchCode
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetActorEmailFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorEmail)
}

func GetActorNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorName)
}

func GetBranchCodeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBranchCode)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetActorEmailInContext(ctx context.Context, email string) context.Context {
	return appctx.Set(ctx, ContextKeyActorEmail, email)
}

func SetActorNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, ContextKeyActorName, name)
}

func SetBranchCodeInContext(ctx context.Context, branch string) context.Context {
	return appctx.Set(ctx, ContextKeyBranchCode, branch)
}

func SetCorrelationIdInContext(ctx context.Context, id string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, id)
}

// ActorEmail returns the acting user's email or "unknown" when the request
// carried no identity. Audit entries must never be empty.
func ActorEmail(ctx context.Context) string {
	if email, ok := GetActorEmailFromContext(ctx); ok && email != "" {
		return email
	}
	return "unknown"
}

// ActorDisplayName prefers the resolved full name and falls back to email.
func ActorDisplayName(ctx context.Context) string {
	if name, ok := GetActorNameFromContext(ctx); ok && name != "" {
		return name
	}
	return ActorEmail(ctx)
}
