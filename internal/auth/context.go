package auth

import (
	"context"
	"errors"
)

type identityKey struct{}

type identity struct {
	userID      string
	workspaceID string
	role        string
}

func WithIdentity(ctx context.Context, userID, workspaceID, role string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{
		userID:      userID,
		workspaceID: workspaceID,
		role:        role,
	})
}

func UserID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok || id.userID == "" {
		return "", errors.New("user_id not in context")
	}
	return id.userID, nil
}

func WorkspaceID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok || id.workspaceID == "" {
		return "", errors.New("workspace_id not in context")
	}
	return id.workspaceID, nil
}

func Role(ctx context.Context) (string, error) {
	id, ok := ctx.Value(identityKey{}).(identity)
	if !ok || id.role == "" {
		return "", errors.New("role not in context")
	}
	return id.role, nil
}
