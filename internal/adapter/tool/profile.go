package tool

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"planit/internal/domain"
)

func profileOf(u *domain.User) map[string]any {
	return map[string]any{
		"name":     u.Name,
		"nickname": u.Nickname,
		"email":    u.Email,
	}
}

func (s *StudyTools) getUserProfile() domain.Tool {
	return NewFunc("get_user_profile",
		"Retrieves the profile of the current user: name, nickname and email.",
		noParamsSchema, s.logger,
		func(ctx context.Context, _ trace.Span, _ noParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			u, err := s.store.GetUser(ctx, owner)
			if err != nil {
				return nil, NotFound(err, "User not found.", "Error while retrieving the user profile")
			}
			return map[string]any{"success": true, "user_profile": profileOf(u)}, nil
		})
}

type updateUserProfileParams struct {
	NewName     *string `json:"new_name,omitempty"`
	NewNickname *string `json:"new_nickname,omitempty"`
}

const updateUserProfileSchema = `{
	"type": "object",
	"properties": {
		"new_name": {"type": "string", "description": "The user's new full name."},
		"new_nickname": {"type": "string", "description": "The user's new nickname."}
	},
	"additionalProperties": false
}`

func (s *StudyTools) updateUserProfile() domain.Tool {
	return NewFunc("update_user_profile",
		"Updates the name and/or nickname of the current user. Email and password cannot be changed here; "+
			"the user must do that in the application itself.",
		updateUserProfileSchema, s.logger,
		func(ctx context.Context, _ trace.Span, p updateUserProfileParams) (map[string]any, error) {
			owner, err := ownerID(ctx)
			if err != nil {
				return nil, err
			}
			if p.NewName != nil {
				if err := RequireField("new_name", *p.NewName); err != nil {
					return nil, err
				}
			}
			u, err := s.store.UpdateUser(ctx, owner, domain.UserUpdate{Name: p.NewName, Nickname: p.NewNickname})
			if err != nil {
				return nil, NotFound(err, "User not found.", "Error while updating the user profile")
			}
			return map[string]any{"success": true, "user_profile": profileOf(u)}, nil
		})
}
